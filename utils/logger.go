package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Logger provides leveled logging throughout the application. Everything goes
// to the console and the run log; errors are also copied to a separate file.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	err   *log.Logger
	debug *log.Logger

	files []*os.File
	color bool
}

// NewLogger creates a console-only Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return newLogger(os.Stdout, os.Stderr, true)
}

// NewLoggerTo creates an uncolored Logger that writes every level to w.
func NewLoggerTo(w io.Writer) *Logger {
	return newLogger(w, w, false)
}

// NewFileLogger creates a Logger that also writes to
// {dir}/scraping/{site}.log and {dir}/errors/{site}_errors.log. If the log
// files cannot be opened it falls back to the console logger.
func NewFileLogger(dir, site string) *Logger {
	scrapingPath := filepath.Join(dir, "scraping", site+".log")
	errorsPath := filepath.Join(dir, "errors", site+"_errors.log")

	scraping, err := openLogFile(scrapingPath)
	if err != nil {
		l := NewLogger()
		l.Error("[logger] Failed to set up file logging: %v", err)
		return l
	}
	errorsFile, err := openLogFile(errorsPath)
	if err != nil {
		_ = scraping.Close()
		l := NewLogger()
		l.Error("[logger] Failed to set up file logging: %v", err)
		return l
	}

	out := io.MultiWriter(os.Stdout, scraping)
	errOut := io.MultiWriter(os.Stderr, scraping, errorsFile)

	l := newLogger(out, errOut, false)
	l.files = []*os.File{scraping, errorsFile}
	l.Info("[logger] Logging to %s", scrapingPath)
	return l
}

func newLogger(out, errOut io.Writer, color bool) *Logger {
	flags := 0
	return &Logger{
		info:  log.New(out, "", flags),
		warn:  log.New(out, "", flags),
		err:   log.New(errOut, "", flags),
		debug: log.New(out, "", flags),
		color: color,
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("logger: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %q: %w", path, err)
	}
	return f, nil
}

// Close releases any log files held by the logger.
func (l *Logger) Close() error {
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}

func (l *Logger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

func (l *Logger) level(name, code string) string {
	if !l.color {
		return fmt.Sprintf("%-5s", name)
	}
	return fmt.Sprintf("\033[%sm%-5s\033[0m", code, name)
}

func (l *Logger) Info(format string, args ...any) {
	l.info.Printf(fmt.Sprintf("[%s] %s %s\n", l.timestamp(), l.level("INFO", "32"), format), args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.warn.Printf(fmt.Sprintf("[%s] %s %s\n", l.timestamp(), l.level("WARN", "33"), format), args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.err.Printf(fmt.Sprintf("[%s] %s %s\n", l.timestamp(), l.level("ERROR", "31"), format), args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.debug.Printf(fmt.Sprintf("[%s] %s %s\n", l.timestamp(), l.level("DEBUG", "36"), format), args...)
}
