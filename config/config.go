package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Fetcher modes.
const (
	FetcherBrowser = "browser"
	FetcherHTTP    = "http"
)

// Run modes: extract writes records, archive stores listing HTML.
const (
	ModeExtract = "extract"
	ModeArchive = "archive"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MaxPages       int
	ExtractWorkers int
	RateLimitMs    int
	DelayMinMs     int
	DelayMaxMs     int
	MaxRetries     int

	Fetcher   string
	Mode      string
	ChromeBin string
	Headless  bool

	BaseOutputDir string
	VocabDir      string
	LogDir        string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "idealista"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MaxPages:       getEnvInt("MAX_PAGES", 100),
		ExtractWorkers: getEnvInt("EXTRACT_WORKERS", 1),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		DelayMinMs:     getEnvInt("DELAY_MIN_MS", 2000),
		DelayMaxMs:     getEnvInt("DELAY_MAX_MS", 4000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),

		Fetcher:   strings.ToLower(getEnv("FETCHER", FetcherBrowser)),
		Mode:      strings.ToLower(getEnv("MODE", ModeExtract)),
		ChromeBin: getEnv("CHROME_BIN", ""),
		Headless:  getEnvBool("HEADLESS", true),

		BaseOutputDir: getEnv("BASE_OUTPUT_DIR", "data/bronze/idealista"),
		VocabDir:      getEnv("VOCAB_DIR", "config/idealista"),
		LogDir:        getEnv("LOG_DIR", "logs"),
	}
	cfg.normalise()
	return cfg
}

// normalise clamps values that would otherwise stall or flood the target site.
func (c *Config) normalise() {
	if c.MaxPages < 1 {
		c.MaxPages = 1
	}
	if c.ExtractWorkers < 1 {
		c.ExtractWorkers = 1
	}
	if c.ExtractWorkers > 5 {
		c.ExtractWorkers = 5
	}
	if c.DelayMaxMs < c.DelayMinMs {
		c.DelayMaxMs = c.DelayMinMs
	}
	if c.Fetcher != FetcherHTTP {
		c.Fetcher = FetcherBrowser
	}
	if c.Mode != ModeArchive {
		c.Mode = ModeExtract
	}
}

// RateInterval is the minimum spacing between two page loads.
func (c *Config) RateInterval() time.Duration {
	return time.Duration(c.RateLimitMs) * time.Millisecond
}

// Delays returns the bounds of the random pause added before each page load.
func (c *Config) Delays() (time.Duration, time.Duration) {
	return time.Duration(c.DelayMinMs) * time.Millisecond, time.Duration(c.DelayMaxMs) * time.Millisecond
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
		log.Printf("[config] Invalid int for %s=%q, using default %d", key, val, fallback)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
		log.Printf("[config] Invalid bool for %s=%q, using default %t", key, val, fallback)
	}
	return fallback
}
