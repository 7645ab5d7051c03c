package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"idealista-scraper/models"
)

// CSVFileName is the name of the records file inside a run directory.
const CSVFileName = "idealista_data.csv"

// Header is the fixed column order of the records file.
var Header = []string{
	"listing_id", "url", "scraped_at", "operation", "property_type", "city",
	"title", "price", "area", "bedrooms", "bathrooms", "location",
	"description", "property_type_detail", "update_date",
	"agency", "energy_certificate",
}

// CSVWriter writes listing records to a CSV file, flushing after every row
// so a crashed run keeps what it scraped. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) {runPath}/idealista_data.csv and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(runPath string) (*CSVWriter, error) {
	if err := os.MkdirAll(runPath, 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	path := filepath.Join(runPath, CSVFileName)
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{path: path, file: f, writer: w}, nil
}

// Path returns the location of the CSV file.
func (c *CSVWriter) Path() string {
	return c.path
}

// WriteRecord appends one row.
func (c *CSVWriter) WriteRecord(rec *models.ListingRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.Write(Row(rec)); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	return c.file.Close()
}

// Row renders a record in Header order. Absent values are empty cells.
func Row(rec *models.ListingRecord) []string {
	return []string{
		rec.ListingID,
		rec.URL,
		rec.ScrapedAt.Format(time.RFC3339),
		rec.Operation,
		rec.PropertyType,
		rec.City,
		rec.Title,
		rec.Price,
		rec.Area,
		optInt(rec.Bedrooms),
		optInt(rec.Bathrooms),
		rec.Location,
		rec.Description,
		rec.PropertyTypeDetail,
		rec.UpdateDate,
		rec.Agency,
		rec.EnergyCertificate,
	}
}

func optInt(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
