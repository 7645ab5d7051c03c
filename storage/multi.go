package storage

import (
	"errors"
	"sync"

	"idealista-scraper/models"
)

// MultiSink fans every record out to several sinks.
type MultiSink []RecordSink

func (m MultiSink) WriteRecord(rec *models.ListingRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteRecord(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink, even after a failure.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Collector keeps records in memory for the end-of-run cleaning and report.
type Collector struct {
	mu      sync.Mutex
	records []*models.ListingRecord
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) WriteRecord(rec *models.ListingRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return nil
}

// Records returns a copy of the collected records in write order.
func (c *Collector) Records() []*models.ListingRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.ListingRecord, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Collector) Close() error { return nil }
