package storage

import "idealista-scraper/models"

// RecordSink receives one record per successfully extracted listing.
// Implementations must be safe for concurrent use.
type RecordSink interface {
	WriteRecord(rec *models.ListingRecord) error
	Close() error
}

// ListingStore persists cleaned listings in bulk and reads back everything
// stored so far.
type ListingStore interface {
	Write(listings []*models.CleanListing) error
	FetchAll() ([]*models.CleanListing, error)
	Close() error
}
