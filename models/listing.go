package models

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// ListingKind is a diagnostic classification of a listing URL.
type ListingKind string

const (
	KindStandard    ListingKind = "standard"
	KindDevelopment ListingKind = "development"
	KindUnknown     ListingKind = "unknown"
)

// ListingRef identifies one listing page. It is immutable once created.
type ListingRef struct {
	URL       string
	ListingID string
}

// NewListingRef derives the listing id from the URL's last path segment. URLs
// without a path segment get a stable hash of the full URL instead.
func NewListingRef(rawURL string) ListingRef {
	return ListingRef{URL: rawURL, ListingID: listingID(rawURL)}
}

// Kind classifies the listing by its path marker.
func (r ListingRef) Kind() ListingKind {
	return ClassifyURL(r.URL)
}

// ClassifyURL reports whether a URL points at a regular listing or a new development.
func ClassifyURL(rawURL string) ListingKind {
	switch {
	case strings.Contains(rawURL, "/imovel/"):
		return KindStandard
	case strings.Contains(rawURL, "/empreendimento/"):
		return KindDevelopment
	default:
		return KindUnknown
	}
}

func listingID(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		path = u.Path
	}

	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if path != "" {
		return path
	}

	sum := md5.Sum([]byte(rawURL))
	return "temp_" + hex.EncodeToString(sum[:])
}

// FeatureSet holds the values recovered from a listing's features block and
// description. Every field is optional: nil or "" means absent.
type FeatureSet struct {
	Bathrooms          *int
	Bedrooms           *int
	PropertyTypeDetail string
	CompletionYear     *int
	Status             string
	EnergyCertificate  string
	UpdateDate         string
	Agency             string
}

// BasicInfo holds the raw display fields read from a listing page.
type BasicInfo struct {
	Title       string
	Price       string
	Area        string
	Location    string
	Description string
}

// Query is the search a listing was found under.
type Query struct {
	Operation    string
	PropertyType string
	City         string
}

// ListingRecord is the unit persisted by a record sink.
type ListingRecord struct {
	ListingID    string
	URL          string
	ScrapedAt    time.Time
	Operation    string
	PropertyType string
	City         string

	Title       string
	Price       string
	Area        string
	Location    string
	Description string

	FeatureSet
}

// CleanListing is a record with its price and area parsed to numbers, ready
// for PostgreSQL storage.
type CleanListing struct {
	*ListingRecord
	PriceEUR float64
	AreaM2   float64
}

// InsightReport holds the computed analytics over one run's records.
type InsightReport struct {
	TotalListings       int
	DevelopmentListings int
	AveragePrice        float64
	MinPrice            float64
	MaxPrice            float64
	AveragePricePerM2   float64
	MostExpensive       *CleanListing
	ByPropertyType      map[string]int
	ByEnergyCertificate map[string]int
	ListingsByLocation  map[string]int
}
