package services

import (
	"io"
	"testing"
	"time"

	"idealista-scraper/models"
	"idealista-scraper/utils"
)

func newTestLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard) }

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"350,000 €", 350000},
		{"1.250.000 €", 1250000},
		{"950 €/month", 950},
		{"1 250 000 €", 1250000},
		{"99,50 €", 99.50},
		{"Price on request", 0},
		{"", 0},
	}

	for _, tt := range tests {
		got := parsePrice(tt.raw)
		if got != tt.want {
			t.Errorf("parsePrice(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestParseArea(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"110 m² área bruta", 110},
		{"85,5 m²", 85.5},
		{"1.200 m²", 1200},
		{"T2", 0},
		{"", 0},
	}

	for _, tt := range tests {
		got := parseArea(tt.raw)
		if got != tt.want {
			t.Errorf("parseArea(%q) = %.2f; want %.2f", tt.raw, got, tt.want)
		}
	}
}

func TestCleanerDropsEmptyURL(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []*models.ListingRecord{
		{ListingID: "1", Title: "No URL", Price: "100 €", ScrapedAt: time.Now()},
		{ListingID: "2", Title: "Has URL", Price: "200 €", URL: "https://www.idealista.pt/imovel/2/", ScrapedAt: time.Now()},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 1 {
		t.Errorf("expected 1 listing after dropping empty URL, got %d", len(cleaned))
	}
}

func TestCleanerDeduplicates(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []*models.ListingRecord{
		{ListingID: "1", Title: "A", URL: "https://www.idealista.pt/imovel/1/"},
		{ListingID: "1", Title: "B", URL: "https://www.idealista.pt/imovel/1/"},
		{ListingID: "1", Title: "C", URL: "https://www.idealista.pt/en/imovel/1/"},
		{ListingID: "2", Title: "D", URL: "https://www.idealista.pt/imovel/2/"},
	}

	cleaned := c.Clean(raw)
	if len(cleaned) != 2 {
		t.Fatalf("expected 2 listings after deduplication, got %d", len(cleaned))
	}
	if cleaned[0].Title != "A" || cleaned[1].Title != "D" {
		t.Errorf("unexpected survivors: %q, %q", cleaned[0].Title, cleaned[1].Title)
	}
}

func TestCleanerNormalisesWithoutMutating(t *testing.T) {
	c := NewCleaner(newTestLogger())
	rec := &models.ListingRecord{
		ListingID: "7",
		URL:       " https://www.idealista.pt/imovel/7/ ",
		Title:     "  Apartamento   T2\n em Alfama ",
		Price:     "275,000 €",
		Area:      "70 m² área bruta",
	}

	cleaned := c.Clean([]*models.ListingRecord{rec})
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(cleaned))
	}
	got := cleaned[0]
	if got.Title != "Apartamento T2 em Alfama" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.URL != "https://www.idealista.pt/imovel/7/" {
		t.Errorf("URL = %q", got.URL)
	}
	if got.PriceEUR != 275000 || got.AreaM2 != 70 {
		t.Errorf("PriceEUR, AreaM2 = %.2f, %.2f", got.PriceEUR, got.AreaM2)
	}
	if rec.Title != "  Apartamento   T2\n em Alfama " {
		t.Errorf("input record was modified: %q", rec.Title)
	}
}
