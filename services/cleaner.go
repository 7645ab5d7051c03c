package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"idealista-scraper/models"
	"idealista-scraper/utils"
)

var (
	// priceRegexp captures the first number, thousands separators included
	priceRegexp = regexp.MustCompile(`\d[\d.,\s]*`)
	// areaRegexp captures the number in front of m²
	areaRegexp = regexp.MustCompile(`(\d[\d.,]*)\s*m²`)
)

// Cleaner turns raw ListingRecords into CleanListings with numeric price and area.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean processes records and returns cleaned listings. Records without a
// URL are dropped, and so are repeats of a URL or listing id already seen.
// The input records are not modified.
func (c *Cleaner) Clean(raw []*models.ListingRecord) []*models.CleanListing {
	seenURL := make(map[string]struct{})
	seenID := make(map[string]struct{})
	result := make([]*models.CleanListing, 0, len(raw))

	for _, r := range raw {
		url := strings.TrimSpace(r.URL)
		if url == "" {
			c.logger.Warn("[cleaner] Dropping listing with empty URL: %s", r.Title)
			continue
		}

		if _, dup := seenURL[url]; dup {
			c.logger.Debug("[cleaner] Duplicate URL skipped: %s", url)
			continue
		}
		if _, dup := seenID[r.ListingID]; dup {
			c.logger.Debug("[cleaner] Duplicate listing id skipped: %s", r.ListingID)
			continue
		}
		seenURL[url] = struct{}{}
		seenID[r.ListingID] = struct{}{}

		rec := *r
		rec.URL = url
		rec.Title = normaliseText(r.Title)
		rec.Location = normaliseText(r.Location)
		rec.Description = normaliseText(r.Description)
		rec.Agency = normaliseText(r.Agency)

		result = append(result, &models.CleanListing{
			ListingRecord: &rec,
			PriceEUR:      parsePrice(r.Price),
			AreaM2:        parseArea(r.Area),
		})
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

// parsePrice extracts the euro amount from a display price.
// Examples:
//
//	"350,000 €"     → 350000
//	"1.250.000 €"   → 1250000
//	"950 €/month"   → 950
func parsePrice(raw string) float64 {
	match := priceRegexp.FindString(raw)
	if match == "" {
		return 0
	}
	return parseNumber(match)
}

// parseArea extracts square metres from a display area such as "110 m² área bruta".
func parseArea(raw string) float64 {
	m := areaRegexp.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	return parseNumber(m[1])
}

// parseNumber reads a number written with either "," or "." as separator.
// A final separator followed by one or two digits is the decimal point; all
// others group thousands.
func parseNumber(s string) float64 {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, ".,")

	var frac string
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		if tail := s[i+1:]; len(tail) == 1 || len(tail) == 2 {
			frac = tail
			s = s[:i]
		}
	}

	digits := strings.NewReplacer(".", "", ",", "").Replace(s)
	if frac != "" {
		digits += "." + frac
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0
	}
	return v
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
