// Package idealista crawls idealista.pt search results and turns each
// listing page into a ListingRecord.
package idealista

import (
	"strings"
	"time"

	"idealista-scraper/config"
	"idealista-scraper/page"
)

// Waits bounds how long each kind of locator may wait for its element.
type Waits struct {
	Containers   time.Duration
	Field        time.Duration
	NextPrimary  time.Duration
	NextFallback time.Duration
}

// DefaultWaits mirrors the site's typical render times.
var DefaultWaits = Waits{
	Containers:   15 * time.Second,
	Field:        10 * time.Second,
	NextPrimary:  10 * time.Second,
	NextFallback: 5 * time.Second,
}

var (
	listingContainer = page.CSS("article.item")
	listingLink      = page.CSS("a.item-link")

	featureLocators = []page.Locator{
		page.CSS(".details-property_features"),
		page.CSS(".info-features"),
		page.CSS(".details-property"),
	}
	updateDateLocator = page.CSS(".stats-text")
	agencyLocator     = page.CSS(".professional-name .name")
	energyLocator     = page.TextContains("", "Energy Rating", "Certificado")
)

// resolveURL makes a site-relative href absolute against origin.
func resolveURL(origin, href string) string {
	href = strings.TrimSpace(href)
	switch {
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimRight(origin, "/") + href
	default:
		return href
	}
}

func originOrDefault(origin string) string {
	if origin == "" {
		return config.SiteOrigin
	}
	return origin
}
