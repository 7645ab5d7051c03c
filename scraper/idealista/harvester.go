package idealista

import (
	"context"
	"errors"
	"fmt"

	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/utils"
)

// LinkHarvester collects listing URLs from a list page.
type LinkHarvester struct {
	origin string
	waits  Waits
	logger *utils.Logger
}

// NewLinkHarvester creates a harvester resolving relative links against origin.
func NewLinkHarvester(origin string, waits Waits, logger *utils.Logger) *LinkHarvester {
	return &LinkHarvester{origin: originOrDefault(origin), waits: waits, logger: logger}
}

// Harvest returns the absolute listing URLs found in the page's listing
// containers, deduplicated in order of first appearance. Containers without
// a link are skipped. A page without containers yields no URLs and no error.
func (h *LinkHarvester) Harvest(ctx context.Context, pg page.Page) ([]string, error) {
	hrefs, err := pg.ChildAttrs(ctx, listingContainer, listingLink, "href", h.waits.Containers)
	if errors.Is(err, page.ErrNotFound) {
		h.logger.Info("[harvester] No listing containers on %s", pg.URL())
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("harvest %s: %w", pg.URL(), err)
	}

	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if href == "" {
			continue
		}
		links = append(links, resolveURL(h.origin, href))
	}
	links = utils.Dedup(links)

	var standard, development int
	for _, l := range links {
		switch models.ClassifyURL(l) {
		case models.KindStandard:
			standard++
		case models.KindDevelopment:
			development++
		}
	}

	h.logger.Info("[harvester] %d containers, %d unique links (%d regular, %d developments)",
		len(hrefs), len(links), standard, development)
	for i, l := range links {
		if i == 2 {
			break
		}
		h.logger.Debug("[harvester] Example %d: %s", i+1, l)
	}

	return links, nil
}
