package idealista

import (
	"context"
	"errors"
	"time"

	"idealista-scraper/page"
	"idealista-scraper/utils"
)

// nextStrategy is one way of finding the "next" control on a list page.
type nextStrategy struct {
	name string
	loc  page.Locator
	wait time.Duration
}

func nextStrategies(w Waits) []nextStrategy {
	return []nextStrategy{
		{name: "pagination-next", loc: page.CSS("li.next a"), wait: w.NextPrimary},
		{name: "arrow-right", loc: page.CSS("a.icon-arrow-right-after"), wait: w.NextFallback},
		{name: "next-text", loc: page.TextContains("a", "Next", "Seguinte"), wait: w.NextFallback},
	}
}

// Paginator finds the URL of the page after the current list page.
type Paginator struct {
	origin     string
	strategies []nextStrategy
	logger     *utils.Logger
}

// NewPaginator creates a Paginator resolving relative links against origin.
func NewPaginator(origin string, waits Waits, logger *utils.Logger) *Paginator {
	return &Paginator{
		origin:     originOrDefault(origin),
		strategies: nextStrategies(waits),
		logger:     logger,
	}
}

// Next tries each strategy in order and returns the first usable link
// target. Finding none is the normal end of the results, not an error.
func (p *Paginator) Next(ctx context.Context, pg page.Page) (string, bool) {
	for _, s := range p.strategies {
		href, err := pg.Attr(ctx, s.loc, "href", s.wait)
		switch {
		case err == nil && href != "":
			next := resolveURL(p.origin, href)
			p.logger.Debug("[paginator] Next page found via %s: %s", s.name, next)
			return next, true
		case err == nil:
			p.logger.Debug("[paginator] %s matched an element without href", s.name)
		case errors.Is(err, page.ErrNotFound):
			p.logger.Debug("[paginator] %s: no match", s.name)
		default:
			p.logger.Warn("[paginator] %s failed: %v", s.name, err)
			if ctx.Err() != nil {
				return "", false
			}
		}
	}

	p.logger.Info("[paginator] Could not find the next page")
	return "", false
}
