package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"idealista-scraper/page"
)

// HTTPConfig holds configuration for the colly fetcher.
type HTTPConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// HTTP fetches pages without rendering them. It is useful for offline
// fixtures and for pages served without client-side rendering.
type HTTP struct {
	collector *colly.Collector
}

// NewHTTP creates a colly-backed fetcher.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	c.IgnoreRobotsTxt = true
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	return &HTTP{collector: c}
}

// Load fetches url and parses the response into a static page.
func (h *HTTP) Load(ctx context.Context, url string) (page.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := h.collector.Clone()

	var (
		body     []byte
		finalURL = url
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL.String()
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("http: visit %s: %w", url, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("http: fetch %s: %w", url, fetchErr)
	}
	if body == nil {
		return nil, fmt.Errorf("http: fetch %s: empty response", url)
	}

	doc, err := page.NewDocumentFromReader(finalURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (h *HTTP) Close() error { return nil }
