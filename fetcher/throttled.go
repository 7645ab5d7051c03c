// Package fetcher provides the page fetchers used by the scraper: a headless
// Chrome fetcher, a plain HTTP fetcher and a rate-limiting wrapper.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"idealista-scraper/page"
	"idealista-scraper/utils"
)

// Throttled caps the request rate and the number of in-flight loads of the
// wrapped fetcher and adds a random pause before each load. It is shared by
// every worker of a run.
type Throttled struct {
	next     page.Fetcher
	limiter  *rate.Limiter
	inFlight *semaphore.Weighted
	minDelay time.Duration
	maxDelay time.Duration
}

// NewThrottled allows at most one load per interval (no limit when interval
// is zero) and at most maxInFlight loads at once (values below 1 mean 1). It
// sleeps a random duration in [minDelay, maxDelay] before each load.
func NewThrottled(next page.Fetcher, interval time.Duration, maxInFlight int, minDelay, maxDelay time.Duration) *Throttled {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &Throttled{
		next:     next,
		limiter:  rate.NewLimiter(limit, 1),
		inFlight: semaphore.NewWeighted(int64(maxInFlight)),
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

func (t *Throttled) Load(ctx context.Context, url string) (page.Page, error) {
	if err := t.inFlight.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetcher: wait for slot: %w", err)
	}
	defer t.inFlight.Release(1)

	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetcher: rate limit: %w", err)
	}
	if err := utils.Sleep(ctx, utils.Jitter(t.minDelay, t.maxDelay)); err != nil {
		return nil, err
	}
	return t.next.Load(ctx, url)
}

func (t *Throttled) Close() error {
	return t.next.Close()
}
