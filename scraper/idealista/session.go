package idealista

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/utils"
)

// ErrSessionCancelled is reported when the run's context ends before the
// crawl reached its natural end.
var ErrSessionCancelled = errors.New("idealista: session cancelled")

// State is a step of the crawl loop.
type State int

const (
	StateFetchListPage State = iota
	StateHarvestLinks
	StateTryNextPageAnyway
	StateExtractNewLinks
	StateAdvancePage
	StateDone
)

var stateNames = [...]string{
	"FETCH_LIST_PAGE", "HARVEST_LINKS", "TRY_NEXT_PAGE_ANYWAY",
	"EXTRACT_EACH_NEW_LINK", "ADVANCE_PAGE", "DONE",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CrawlState is the per-run bookkeeping of a session.
type CrawlState struct {
	CurrentPageURL string
	PageNumber     int
	ProcessedLinks *utils.URLSet
	TotalRecords   int
}

// SessionConfig parameterises a Session.
type SessionConfig struct {
	// MaxPages is the page ceiling of one search.
	MaxPages int
	// Workers bounds concurrent listing extraction within a page.
	Workers int
	// Retry is applied to page loads. Nil means a single attempt.
	Retry *utils.RetryConfig
}

// Result summarises one search.
type Result struct {
	Query        models.Query
	Pages        int
	NewRecords   int
	Failed       int
	TotalRecords int
	Final        State
	Err          error
}

// Session crawls searches page by page and hands every new listing to its
// handler. The processed-link set and record total span every search the
// session runs; a session is one run.
type Session struct {
	cfg       SessionConfig
	fetcher   page.Fetcher
	paginator *Paginator
	harvester *LinkHarvester
	handler   ListingHandler
	logger    *utils.Logger

	mu    sync.Mutex
	state CrawlState
}

// NewSession creates a session. The fetcher is shared and not closed by the session.
func NewSession(cfg SessionConfig, fetcher page.Fetcher, paginator *Paginator, harvester *LinkHarvester,
	handler ListingHandler, logger *utils.Logger) *Session {
	if cfg.MaxPages < 1 {
		cfg.MaxPages = 1
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Session{
		cfg:       cfg,
		fetcher:   fetcher,
		paginator: paginator,
		harvester: harvester,
		handler:   handler,
		logger:    logger,
		state:     CrawlState{ProcessedLinks: utils.NewURLSet()},
	}
}

// State returns a snapshot of the bookkeeping.
func (s *Session) State() CrawlState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run crawls one search starting at startURL until there is no next page,
// the next page repeats the current one, the page ceiling is reached, or
// ctx ends.
func (s *Session) Run(ctx context.Context, q models.Query, startURL string) Result {
	s.mu.Lock()
	s.state.CurrentPageURL = startURL
	s.state.PageNumber = 1
	s.mu.Unlock()

	res := Result{Query: q}
	s.logger.Info("[session] Starting %s / %s / %s at %s", q.Operation, q.PropertyType, q.City, startURL)

	var (
		list  page.Page
		links []string
	)
	defer func() {
		if list != nil {
			_ = list.Close()
		}
	}()

	state := StateFetchListPage
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("%w: %v", ErrSessionCancelled, err)
			break
		}

		cur := s.State()
		switch state {
		case StateFetchListPage:
			s.logger.Info("[session] PAGE %d: %s", cur.PageNumber, cur.CurrentPageURL)
			p, err := s.load(ctx, cur.CurrentPageURL)
			if err != nil {
				s.logger.Error("[session] List page %d failed: %v", cur.PageNumber, err)
				res.Err = err
				state = StateDone
				continue
			}
			list = p
			state = StateHarvestLinks

		case StateHarvestLinks:
			var err error
			links, err = s.harvester.Harvest(ctx, list)
			if err != nil {
				s.logger.Warn("[session] Harvest failed on page %d: %v", cur.PageNumber, err)
			}
			if len(links) == 0 {
				s.logger.Warn("[session] No listings found on page %d", cur.PageNumber)
				state = StateTryNextPageAnyway
			} else {
				state = StateExtractNewLinks
			}

		case StateExtractNewLinks:
			n, failed, err := s.extractAll(ctx, q, links)
			res.NewRecords += n
			res.Failed += failed
			if err != nil {
				res.Err = err
				state = StateDone
				continue
			}
			state = StateAdvancePage

		case StateTryNextPageAnyway, StateAdvancePage:
			state = s.advance(ctx, list)
			_ = list.Close()
			list = nil
		}
	}

	if err := ctx.Err(); err != nil && !errors.Is(res.Err, ErrSessionCancelled) {
		res.Err = fmt.Errorf("%w: %v", ErrSessionCancelled, err)
	}

	final := s.State()
	res.Pages = final.PageNumber
	res.TotalRecords = final.TotalRecords
	res.Final = StateDone

	if errors.Is(res.Err, ErrSessionCancelled) {
		s.logger.Warn("[session] Cancelled on page %d: %d new listings, %d in total",
			res.Pages, res.NewRecords, res.TotalRecords)
	} else {
		s.logger.Info("[session] DONE after %d pages: %d new listings, %d in total",
			res.Pages, res.NewRecords, res.TotalRecords)
	}
	return res
}

// advance looks for the next page on list and moves the state to it.
func (s *Session) advance(ctx context.Context, list page.Page) State {
	cur := s.State()
	next, ok := s.paginator.Next(ctx, list)
	switch {
	case !ok:
		s.logger.Info("[session] Pagination completed on page %d", cur.PageNumber)
		return StateDone
	case next == cur.CurrentPageURL:
		s.logger.Warn("[session] Next page repeats %s, stopping", next)
		return StateDone
	case cur.PageNumber+1 > s.cfg.MaxPages:
		s.logger.Info("[session] Page limit %d reached", s.cfg.MaxPages)
		return StateDone
	}

	s.mu.Lock()
	s.state.CurrentPageURL = next
	s.state.PageNumber++
	s.mu.Unlock()

	s.logger.Info("[session] Moving to page %d...", cur.PageNumber+1)
	return StateFetchListPage
}

// extractAll processes every link not yet processed. It stops submitting
// work once ctx ends; listings already started run to completion.
func (s *Session) extractAll(ctx context.Context, q models.Query, links []string) (int, int, error) {
	var fresh []string
	for _, l := range links {
		if !s.isProcessed(l) {
			fresh = append(fresh, l)
		}
	}
	s.logger.Info("[session] New listings to process: %d of %d", len(fresh), len(links))

	var (
		mu        sync.Mutex
		succeeded int
		failed    int
	)
	pool := utils.NewWorkerPool(s.cfg.Workers)
	detached := context.WithoutCancel(ctx)

	var cancelled error
	for i, u := range fresh {
		if err := ctx.Err(); err != nil {
			cancelled = fmt.Errorf("%w: %v", ErrSessionCancelled, err)
			break
		}
		i, u := i, u
		pool.Submit(func() {
			if err := s.processListing(detached, q, u); err != nil {
				s.logger.Error("[session] Error processing %s: %v", u, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			total := s.markProcessed(u)
			mu.Lock()
			succeeded++
			mu.Unlock()
			s.logger.Info("[session] Processed %d/%d (total: %d)", i+1, len(fresh), total)
		})
	}
	pool.Wait()

	return succeeded, failed, cancelled
}

// processListing loads one listing and runs the handler on it. A panic is
// turned into an error so it stays within the listing.
func (s *Session) processListing(ctx context.Context, q models.Query, rawURL string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listing %s: panic: %v", rawURL, r)
		}
	}()

	ref := models.NewListingRef(rawURL)
	s.logger.Debug("[session] Processing %s listing %s", ref.Kind(), rawURL)

	p, err := s.load(ctx, rawURL)
	if err != nil {
		return err
	}
	defer p.Close()

	return s.handler.HandleListing(ctx, q, ref, p)
}

func (s *Session) load(ctx context.Context, url string) (page.Page, error) {
	if s.cfg.Retry == nil {
		return s.fetcher.Load(ctx, url)
	}

	var p page.Page
	err := s.cfg.Retry.Do(ctx, "load "+url, func() error {
		var err error
		p, err = s.fetcher.Load(ctx, url)
		return err
	})
	return p, err
}

func (s *Session) isProcessed(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ProcessedLinks.Contains(url)
}

// markProcessed records a successful extraction and returns the new total.
func (s *Session) markProcessed(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.ProcessedLinks.Add(url) {
		s.state.TotalRecords++
	}
	return s.state.TotalRecords
}
