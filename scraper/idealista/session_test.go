package idealista

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/storage"
)

var lisbonSale = models.Query{Operation: "sale", PropertyType: "apartments", City: "lisbon"}

const (
	searchURL = testOrigin + "/en/comprar-casas/lisboa/"
	page2URL  = testOrigin + "/en/comprar-casas/lisboa/pagina-2"
	page3URL  = testOrigin + "/en/comprar-casas/lisboa/pagina-3"
)

func addListings(site *fakeSite, hrefs []string) {
	for _, h := range hrefs {
		site.add(testOrigin+h, listingPage("Apartamento T2", "T2, 1 bathroom, apartment", "Energy Rating: C"))
	}
}

func newRecordSession(site *fakeSite, cfg SessionConfig) (*Session, *storage.Collector) {
	logger := quietLogger()
	collector := storage.NewCollector()
	handler := NewRecordHandler(
		NewFieldExtractor(testWaits, logger),
		NewFeatureParser(testWaits, logger),
		NewRecordAssembler(fixedClock),
		collector,
		logger,
	)
	return newSession(site, cfg, handler), collector
}

func newSession(site page.Fetcher, cfg SessionConfig, handler ListingHandler) *Session {
	logger := quietLogger()
	return NewSession(cfg, site,
		NewPaginator(testOrigin, testWaits, logger),
		NewLinkHarvester(testOrigin, testWaits, logger),
		handler, logger)
}

func TestSessionCrawlsAllPages(t *testing.T) {
	site := newFakeSite()
	first, second := listingURLs(0, 5), listingURLs(5, 3)
	site.add(searchURL, listPage(first, "/en/comprar-casas/lisboa/pagina-2"))
	site.add(page2URL, listPage(second, ""))
	addListings(site, first)
	addListings(site, second)

	s, collector := newRecordSession(site, SessionConfig{MaxPages: 10, Workers: 1})
	res := s.Run(context.Background(), lisbonSale, searchURL)

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.Final)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 8, res.NewRecords)
	assert.Equal(t, 8, res.TotalRecords)
	assert.Equal(t, 8, s.State().ProcessedLinks.Size())
	assert.Equal(t, 1, site.loadCount(searchURL), "the list page is read once per visit")

	records := collector.Records()
	require.Len(t, records, 8)
	assert.Equal(t, "33000000", records[0].ListingID)
	assert.Equal(t, "lisbon", records[0].City)
	assert.Equal(t, "C", records[0].EnergyCertificate)
	assert.Equal(t, intPtr(2), records[0].Bedrooms)
}

func TestSessionParallelWorkers(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 12)
	site.add(searchURL, listPage(links, ""))
	addListings(site, links)

	s, collector := newRecordSession(site, SessionConfig{MaxPages: 1, Workers: 4})
	res := s.Run(context.Background(), lisbonSale, searchURL)

	require.NoError(t, res.Err)
	assert.Equal(t, 12, res.TotalRecords)
	assert.Len(t, collector.Records(), 12)
}

func TestSessionStopsOnRepeatedPage(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 2)
	site.add(searchURL, listPage(links, "/en/comprar-casas/lisboa/"))
	addListings(site, links)

	s, _ := newRecordSession(site, SessionConfig{MaxPages: 10})
	res := s.Run(context.Background(), lisbonSale, searchURL)

	assert.NoError(t, res.Err)
	assert.Equal(t, 1, res.Pages)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Equal(t, 1, site.loadCount(searchURL))
}

func TestSessionFollowsNextFromEmptyPage(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 2)
	site.add(searchURL, listPage(nil, "/en/comprar-casas/lisboa/pagina-2"))
	site.add(page2URL, listPage(links, ""))
	addListings(site, links)

	s, _ := newRecordSession(site, SessionConfig{MaxPages: 10})
	res := s.Run(context.Background(), lisbonSale, searchURL)

	assert.NoError(t, res.Err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.TotalRecords)
}

func TestSessionHonoursPageCeiling(t *testing.T) {
	site := newFakeSite()
	site.add(searchURL, listPage(listingURLs(0, 1), "/en/comprar-casas/lisboa/pagina-2"))
	site.add(page2URL, listPage(listingURLs(1, 1), "/en/comprar-casas/lisboa/pagina-3"))
	site.add(page3URL, listPage(listingURLs(2, 1), ""))
	addListings(site, listingURLs(0, 3))

	s, _ := newRecordSession(site, SessionConfig{MaxPages: 2})
	res := s.Run(context.Background(), lisbonSale, searchURL)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Zero(t, site.loadCount(page3URL))
}

func TestSessionIsolatesListingFailures(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 4)
	site.add(searchURL, listPage(links, ""))
	addListings(site, []string{links[0], links[1], links[3]})

	s, collector := newRecordSession(site, SessionConfig{MaxPages: 1})
	res := s.Run(context.Background(), lisbonSale, searchURL)

	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.NewRecords)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, collector.Records(), 3)
	assert.False(t, s.State().ProcessedLinks.Contains(testOrigin+links[2]),
		"a failed listing stays eligible for a later visit")
}

func TestSessionSkipsProcessedLinksAcrossSearches(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 3)
	porto := testOrigin + "/en/comprar-casas/porto/"
	site.add(searchURL, listPage(links, ""))
	site.add(porto, listPage(append(links[1:], listingURLs(3, 1)...), ""))
	addListings(site, listingURLs(0, 4))

	s, _ := newRecordSession(site, SessionConfig{MaxPages: 1})
	s.Run(context.Background(), lisbonSale, searchURL)
	res := s.Run(context.Background(), models.Query{Operation: "sale", PropertyType: "apartments", City: "porto"}, porto)

	assert.Equal(t, 1, res.NewRecords)
	assert.Equal(t, 4, res.TotalRecords)
	assert.Equal(t, 1, site.loadCount(testOrigin+links[1]))
}

func TestSessionListPageFailure(t *testing.T) {
	s, _ := newRecordSession(newFakeSite(), SessionConfig{MaxPages: 3})
	res := s.Run(context.Background(), lisbonSale, searchURL)

	assert.Error(t, res.Err)
	assert.False(t, errors.Is(res.Err, ErrSessionCancelled))
	assert.Equal(t, StateDone, res.Final)
	assert.Zero(t, res.TotalRecords)
}

// cancellingHandler cancels the run after the first listing.
type cancellingHandler struct {
	once   sync.Once
	cancel context.CancelFunc
	mu     sync.Mutex
	seen   int
}

func (h *cancellingHandler) HandleListing(ctx context.Context, q models.Query, ref models.ListingRef, pg page.Page) error {
	h.mu.Lock()
	h.seen++
	h.mu.Unlock()
	h.once.Do(h.cancel)
	return ctx.Err()
}

func TestSessionCancellation(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 5)
	site.add(searchURL, listPage(links, "/en/comprar-casas/lisboa/pagina-2"))
	site.add(page2URL, listPage(listingURLs(5, 5), ""))
	addListings(site, listingURLs(0, 10))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := &cancellingHandler{cancel: cancel}

	s := newSession(site, SessionConfig{MaxPages: 10, Workers: 1}, h)
	res := s.Run(ctx, lisbonSale, searchURL)

	assert.ErrorIs(t, res.Err, ErrSessionCancelled)
	assert.Equal(t, StateDone, res.Final)
	assert.LessOrEqual(t, h.seen, 2)
	assert.Equal(t, h.seen, res.TotalRecords, "in-flight listings complete despite cancellation")
	assert.Zero(t, site.loadCount(page2URL))
}

// cancelOnNextPage serves site but cancels the run when the paginator reads
// the first list page.
type cancelOnNextPage struct {
	*fakeSite
	cancel context.CancelFunc
}

func (f *cancelOnNextPage) Load(ctx context.Context, url string) (page.Page, error) {
	p, err := f.fakeSite.Load(ctx, url)
	if err != nil || url != searchURL {
		return p, err
	}
	return &cancellingPage{Page: p, cancel: f.cancel}, nil
}

type cancellingPage struct {
	page.Page
	cancel context.CancelFunc
}

func (p *cancellingPage) Attr(ctx context.Context, loc page.Locator, name string, wait time.Duration) (string, error) {
	p.cancel()
	return "", ctx.Err()
}

func TestSessionCancelledWhilePaginating(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 2)
	site.add(searchURL, listPage(links, "/en/comprar-casas/lisboa/pagina-2"))
	site.add(page2URL, listPage(listingURLs(2, 2), ""))
	addListings(site, listingURLs(0, 4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := newRecordSession(site, SessionConfig{MaxPages: 10})
	s.fetcher = &cancelOnNextPage{fakeSite: site, cancel: cancel}

	res := s.Run(ctx, lisbonSale, searchURL)

	assert.ErrorIs(t, res.Err, ErrSessionCancelled)
	assert.Equal(t, StateDone, res.Final)
	assert.Equal(t, 2, res.TotalRecords)
	assert.Zero(t, site.loadCount(page2URL))
}

// cancelOnLoad cancels the run when url is requested and fails that load with
// the context's error, as a browser fetcher does.
type cancelOnLoad struct {
	*fakeSite
	url    string
	cancel context.CancelFunc
}

func (f *cancelOnLoad) Load(ctx context.Context, url string) (page.Page, error) {
	if url == f.url {
		f.cancel()
		return nil, ctx.Err()
	}
	return f.fakeSite.Load(ctx, url)
}

func TestSessionCancelledWhileLoadingListPage(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 2)
	site.add(searchURL, listPage(links, "/en/comprar-casas/lisboa/pagina-2"))
	site.add(page2URL, listPage(listingURLs(2, 2), ""))
	addListings(site, listingURLs(0, 4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, _ := newRecordSession(site, SessionConfig{MaxPages: 10})
	s.fetcher = &cancelOnLoad{fakeSite: site, url: page2URL, cancel: cancel}

	res := s.Run(ctx, lisbonSale, searchURL)

	assert.ErrorIs(t, res.Err, ErrSessionCancelled)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 2, res.TotalRecords)
}

// panickingHandler panics on one listing and records the rest.
type panickingHandler struct {
	ListingHandler
	id string
}

func (h *panickingHandler) HandleListing(ctx context.Context, q models.Query, ref models.ListingRef, pg page.Page) error {
	if ref.ListingID == h.id {
		panic("selector table out of range")
	}
	return h.ListingHandler.HandleListing(ctx, q, ref, pg)
}

func TestSessionRecoversListingPanic(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 4)
	site.add(searchURL, listPage(links, ""))
	addListings(site, links)

	logger := quietLogger()
	collector := storage.NewCollector()
	records := NewRecordHandler(
		NewFieldExtractor(testWaits, logger),
		NewFeatureParser(testWaits, logger),
		NewRecordAssembler(fixedClock),
		collector,
		logger,
	)
	s := newSession(site, SessionConfig{MaxPages: 1, Workers: 2},
		&panickingHandler{ListingHandler: records, id: "33000002"})

	var res Result
	require.NotPanics(t, func() { res = s.Run(context.Background(), lisbonSale, searchURL) })

	assert.NoError(t, res.Err)
	assert.Equal(t, 3, res.NewRecords)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, collector.Records(), 3)
	assert.False(t, s.State().ProcessedLinks.Contains(testOrigin+links[2]))
}

func TestArchiveRoundTrip(t *testing.T) {
	site := newFakeSite()
	links := listingURLs(0, 3)
	site.add(searchURL, listPage(links, ""))
	addListings(site, links)

	dir := t.TempDir()
	archive := storage.NewHTMLArchive(dir)
	s := newSession(site, SessionConfig{MaxPages: 1}, NewArchiveHandler(archive, quietLogger()))
	res := s.Run(context.Background(), lisbonSale, searchURL)
	require.NoError(t, res.Err)
	require.Equal(t, 3, res.TotalRecords)

	logger := quietLogger()
	collector := storage.NewCollector()
	handler := NewRecordHandler(
		NewFieldExtractor(testWaits, logger),
		NewFeatureParser(testWaits, logger),
		NewRecordAssembler(fixedClock),
		collector,
		logger,
	)
	n, err := NewArchiveExtractor(testOrigin, handler, logger).ExtractArchive(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records := collector.Records()
	require.Len(t, records, 3)
	ids := map[string]bool{}
	for _, r := range records {
		ids[r.ListingID] = true
		assert.Equal(t, lisbonSale.City, r.City)
		assert.Equal(t, testOrigin+"/imovel/"+r.ListingID+"/", r.URL)
		assert.Equal(t, "Apartamento T2", r.Title)
	}
	assert.True(t, ids["33000001"])
}

func TestArchiveRoundTripKeepsDevelopmentURL(t *testing.T) {
	site := newFakeSite()
	links := []string{"/empreendimento/777/", "/imovel/33000000/"}
	site.add(searchURL, listPage(links, ""))
	addListings(site, links)

	dir := t.TempDir()
	s := newSession(site, SessionConfig{MaxPages: 1}, NewArchiveHandler(storage.NewHTMLArchive(dir), quietLogger()))
	require.NoError(t, s.Run(context.Background(), lisbonSale, searchURL).Err)

	logger := quietLogger()
	collector := storage.NewCollector()
	handler := NewRecordHandler(
		NewFieldExtractor(testWaits, logger),
		NewFeatureParser(testWaits, logger),
		NewRecordAssembler(fixedClock),
		collector,
		logger,
	)
	n, err := NewArchiveExtractor(testOrigin, handler, logger).ExtractArchive(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	urls := map[string]string{}
	for _, r := range collector.Records() {
		urls[r.ListingID] = r.URL
	}
	assert.Equal(t, testOrigin+"/empreendimento/777/", urls["777"])
	assert.Equal(t, testOrigin+"/imovel/33000000/", urls["33000000"])
}

// untitledPage fails Title like a browser tab that closed early.
type untitledPage struct{ page.Page }

func (untitledPage) Title(context.Context) (string, error) {
	return "", errors.New("target closed")
}

func TestArchiveHandlerSavesWithoutTitle(t *testing.T) {
	doc, err := page.NewDocument(testOrigin+"/imovel/42/", listingPage("Moradia", "", ""))
	require.NoError(t, err)

	archive := storage.NewHTMLArchive(t.TempDir())
	ref := models.NewListingRef(testOrigin + "/imovel/42/")
	err = NewArchiveHandler(archive, quietLogger()).HandleListing(context.Background(), lisbonSale, ref, untitledPage{doc})
	require.NoError(t, err)
	assert.FileExists(t, archive.PathFor(lisbonSale, ref))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "FETCH_LIST_PAGE", StateFetchListPage.String())
	assert.Equal(t, "DONE", StateDone.String())
	assert.Equal(t, "State(42)", State(42).String())
}
