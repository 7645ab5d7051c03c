package idealista

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"idealista-scraper/page"
	"idealista-scraper/utils"
)

const testOrigin = "https://www.idealista.pt"

var testWaits = Waits{}

func quietLogger() *utils.Logger {
	return utils.NewLoggerTo(io.Discard)
}

// fakeSite serves fixed HTML by URL and counts loads.
type fakeSite struct {
	mu    sync.Mutex
	pages map[string]string
	loads map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{pages: map[string]string{}, loads: map[string]int{}}
}

func (s *fakeSite) add(url, html string) {
	s.pages[url] = html
}

func (s *fakeSite) Load(ctx context.Context, url string) (page.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.loads[url]++
	html, ok := s.pages[url]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fake: %s returned status 404", url)
	}
	return page.NewDocument(url, html)
}

func (s *fakeSite) Close() error { return nil }

func (s *fakeSite) loadCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[url]
}

// listPage renders a search results page with one article per href and an
// optional pagination link.
func listPage(hrefs []string, next string) string {
	var b strings.Builder
	b.WriteString("<html><body><main>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<article class="item"><a class="item-link" href="%s">Listing</a></article>`, h)
	}
	if next != "" {
		fmt.Fprintf(&b, `<div class="pagination"><ul><li class="next"><a href="%s">Next</a></li></ul></div>`, next)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func listingPage(title, features, description string) string {
	return fmt.Sprintf(`<html><head><title>%[1]s</title></head><body>
<h1><span class="main-info__title-main">%[1]s</span></h1>
<span class="main-info__title-minor">Arroios, Lisboa</span>
<span class="info-data-price">350,000 €</span>
<div class="info-features"><span>110 m² área bruta</span></div>
<div class="details-property_features">%[2]s</div>
<div class="adCommentsLanguage">%[3]s</div>
<p class="stats-text">Updated 3 days ago</p>
<div class="professional-name"><span class="name">Casa Lisboa Imobiliária</span></div>
</body></html>`, title, features, description)
}

func listingURLs(from, n int) []string {
	out := make([]string, 0, n)
	for i := from; i < from+n; i++ {
		out = append(out, fmt.Sprintf("/imovel/%d/", 33000000+i))
	}
	return out
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
}
