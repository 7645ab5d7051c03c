package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"idealista-scraper/page"
	"idealista-scraper/utils"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: function() { return undefined; }})`
)

// BrowserConfig holds configuration for the chromedp fetcher.
type BrowserConfig struct {
	ChromeBin   string
	UserAgent   string
	BodyTimeout time.Duration
	Headless    bool
}

// Browser loads pages in headless Chrome, one tab per page.
type Browser struct {
	cfg    BrowserConfig
	logger *utils.Logger

	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
}

// NewBrowser starts a Chrome instance configured to look like a regular desktop browser.
func NewBrowser(cfg BrowserConfig, logger *utils.Logger) (*Browser, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.BodyTimeout == 0 {
		cfg.BodyTimeout = 20 * time.Second
	}

	chromeBin := cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-extensions", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("browser: start: %w", err)
	}

	return &Browser{
		cfg:           cfg,
		logger:        logger,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
	}, nil
}

// Load opens url in a new tab and waits for the body element.
func (b *Browser) Load(ctx context.Context, url string) (page.Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)

	// The first Run allocates the tab; it must not carry a timeout or the tab
	// would die with it.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}

	loadCtx, cancel := scoped(ctx, tabCtx, b.cfg.BodyTimeout)
	defer cancel()

	err := chromedp.Run(loadCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		cancelTab()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser: load %s: %w", url, err)
	}

	return &browserPage{url: url, ctx: tabCtx, cancel: cancelTab}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

// scoped derives a chromedp context from tabCtx that also ends when ctx ends
// or after timeout.
func scoped(ctx, tabCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		c      context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		c, cancel = context.WithTimeout(tabCtx, timeout)
	} else {
		c, cancel = context.WithCancel(tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

type browserPage struct {
	url    string
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *browserPage) URL() string { return p.url }

func (p *browserPage) Title(ctx context.Context) (string, error) {
	c, cancel := scoped(ctx, p.ctx, 0)
	defer cancel()

	var title string
	if err := chromedp.Run(c, chromedp.Title(&title)); err != nil {
		return "", p.fault(ctx, err)
	}
	return strings.TrimSpace(title), nil
}

func (p *browserPage) HTML(ctx context.Context) (string, error) {
	c, cancel := scoped(ctx, p.ctx, 0)
	defer cancel()

	var html string
	if err := chromedp.Run(c, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", p.fault(ctx, err)
	}
	return html, nil
}

func (p *browserPage) Text(ctx context.Context, loc page.Locator, wait time.Duration) (string, error) {
	c, cancel := scoped(ctx, p.ctx, wait)
	defer cancel()

	var text string
	if err := chromedp.Run(c, chromedp.TextContent(selector(loc), &text, by(loc))); err != nil {
		return "", p.miss(ctx, c, err)
	}
	return strings.TrimSpace(text), nil
}

func (p *browserPage) Attr(ctx context.Context, loc page.Locator, name string, wait time.Duration) (string, error) {
	c, cancel := scoped(ctx, p.ctx, wait)
	defer cancel()

	var (
		val string
		ok  bool
	)
	if err := chromedp.Run(c, chromedp.AttributeValue(selector(loc), name, &val, &ok, by(loc))); err != nil {
		return "", p.miss(ctx, c, err)
	}
	return strings.TrimSpace(val), nil
}

func (p *browserPage) Texts(ctx context.Context, loc page.Locator) ([]string, error) {
	c, cancel := scoped(ctx, p.ctx, 0)
	defer cancel()

	js := fmt.Sprintf(`%s.map(function(e) { return (e.textContent || '').trim(); })`, jsQueryAll(loc, "document"))

	var texts []string
	if err := chromedp.Run(c, chromedp.Evaluate(js, &texts)); err != nil {
		return nil, p.fault(ctx, err)
	}
	return texts, nil
}

func (p *browserPage) ChildAttrs(ctx context.Context, container, child page.Locator, name string, wait time.Duration) ([]string, error) {
	c, cancel := scoped(ctx, p.ctx, wait)
	defer cancel()

	if err := chromedp.Run(c, chromedp.WaitReady(selector(container), by(container))); err != nil {
		return nil, p.miss(ctx, c, err)
	}

	attr, _ := json.Marshal(name)
	js := fmt.Sprintf(`%s.map(function(c) {
		var found = %s;
		var el = found.length ? found[0] : null;
		return el ? (el.getAttribute(%s) || '').trim() : '';
	})`, jsQueryAll(container, "document"), jsQueryAll(child, "c"), attr)

	var attrs []string
	if err := chromedp.Run(c, chromedp.Evaluate(js, &attrs)); err != nil {
		return nil, p.fault(ctx, err)
	}
	return attrs, nil
}

func (p *browserPage) Close() error {
	p.cancel()
	return nil
}

// miss maps a timed-out wait to page.ErrNotFound.
func (p *browserPage) miss(ctx, c context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(c.Err(), context.DeadlineExceeded) {
		return page.ErrNotFound
	}
	return fmt.Errorf("browser: %s: %w", p.url, err)
}

func (p *browserPage) fault(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("browser: %s: %w", p.url, err)
}

func selector(loc page.Locator) string {
	if loc.IsText() {
		return loc.XPath()
	}
	return loc.CSS
}

func by(loc page.Locator) chromedp.QueryOption {
	if loc.IsText() {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// jsQueryAll renders a JS expression evaluating to an array of the elements
// matching loc beneath the JS value root.
func jsQueryAll(loc page.Locator, root string) string {
	if !loc.IsText() {
		css, _ := json.Marshal(loc.CSS)
		return fmt.Sprintf(`Array.from(%s.querySelectorAll(%s))`, root, css)
	}

	xpath, _ := json.Marshal("." + loc.XPath())
	return fmt.Sprintf(`(function(root) {
		var snap = document.evaluate(%s, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		var out = [];
		for (var i = 0; i < snap.snapshotLength; i++) { out.push(snap.snapshotItem(i)); }
		return out;
	})(%s)`, xpath, root)
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
