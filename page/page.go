// Package page defines the rendered-page capability the scraper works against
// and a static implementation of it backed by goquery.
package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a locator matches nothing within its wait.
var ErrNotFound = errors.New("page: element not found")

// Locator selects elements either by CSS selector or by a case-sensitive
// substring match against an element's own text.
type Locator struct {
	CSS      string
	Tag      string
	Contains []string
}

// CSS returns a selector locator.
func CSS(selector string) Locator {
	return Locator{CSS: selector}
}

// TextContains returns a locator matching tag elements (any element when tag
// is empty) whose own text contains one of the substrings.
func TextContains(tag string, substrings ...string) Locator {
	return Locator{Tag: tag, Contains: substrings}
}

// IsText reports whether l is a text-contains locator.
func (l Locator) IsText() bool {
	return l.CSS == "" && len(l.Contains) > 0
}

// XPath renders a text-contains locator as an XPath expression.
func (l Locator) XPath() string {
	tag := l.Tag
	if tag == "" {
		tag = "*"
	}
	conds := make([]string, 0, len(l.Contains))
	for _, s := range l.Contains {
		conds = append(conds, fmt.Sprintf("contains(text(), %s)", xpathLiteral(s)))
	}
	return fmt.Sprintf("//%s[%s]", tag, strings.Join(conds, " or "))
}

func (l Locator) String() string {
	if l.IsText() {
		return l.XPath()
	}
	return l.CSS
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	return `"` + s + `"`
}

// Page is a loaded page. Text values are the trimmed raw textContent of the
// element, so content hidden by the site's layout is still readable.
type Page interface {
	URL() string
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)

	// Text returns the text of the first element matching loc, waiting up to
	// wait for it to appear.
	Text(ctx context.Context, loc Locator, wait time.Duration) (string, error)
	// Attr returns an attribute of the first element matching loc. A matched
	// element without the attribute yields "" and a nil error.
	Attr(ctx context.Context, loc Locator, name string, wait time.Duration) (string, error)
	// Texts returns the text of every element currently matching loc.
	Texts(ctx context.Context, loc Locator) ([]string, error)
	// ChildAttrs waits for container elements and returns, per container in
	// document order, the attribute of its first child match or "".
	ChildAttrs(ctx context.Context, container, child Locator, name string, wait time.Duration) ([]string, error)

	Close() error
}

// Fetcher loads pages. Load returns once the document body is present.
type Fetcher interface {
	Load(ctx context.Context, url string) (Page, error)
	Close() error
}
