package page

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Document is a Page over static HTML. Waits are ignored because the content
// never changes after parsing.
type Document struct {
	url string
	doc *goquery.Document
}

// NewDocument parses html as the page found at url.
func NewDocument(url, html string) (*Document, error) {
	return NewDocumentFromReader(url, strings.NewReader(html))
}

// NewDocumentFromReader parses the HTML read from r.
func NewDocumentFromReader(url string, r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("page: parse %s: %w", url, err)
	}
	return &Document{url: url, doc: doc}, nil
}

func (d *Document) URL() string { return d.url }

func (d *Document) Title(ctx context.Context) (string, error) {
	return strings.TrimSpace(d.doc.Find("title").First().Text()), nil
}

func (d *Document) HTML(ctx context.Context) (string, error) {
	return d.doc.Html()
}

func (d *Document) Text(ctx context.Context, loc Locator, wait time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sel := find(d.doc.Selection, loc).First()
	if sel.Length() == 0 {
		return "", ErrNotFound
	}
	return strings.TrimSpace(sel.Text()), nil
}

func (d *Document) Attr(ctx context.Context, loc Locator, name string, wait time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sel := find(d.doc.Selection, loc).First()
	if sel.Length() == 0 {
		return "", ErrNotFound
	}
	val, _ := sel.Attr(name)
	return strings.TrimSpace(val), nil
}

func (d *Document) Texts(ctx context.Context, loc Locator) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	find(d.doc.Selection, loc).Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out, nil
}

func (d *Document) ChildAttrs(ctx context.Context, container, child Locator, name string, wait time.Duration) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	containers := find(d.doc.Selection, container)
	if containers.Length() == 0 {
		return nil, ErrNotFound
	}

	out := make([]string, 0, containers.Length())
	containers.Each(func(_ int, c *goquery.Selection) {
		val, _ := find(c, child).First().Attr(name)
		out = append(out, strings.TrimSpace(val))
	})
	return out, nil
}

func (d *Document) Close() error { return nil }

// find resolves loc beneath root. Text locators look only at an element's own
// text nodes, matching the XPath contains(text(), ...) the browser uses.
func find(root *goquery.Selection, loc Locator) *goquery.Selection {
	if !loc.IsText() {
		return root.Find(loc.CSS)
	}

	tag := loc.Tag
	if tag == "" {
		tag = "*"
	}
	return root.Find(tag).FilterFunction(func(_ int, s *goquery.Selection) bool {
		own := ownText(s)
		for _, sub := range loc.Contains {
			if strings.Contains(own, sub) {
				return true
			}
		}
		return false
	})
}

func ownText(s *goquery.Selection) string {
	var b strings.Builder
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			b.WriteString(c.Text())
		}
	})
	return b.String()
}
