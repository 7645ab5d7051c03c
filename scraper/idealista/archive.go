package idealista

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/storage"
	"idealista-scraper/utils"
)

// ArchiveExtractor replays archived listing pages through a ListingHandler.
type ArchiveExtractor struct {
	origin  string
	handler ListingHandler
	logger  *utils.Logger
}

// NewArchiveExtractor creates an extractor for pages saved by ArchiveHandler.
func NewArchiveExtractor(origin string, handler ListingHandler, logger *utils.Logger) *ArchiveExtractor {
	return &ArchiveExtractor{origin: originOrDefault(origin), handler: handler, logger: logger}
}

// ExtractArchive walks dir for {operation}/{property_type}/{city}/listings/{id}.html
// files and hands each parsed page to the handler. The listing URL comes from
// the page's .url file, or is rebuilt as a standard listing URL when that is
// missing. Files that fail are logged and skipped; the count of handled pages
// is returned.
func (a *ArchiveExtractor) ExtractArchive(ctx context.Context, dir string) (int, error) {
	handled := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || filepath.Ext(path) != ".html" {
			return nil
		}

		q, id, ok := archiveQuery(dir, path)
		if !ok {
			a.logger.Debug("[archive] Skipping %s: not in listings layout", path)
			return nil
		}

		if err := a.extractFile(ctx, q, id, path); err != nil {
			a.logger.Error("[archive] %s: %v", path, err)
			return nil
		}
		handled++
		return nil
	})
	if err != nil {
		return handled, fmt.Errorf("archive: walk %s: %w", dir, err)
	}

	a.logger.Info("[archive] Extracted %d archived listings from %s", handled, dir)
	return handled, nil
}

func (a *ArchiveExtractor) extractFile(ctx context.Context, q models.Query, id, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	url, err := storage.SourceURL(path)
	if err != nil {
		url = fmt.Sprintf("%s/imovel/%s/", strings.TrimRight(a.origin, "/"), id)
		a.logger.Debug("[archive] %v, assuming %s", err, url)
	}
	doc, err := page.NewDocumentFromReader(url, f)
	if err != nil {
		return err
	}
	defer doc.Close()

	return a.handler.HandleListing(ctx, q, models.NewListingRef(url), doc)
}

// archiveQuery recovers the search and listing id from an archived file path.
func archiveQuery(root, path string) (models.Query, string, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return models.Query{}, "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	n := len(parts)
	if n < 5 || parts[n-2] != "listings" {
		return models.Query{}, "", false
	}

	q := models.Query{Operation: parts[n-5], PropertyType: parts[n-4], City: parts[n-3]}
	return q, strings.TrimSuffix(parts[n-1], ".html"), true
}
