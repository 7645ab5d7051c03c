package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"idealista-scraper/models"
)

// HTMLArchive stores raw listing pages under
// {runPath}/{operation}/{property_type}/{city}/listings/{listing_id}.html.
type HTMLArchive struct {
	runPath string
}

// NewHTMLArchive creates an archive rooted at runPath.
func NewHTMLArchive(runPath string) *HTMLArchive {
	return &HTMLArchive{runPath: runPath}
}

// Root returns the archive's run directory.
func (a *HTMLArchive) Root() string {
	return a.runPath
}

// PathFor returns where the page of ref found under q is stored.
func (a *HTMLArchive) PathFor(q models.Query, ref models.ListingRef) string {
	return filepath.Join(a.runPath, q.Operation, q.PropertyType, q.City, "listings", ref.ListingID+".html")
}

// Save writes html for ref and returns the file path. The listing URL is
// kept next to the page in a {listing_id}.url file.
func (a *HTMLArchive) Save(q models.Query, ref models.ListingRef, html string) (string, error) {
	path := a.PathFor(q, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("archive: create dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("archive: write %q: %w", path, err)
	}
	if err := os.WriteFile(sourcePath(path), []byte(ref.URL+"\n"), 0644); err != nil {
		return "", fmt.Errorf("archive: write source of %q: %w", path, err)
	}
	return path, nil
}

// SourceURL returns the listing URL recorded for the archived page at path.
func SourceURL(path string) (string, error) {
	data, err := os.ReadFile(sourcePath(path))
	if err != nil {
		return "", fmt.Errorf("archive: read source of %q: %w", path, err)
	}
	url := strings.TrimSpace(string(data))
	if url == "" {
		return "", fmt.Errorf("archive: empty source for %q", path)
	}
	return url, nil
}

func sourcePath(htmlPath string) string {
	return strings.TrimSuffix(htmlPath, filepath.Ext(htmlPath)) + ".url"
}
