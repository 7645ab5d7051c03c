package idealista

import (
	"context"
	"errors"
	"fmt"
	"time"

	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/utils"
)

// Field is one of the basic fields read from a listing page.
type Field int

const (
	FieldTitle Field = iota
	FieldPrice
	FieldArea
	FieldLocation
	FieldDescription
)

var fieldNames = [...]string{"title", "price", "area", "location", "description"}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// fieldLocators holds the single primary locator of every field.
var fieldLocators = map[Field]page.Locator{
	FieldTitle:       page.CSS(".main-info__title-main"),
	FieldPrice:       page.CSS(".info-data-price"),
	FieldArea:        page.TextContains("", "m²"),
	FieldLocation:    page.CSS(".main-info__title-minor"),
	FieldDescription: page.CSS(".adCommentsLanguage"),
}

const (
	descriptionLimit = 200
	ellipsis         = "..."
)

// FieldExtractor reads basic fields from a listing page.
type FieldExtractor struct {
	wait   time.Duration
	logger *utils.Logger
}

// NewFieldExtractor creates an extractor that waits up to waits.Field per field.
func NewFieldExtractor(waits Waits, logger *utils.Logger) *FieldExtractor {
	return &FieldExtractor{wait: waits.Field, logger: logger}
}

// Extract returns the text of one field. A missing element yields "" and a
// nil error; only unexpected page faults are returned.
func (e *FieldExtractor) Extract(ctx context.Context, pg page.Page, f Field) (string, error) {
	loc, ok := fieldLocators[f]
	if !ok {
		return "", fmt.Errorf("extract: unknown field %v", f)
	}

	text, err := pg.Text(ctx, loc, e.wait)
	if errors.Is(err, page.ErrNotFound) {
		e.logger.Debug("[extractor] %s not found", f)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", f, err)
	}
	return text, nil
}

// ExtractBasic reads every basic field. Each field is attempted even when an
// earlier one failed; the description is returned untruncated.
func (e *FieldExtractor) ExtractBasic(ctx context.Context, pg page.Page) (models.BasicInfo, error) {
	var (
		info models.BasicInfo
		errs []error
	)

	targets := []struct {
		field Field
		dst   *string
	}{
		{FieldTitle, &info.Title},
		{FieldPrice, &info.Price},
		{FieldArea, &info.Area},
		{FieldLocation, &info.Location},
		{FieldDescription, &info.Description},
	}
	for _, t := range targets {
		val, err := e.Extract(ctx, pg, t.field)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*t.dst = val
	}

	e.logger.Debug("[extractor] title=%q price=%q area=%q", info.Title, info.Price, info.Area)
	return info, errors.Join(errs...)
}

// Truncate shortens a description to 200 characters plus "..." when longer.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= descriptionLimit {
		return s
	}
	return string(r[:descriptionLimit]) + ellipsis
}
