package idealista

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/utils"
)

// Cascades are evaluated top to bottom; the first match wins. Integer
// cascades run against the lower-cased features text.
var (
	bathroomCascade = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*bathroom`),
		regexp.MustCompile(`(\d+)\s*banho`),
		regexp.MustCompile(`(\d+)\s*casa de banho`),
		regexp.MustCompile(`(\d+)\s*wc`),
		regexp.MustCompile(`(\d+)\s*bath`),
	}

	// Token patterns come before the T<N> typology marker.
	bedroomCascade = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*bedroom`),
		regexp.MustCompile(`(\d+)\s*quarto`),
		regexp.MustCompile(`(\d+)\s*quartos`),
		regexp.MustCompile(`(\d+)\s*room`),
		regexp.MustCompile(`(\d+)\s*hab`),
		regexp.MustCompile(`t(\d+)`),
	}

	// "terraced house" must stay ahead of "house".
	propertyTypeCascade = []string{
		"terraced house", "apartment", "studio", "villa", "house", "flat", "penthouse",
	}

	statusCascade = []string{
		"new build", "new construction", "renovated", "to renovate", "new home", "brand new",
	}

	yearPattern = regexp.MustCompile(`\d{4}`)

	energyCascade = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Energy Rating:\s*([A-Z][+\-]?)`),
		regexp.MustCompile(`(?i)Energy Certificate:\s*([A-Z][+\-]?)`),
		regexp.MustCompile(`(?i)Energy certification:\s*([A-Z][+\-]?)`),
		regexp.MustCompile(`(?i)Certificado Energético:\s*([A-Z][+\-]?)`),
		regexp.MustCompile(`(?i)Classificação Energética:\s*([A-Z][+\-]?)`),
	}
)

const (
	minCompletionYear = 1900
	maxCompletionYear = 2030
)

// ParseFeatures recovers the text-derived fields of a features blob. Empty
// text yields an empty FeatureSet.
func ParseFeatures(text string) models.FeatureSet {
	var fs models.FeatureSet
	if strings.TrimSpace(text) == "" {
		return fs
	}
	lower := strings.ToLower(text)

	fs.Bathrooms = firstInt(bathroomCascade, lower)
	fs.Bedrooms = firstInt(bedroomCascade, lower)
	fs.PropertyTypeDetail = firstLiteral(propertyTypeCascade, lower)
	fs.CompletionYear = completionYear(text)
	fs.Status = firstLiteral(statusCascade, lower)
	return fs
}

// EnergyCertificate returns the grade after the first energy label found in
// text, or "" when no label matches.
func EnergyCertificate(text string) string {
	for _, re := range energyCascade {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func firstInt(cascade []*regexp.Regexp, text string) *int {
	for _, re := range cascade {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return &n
	}
	return nil
}

func firstLiteral(cascade []string, text string) string {
	for _, lit := range cascade {
		if strings.Contains(text, lit) {
			return lit
		}
	}
	return ""
}

// completionYear takes the first 4-digit run and keeps it only inside the
// open range (1900, 2030).
func completionYear(text string) *int {
	m := yearPattern.FindString(text)
	if m == "" {
		return nil
	}
	year, err := strconv.Atoi(m)
	if err != nil || year <= minCompletionYear || year >= maxCompletionYear {
		return nil
	}
	return &year
}

// FeatureParser recovers a FeatureSet from a listing page.
type FeatureParser struct {
	wait   time.Duration
	logger *utils.Logger
}

// NewFeatureParser creates a parser whose locators wait up to waits.Field.
func NewFeatureParser(waits Waits, logger *utils.Logger) *FeatureParser {
	return &FeatureParser{wait: waits.Field, logger: logger}
}

// FeaturesText returns the first non-empty features block on the page.
func (p *FeatureParser) FeaturesText(ctx context.Context, pg page.Page) (string, error) {
	for _, loc := range featureLocators {
		text, err := pg.Text(ctx, loc, p.wait)
		if errors.Is(err, page.ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("features %s: %w", loc, err)
		}
		if text != "" {
			return text, nil
		}
	}
	return "", nil
}

// Parse builds the FeatureSet of a listing page. description is searched for
// the energy certificate before the page itself. Missing elements leave
// their fields absent; only unexpected page faults are returned, and every
// field is still attempted.
func (p *FeatureParser) Parse(ctx context.Context, pg page.Page, description string) (models.FeatureSet, error) {
	var errs []error

	text, err := p.FeaturesText(ctx, pg)
	if err != nil {
		errs = append(errs, err)
	}
	if text == "" {
		p.logger.Debug("[features] Features block not found")
	} else {
		p.logger.Debug("[features] Features text: %q", text)
	}

	fs := ParseFeatures(text)

	energy, err := p.energyCertificate(ctx, pg, description)
	if err != nil {
		errs = append(errs, err)
	}
	fs.EnergyCertificate = energy

	fs.UpdateDate, err = p.optionalText(ctx, pg, updateDateLocator)
	if err != nil {
		errs = append(errs, err)
	}
	fs.Agency, err = p.optionalText(ctx, pg, agencyLocator)
	if err != nil {
		errs = append(errs, err)
	}

	return fs, errors.Join(errs...)
}

func (p *FeatureParser) energyCertificate(ctx context.Context, pg page.Page, description string) (string, error) {
	if grade := EnergyCertificate(description); grade != "" {
		return grade, nil
	}

	candidates, err := pg.Texts(ctx, energyLocator)
	if err != nil {
		return "", fmt.Errorf("energy certificate: %w", err)
	}
	for _, text := range candidates {
		if grade := EnergyCertificate(text); grade != "" {
			p.logger.Debug("[features] Energy certificate found on page: %s", grade)
			return grade, nil
		}
	}
	return "", nil
}

func (p *FeatureParser) optionalText(ctx context.Context, pg page.Page, loc page.Locator) (string, error) {
	text, err := pg.Text(ctx, loc, p.wait)
	if errors.Is(err, page.ErrNotFound) {
		p.logger.Debug("[features] %s not found", loc)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("features %s: %w", loc, err)
	}
	return text, nil
}
