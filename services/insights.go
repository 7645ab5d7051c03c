package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"idealista-scraper/models"
	"idealista-scraper/utils"
)

type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, out: os.Stdout}
}

func (s *InsightService) Generate(listings []*models.CleanListing) *models.InsightReport {
	report := &models.InsightReport{
		ByPropertyType:      make(map[string]int),
		ByEnergyCertificate: make(map[string]int),
		ListingsByLocation:  make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priceListings []*models.CleanListing
	var perM2 []float64

	for _, l := range listings {
		if models.ClassifyURL(l.URL) == models.KindDevelopment {
			report.DevelopmentListings++
		}
		if l.PriceEUR > 0 {
			priceListings = append(priceListings, l)
			if l.AreaM2 > 0 {
				perM2 = append(perM2, l.PriceEUR/l.AreaM2)
			}
		}
		if l.PropertyTypeDetail != "" {
			report.ByPropertyType[l.PropertyTypeDetail]++
		}
		if l.EnergyCertificate != "" {
			report.ByEnergyCertificate[l.EnergyCertificate]++
		}
		if l.Location != "" {
			report.ListingsByLocation[l.Location]++
		}
	}

	// Price stats (only listings with price > 0)
	if len(priceListings) > 0 {
		report.MostExpensive = priceListings[0]
		report.MinPrice = priceListings[0].PriceEUR
		report.MaxPrice = priceListings[0].PriceEUR
		var total float64
		for _, l := range priceListings {
			total += l.PriceEUR
			if l.PriceEUR < report.MinPrice {
				report.MinPrice = l.PriceEUR
			}
			if l.PriceEUR > report.MaxPrice {
				report.MaxPrice = l.PriceEUR
				report.MostExpensive = l
			}
		}
		report.AveragePrice = round2(total / float64(len(priceListings)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	if len(perM2) > 0 {
		var total float64
		for _, v := range perM2 {
			total += v
		}
		report.AveragePricePerM2 = round2(total / float64(len(perM2)))
	}

	s.logger.Debug("[insights] %d listings, %d priced, %d with area",
		report.TotalListings, len(priceListings), len(perM2))
	return report
}

func (s *InsightService) Print(r *models.InsightReport) {
	w := s.out
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 IDEALISTA SCRAPE INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings scraped : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  New developments       : \033[1m%d\033[0m\n", r.DevelopmentListings)
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m€%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m€%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m€%.2f\033[0m\n", r.MaxPrice)
		if r.AveragePricePerM2 > 0 {
			fmt.Fprintf(w, "  Average €/m²  : \033[1;32m€%.2f\033[0m\n", r.AveragePricePerM2)
		}
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	// Most Expensive
	if r.MostExpensive != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.MostExpensive.Title, 50))
		fmt.Fprintf(w, "  Location : %s\n", r.MostExpensive.Location)
		fmt.Fprintf(w, "  Price    : \033[1;31m€%.2f\033[0m\n", r.MostExpensive.PriceEUR)
		fmt.Fprintln(w)
	}

	printCounts(w, "Listings by Property Type", "No property type data", r.ByPropertyType, thin)
	printCounts(w, "Listings by Energy Certificate", "No energy certificate data", r.ByEnergyCertificate, thin)
	printCounts(w, "Listings by Location", "No location data", r.ListingsByLocation, thin)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders counts descending, ties by key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, c := range m {
		if k != "" {
			out = append(out, keyCount{k, c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func printCounts(w io.Writer, title, empty string, m map[string]int, thin string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	counts := sortedCounts(m)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  %s\n", empty)
	}
	for _, kc := range counts {
		bar := strings.Repeat("█", min(kc.count, 40))
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(kc.key, 28), bar, kc.count)
	}
	fmt.Fprintln(w)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
