package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"idealista-scraper/config"
	"idealista-scraper/fetcher"
	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/scraper/idealista"
	"idealista-scraper/services"
	"idealista-scraper/storage"
	"idealista-scraper/utils"
)

const runIDLayout = "2006-01-02T15-04-05"

func main() {
	cfg := config.Load()
	logger := utils.NewFileLogger(cfg.LogDir, "idealista")

	if err := run(cfg, logger); err != nil {
		logger.Error("Run failed: %v", err)
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}

func run(cfg *config.Config, logger *utils.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vocab := config.LoadVocabularyOrDefault(cfg.VocabDir, logger.Warn)
	runPath := filepath.Join(cfg.BaseOutputDir, "run_"+time.Now().Format(runIDLayout))

	logger.Info("=== Idealista Scraping System starting ===")
	logger.Info("Config: mode %s | fetcher %s | pages: %d | workers: %d | rate: %dms",
		cfg.Mode, cfg.Fetcher, cfg.MaxPages, cfg.ExtractWorkers, cfg.RateLimitMs)
	logger.Info("Searches: %v x %v x %v -> %s",
		vocab.Operations, vocab.PropertyTypes, vocab.Cities, runPath)

	base, err := newFetcher(cfg, logger)
	if err != nil {
		return err
	}
	minDelay, maxDelay := cfg.Delays()
	f := fetcher.NewThrottled(base, cfg.RateInterval(), cfg.ExtractWorkers, minDelay, maxDelay)
	defer f.Close()

	csvWriter, err := storage.NewCSVWriter(runPath)
	if err != nil {
		return fmt.Errorf("create CSV writer: %w", err)
	}
	collector := storage.NewCollector()
	sink := storage.MultiSink{csvWriter, collector}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			logger.Error("Closing sinks: %v", cerr)
		}
	}()

	waits := idealista.DefaultWaits
	records := idealista.NewRecordHandler(
		idealista.NewFieldExtractor(waits, logger),
		idealista.NewFeatureParser(waits, logger),
		idealista.NewRecordAssembler(time.Now),
		sink,
		logger,
	)

	var handler idealista.ListingHandler = records
	if cfg.Mode == config.ModeArchive {
		handler = idealista.NewArchiveHandler(storage.NewHTMLArchive(runPath), logger)
	}

	session := idealista.NewSession(
		idealista.SessionConfig{
			MaxPages: cfg.MaxPages,
			Workers:  cfg.ExtractWorkers,
			Retry:    &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 2 * time.Second, Logger: logger},
		},
		f,
		idealista.NewPaginator(config.SiteOrigin, waits, logger),
		idealista.NewLinkHarvester(config.SiteOrigin, waits, logger),
		handler,
		logger,
	)

	cancelled := crawl(ctx, session, vocab, logger)

	if cfg.Mode == config.ModeArchive {
		extractor := idealista.NewArchiveExtractor(config.SiteOrigin, records, logger)
		if _, err := extractor.ExtractArchive(context.WithoutCancel(ctx), runPath); err != nil {
			logger.Error("Archive extraction failed: %v", err)
		}
	}

	logger.Info("Run finished: %d unique listings, CSV at %s",
		session.State().TotalRecords, csvWriter.Path())

	report(cfg, collector.Records(), logger)

	if cancelled {
		return idealista.ErrSessionCancelled
	}
	return nil
}

func newFetcher(cfg *config.Config, logger *utils.Logger) (page.Fetcher, error) {
	if cfg.Fetcher == config.FetcherHTTP {
		logger.Info("Using HTTP fetcher")
		return fetcher.NewHTTP(fetcher.HTTPConfig{Timeout: 30 * time.Second}), nil
	}

	b, err := fetcher.NewBrowser(fetcher.BrowserConfig{
		ChromeBin: cfg.ChromeBin,
		Headless:  cfg.Headless,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return b, nil
}

// crawl runs one search per operation, property type and city. It reports
// whether the run was cut short.
func crawl(ctx context.Context, session *idealista.Session, vocab *config.Vocabulary, logger *utils.Logger) bool {
	for _, op := range vocab.Operations {
		for _, pt := range vocab.PropertyTypes {
			for _, city := range vocab.Cities {
				q := models.Query{Operation: op, PropertyType: pt, City: city}
				res := session.Run(ctx, q, vocab.SearchURL(op, pt, city))

				switch {
				case errors.Is(res.Err, idealista.ErrSessionCancelled):
					logger.Warn("Interrupted during %s/%s/%s", op, pt, city)
					return true
				case res.Err != nil:
					logger.Error("Search %s/%s/%s ended early: %v", op, pt, city, res.Err)
				}
				logger.Info("Search %s/%s/%s: %d pages, %d new, %d failed",
					op, pt, city, res.Pages, res.NewRecords, res.Failed)
			}
		}
	}
	return false
}

// report cleans the run's records, stores them in PostgreSQL when enabled,
// and prints the insight summary.
func report(cfg *config.Config, records []*models.ListingRecord, logger *utils.Logger) {
	if len(records) == 0 {
		logger.Warn("No listings were scraped, skipping report")
		return
	}

	cleanListings := services.NewCleaner(logger).Clean(records)
	listings := cleanListings

	if cfg.PostgresEnabled {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
		} else {
			defer pgWriter.Close()
			listings = persist(pgWriter, cleanListings, logger)
		}
	}

	insightSvc := services.NewInsightService(logger)
	insightSvc.Print(insightSvc.Generate(listings))
}

// persist stores listings and returns the full stored set, falling back to
// listings when the store cannot be read.
func persist(store storage.ListingStore, listings []*models.CleanListing, logger *utils.Logger) []*models.CleanListing {
	if err := store.Write(listings); err != nil {
		logger.Error("PostgreSQL write failed: %v", err)
	} else {
		logger.Info("Clean listings stored in PostgreSQL (table: idealista_listings)")
	}

	stored, err := store.FetchAll()
	if err != nil {
		logger.Error("Failed to fetch listings from DB for insights: %v", err)
		return listings
	}
	return stored
}
