package idealista

import (
	"context"
	"fmt"

	"idealista-scraper/models"
	"idealista-scraper/page"
	"idealista-scraper/storage"
	"idealista-scraper/utils"
)

// ListingHandler processes one loaded listing page. A returned error marks
// the listing as failed; the session logs it and moves on.
type ListingHandler interface {
	HandleListing(ctx context.Context, q models.Query, ref models.ListingRef, pg page.Page) error
}

// RecordHandler extracts a ListingRecord and writes it to a sink.
type RecordHandler struct {
	fields    *FieldExtractor
	features  *FeatureParser
	assembler *RecordAssembler
	sink      storage.RecordSink
	logger    *utils.Logger
}

// NewRecordHandler wires the extraction pipeline to sink.
func NewRecordHandler(fields *FieldExtractor, features *FeatureParser, assembler *RecordAssembler,
	sink storage.RecordSink, logger *utils.Logger) *RecordHandler {
	return &RecordHandler{
		fields:    fields,
		features:  features,
		assembler: assembler,
		sink:      sink,
		logger:    logger,
	}
}

func (h *RecordHandler) HandleListing(ctx context.Context, q models.Query, ref models.ListingRef, pg page.Page) error {
	basic, err := h.fields.ExtractBasic(ctx, pg)
	if err != nil {
		return fmt.Errorf("listing %s: %w", ref.ListingID, err)
	}

	fs, err := h.features.Parse(ctx, pg, basic.Description)
	if err != nil {
		return fmt.Errorf("listing %s: %w", ref.ListingID, err)
	}

	rec := h.assembler.Assemble(ref, q, basic, fs)
	if err := h.sink.WriteRecord(rec); err != nil {
		return fmt.Errorf("listing %s: %w", ref.ListingID, err)
	}

	h.logger.Info("[record] Saved %s: %s", rec.ListingID, rec.Title)
	return nil
}

// ArchiveHandler stores the raw HTML of each listing for later extraction.
type ArchiveHandler struct {
	archive *storage.HTMLArchive
	logger  *utils.Logger
}

// NewArchiveHandler creates a handler saving pages into archive.
func NewArchiveHandler(archive *storage.HTMLArchive, logger *utils.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logger}
}

func (h *ArchiveHandler) HandleListing(ctx context.Context, q models.Query, ref models.ListingRef, pg page.Page) error {
	html, err := pg.HTML(ctx)
	if err != nil {
		return fmt.Errorf("listing %s: %w", ref.ListingID, err)
	}

	path, err := h.archive.Save(q, ref, html)
	if err != nil {
		return fmt.Errorf("listing %s: %w", ref.ListingID, err)
	}

	title, err := pg.Title(ctx)
	if err != nil {
		h.logger.Debug("[archive] No title for %s: %v", ref.ListingID, err)
	}
	h.logger.Info("[archive] Downloaded %s - %s -> %s", ref.ListingID, title, path)
	return nil
}
