package idealista

import (
	"time"

	"idealista-scraper/models"
)

// RecordAssembler merges identity, basic fields and features into a record.
type RecordAssembler struct {
	now func() time.Time
}

// NewRecordAssembler creates an assembler stamping records with now. A nil
// clock means time.Now.
func NewRecordAssembler(now func() time.Time) *RecordAssembler {
	if now == nil {
		now = time.Now
	}
	return &RecordAssembler{now: now}
}

// Assemble builds the output record. The description is truncated here.
func (a *RecordAssembler) Assemble(ref models.ListingRef, q models.Query, basic models.BasicInfo, fs models.FeatureSet) *models.ListingRecord {
	return &models.ListingRecord{
		ListingID:    ref.ListingID,
		URL:          ref.URL,
		ScrapedAt:    a.now(),
		Operation:    q.Operation,
		PropertyType: q.PropertyType,
		City:         q.City,

		Title:       basic.Title,
		Price:       basic.Price,
		Area:        basic.Area,
		Location:    basic.Location,
		Description: Truncate(basic.Description),

		FeatureSet: fs,
	}
}
