package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"idealista-scraper/models"
)

const listingColumns = 18

var _ ListingStore = (*PostgresWriter)(nil)

// PostgresWriter persists cleaned listings to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw, err := newPostgresWriter(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return pw, nil
}

func newPostgresWriter(db *sql.DB) (*PostgresWriter, error) {
	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS idealista_listings (
			listing_id           TEXT          PRIMARY KEY,
			url                  TEXT          NOT NULL,
			scraped_at           TIMESTAMPTZ   NOT NULL,
			operation            VARCHAR(50)   NOT NULL DEFAULT '',
			property_type        VARCHAR(50)   NOT NULL DEFAULT '',
			city                 VARCHAR(100)  NOT NULL DEFAULT '',
			title                TEXT          NOT NULL DEFAULT '',
			price_eur            NUMERIC(14,2) NOT NULL DEFAULT 0,
			area_m2              NUMERIC(10,2) NOT NULL DEFAULT 0,
			bedrooms             INTEGER,
			bathrooms            INTEGER,
			location             TEXT          NOT NULL DEFAULT '',
			description          TEXT          NOT NULL DEFAULT '',
			property_type_detail VARCHAR(50)   NOT NULL DEFAULT '',
			completion_year      INTEGER,
			update_date          TEXT          NOT NULL DEFAULT '',
			agency               TEXT          NOT NULL DEFAULT '',
			energy_certificate   VARCHAR(4)    NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_idealista_price    ON idealista_listings(price_eur);
		CREATE INDEX IF NOT EXISTS idx_idealista_city     ON idealista_listings(city);
		CREATE INDEX IF NOT EXISTS idx_idealista_bedrooms ON idealista_listings(bedrooms);
		CREATE INDEX IF NOT EXISTS idx_idealista_energy   ON idealista_listings(energy_certificate);
	`)
	return err
}

// Write batch-upserts cleaned listings keyed by listing id. Listings seen in
// earlier runs are refreshed rather than duplicated.
func (pw *PostgresWriter) Write(listings []*models.CleanListing) error {
	const batchSize = 50
	for i := 0; i < len(listings); i += batchSize {
		end := i + batchSize
		if end > len(listings) {
			end = len(listings)
		}
		if err := pw.insertBatch(listings[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch []*models.CleanListing) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*listingColumns)

	for idx, l := range batch {
		base := idx * listingColumns
		placeholders := make([]string, listingColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			l.ListingID, l.URL, l.ScrapedAt, l.Operation, l.PropertyType, l.City,
			l.Title, l.PriceEUR, l.AreaM2, nullInt(l.Bedrooms), nullInt(l.Bathrooms),
			l.Location, l.Description, l.PropertyTypeDetail, nullInt(l.CompletionYear),
			l.UpdateDate, l.Agency, l.EnergyCertificate)
	}

	query := fmt.Sprintf(`
		INSERT INTO idealista_listings (
			listing_id, url, scraped_at, operation, property_type, city,
			title, price_eur, area_m2, bedrooms, bathrooms,
			location, description, property_type_detail, completion_year,
			update_date, agency, energy_certificate
		)
		VALUES %s
		ON CONFLICT (listing_id) DO UPDATE SET
			url = EXCLUDED.url,
			scraped_at = EXCLUDED.scraped_at,
			title = EXCLUDED.title,
			price_eur = EXCLUDED.price_eur,
			area_m2 = EXCLUDED.area_m2,
			bedrooms = EXCLUDED.bedrooms,
			bathrooms = EXCLUDED.bathrooms,
			location = EXCLUDED.location,
			description = EXCLUDED.description,
			property_type_detail = EXCLUDED.property_type_detail,
			completion_year = EXCLUDED.completion_year,
			update_date = EXCLUDED.update_date,
			agency = EXCLUDED.agency,
			energy_certificate = EXCLUDED.energy_certificate
	`, strings.Join(valueStrings, ","))

	if _, err := pw.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert batch: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll retrieves all stored listings, used by the insight service so the
// report covers earlier runs too.
func (pw *PostgresWriter) FetchAll() ([]*models.CleanListing, error) {
	rows, err := pw.db.Query(`
		SELECT listing_id, url, scraped_at, operation, property_type, city,
		       title, price_eur, area_m2, bedrooms, bathrooms,
		       location, description, property_type_detail, completion_year,
		       update_date, agency, energy_certificate
		FROM idealista_listings
		ORDER BY scraped_at
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var listings []*models.CleanListing
	for rows.Next() {
		l := &models.CleanListing{ListingRecord: &models.ListingRecord{}}
		var bedrooms, bathrooms, year sql.NullInt64
		if err := rows.Scan(
			&l.ListingID, &l.URL, &l.ScrapedAt, &l.Operation, &l.PropertyType, &l.City,
			&l.Title, &l.PriceEUR, &l.AreaM2, &bedrooms, &bathrooms,
			&l.Location, &l.Description, &l.PropertyTypeDetail, &year,
			&l.UpdateDate, &l.Agency, &l.EnergyCertificate,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		l.Bedrooms = fromNullInt(bedrooms)
		l.Bathrooms = fromNullInt(bathrooms)
		l.CompletionYear = fromNullInt(year)
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
