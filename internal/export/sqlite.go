package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/estatescope/go-estate-scraper/internal/models"
)

// SQLiteExporter writes records into a standalone queryable database file
type SQLiteExporter struct{}

func NewSQLiteExporter() *SQLiteExporter { return &SQLiteExporter{} }

func (e *SQLiteExporter) Format() string    { return "sql" }
func (e *SQLiteExporter) Extension() string { return "db" }

const propertySchema = `
CREATE TABLE IF NOT EXISTS properties (
	url_hash            TEXT PRIMARY KEY,
	url                 TEXT NOT NULL,
	title               TEXT,
	price_text          TEXT,
	price_value         REAL,
	price_unit          TEXT,
	area_text           TEXT,
	area_value          REAL,
	area_unit           TEXT,
	area_kind           TEXT,
	locality            TEXT,
	society             TEXT,
	city                TEXT,
	property_type       TEXT,
	bhk                 TEXT,
	bathrooms           INTEGER,
	balconies           INTEGER,
	status              TEXT,
	posting_date_raw    TEXT,
	posting_date_parsed TIMESTAMP,
	page_number         INTEGER,
	position_on_page    INTEGER,
	scraped_at          TIMESTAMP,
	session_id          TEXT,
	is_premium          INTEGER,
	data_quality_score  REAL,
	extended_fields     TEXT
);
CREATE INDEX IF NOT EXISTS idx_properties_locality ON properties (locality);
CREATE INDEX IF NOT EXISTS idx_properties_city ON properties (city);
`

func (e *SQLiteExporter) Export(path string, records []*models.PropertyRecord, stats *models.SessionStats) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	defer os.Remove(tmp)

	db, err := sqlx.Open("sqlite", tmp)
	if err != nil {
		return fmt.Errorf("failed to open export database: %v", err)
	}

	if err := e.write(db, records); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close export database: %v", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move export database into place: %v", err)
	}
	return nil
}

func (e *SQLiteExporter) write(db *sqlx.DB, records []*models.PropertyRecord) error {
	if _, err := db.Exec(propertySchema); err != nil {
		return fmt.Errorf("failed to create export schema: %v", err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin export transaction: %v", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO properties
		(url_hash, url, title, price_text, price_value, price_unit,
		 area_text, area_value, area_unit, area_kind,
		 locality, society, city, property_type, bhk, bathrooms, balconies, status,
		 posting_date_raw, posting_date_parsed, page_number, position_on_page,
		 scraped_at, session_id, is_premium, data_quality_score, extended_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET
		  title = excluded.title,
		  price_text = excluded.price_text,
		  price_value = excluded.price_value,
		  scraped_at = excluded.scraped_at,
		  data_quality_score = excluded.data_quality_score,
		  extended_fields = excluded.extended_fields`)
	if err != nil {
		return fmt.Errorf("failed to prepare export insert: %v", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var posted interface{}
		if rec.PostingDateParsed != nil {
			posted = rec.PostingDateParsed.Format(time.RFC3339)
		}
		var extended interface{}
		if len(rec.ExtendedFields) > 0 {
			blob, merr := json.Marshal(rec.ExtendedFields)
			if merr != nil {
				return fmt.Errorf("failed to encode extended fields: %v", merr)
			}
			extended = string(blob)
		}

		if _, err := stmt.Exec(
			rec.URLHash, rec.URL, rec.Title, rec.PriceText, rec.PriceValue, string(rec.PriceUnit),
			rec.AreaText, rec.AreaValue, string(rec.AreaUnit), string(rec.AreaKind),
			rec.Locality, rec.Society, rec.City, rec.PropertyType, rec.BHK,
			rec.Bathrooms, rec.Balconies, string(rec.Status),
			rec.PostingDateRaw, posted, rec.PageNumber, rec.PositionOnPage,
			rec.ScrapedAt.Format(time.RFC3339), rec.SessionID, rec.IsPremium,
			rec.DataQualityScore, extended,
		); err != nil {
			return fmt.Errorf("failed to insert property: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export transaction: %v", err)
	}
	return nil
}
