package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// schema is the base table. Evolution is additive: new columns are appended
// as migrations below, never altered in place.
const schema = `
CREATE TABLE IF NOT EXISTS scraped_urls (
	url_hash           TEXT PRIMARY KEY,
	property_url       TEXT NOT NULL,
	first_seen_at      TIMESTAMP NOT NULL,
	last_scraped_at    TIMESTAMP NOT NULL,
	data_quality_score REAL NOT NULL DEFAULT 0,
	extraction_success INTEGER NOT NULL DEFAULT 0,
	scrape_count       INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_scraped_urls_last_scraped ON scraped_urls (last_scraped_at);
CREATE INDEX IF NOT EXISTS idx_scraped_urls_success ON scraped_urls (extraction_success);
CREATE TABLE IF NOT EXISTS high_water_marks (
	key  TEXT PRIMARY KEY,
	mark TIMESTAMP NOT NULL
);
`

// migrations are additive schema changes applied best-effort on open;
// "duplicate column" errors mean the migration already ran
var migrations = []string{}

// SQLiteStore implements Store on an embedded SQLite database
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if needed) the tracker database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create tracker directory: %v", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tracker database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping tracker database: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tracker schema: %v", err)
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil && !strings.Contains(err.Error(), "duplicate column") {
			db.Close()
			return nil, fmt.Errorf("failed to apply tracker migration: %v", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the entry for a hash, or nil when absent
func (s *SQLiteStore) Get(ctx context.Context, urlHash string) (*Entry, error) {
	var entry Entry
	err := s.db.GetContext(ctx, &entry,
		`SELECT url_hash, property_url, first_seen_at, last_scraped_at,
		        data_quality_score, extraction_success, scrape_count
		 FROM scraped_urls WHERE url_hash = ?`, urlHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %v", err)
	}
	return &entry, nil
}

// GetBatch loads entries for a hash set in chunks, returning a map keyed by
// url_hash
func (s *SQLiteStore) GetBatch(ctx context.Context, urlHashes []string) (map[string]Entry, error) {
	result := make(map[string]Entry, len(urlHashes))
	const chunkSize = 500

	for start := 0; start < len(urlHashes); start += chunkSize {
		end := start + chunkSize
		if end > len(urlHashes) {
			end = len(urlHashes)
		}
		chunk := urlHashes[start:end]

		query, args, err := sqlx.In(
			`SELECT url_hash, property_url, first_seen_at, last_scraped_at,
			        data_quality_score, extraction_success, scrape_count
			 FROM scraped_urls WHERE url_hash IN (?)`, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to build batch query: %v", err)
		}

		var entries []Entry
		if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to load batch: %v", err)
		}
		for _, entry := range entries {
			result[entry.URLHash] = entry
		}
	}

	return result, nil
}

// Upsert writes an entry idempotently by url_hash
func (s *SQLiteStore) Upsert(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scraped_urls
		 (url_hash, property_url, first_seen_at, last_scraped_at,
		  data_quality_score, extraction_success, scrape_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url_hash) DO UPDATE SET
		   property_url = excluded.property_url,
		   last_scraped_at = excluded.last_scraped_at,
		   data_quality_score = excluded.data_quality_score,
		   extraction_success = excluded.extraction_success,
		   scrape_count = excluded.scrape_count`,
		entry.URLHash, entry.PropertyURL, entry.FirstSeenAt, entry.LastScrapedAt,
		entry.DataQualityScore, entry.ExtractionSuccess, entry.ScrapeCount)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %v", err)
	}
	return nil
}

// HighWaterMark returns the stored mark for a key, or the zero time
func (s *SQLiteStore) HighWaterMark(ctx context.Context, key string) (time.Time, error) {
	var mark time.Time
	err := s.db.GetContext(ctx, &mark,
		`SELECT mark FROM high_water_marks WHERE key = ?`, key)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get high-water mark: %v", err)
	}
	return mark, nil
}

// SetHighWaterMark stores the mark for a key
func (s *SQLiteStore) SetHighWaterMark(ctx context.Context, key string, mark time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO high_water_marks (key, mark) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET mark = excluded.mark`, key, mark)
	if err != nil {
		return fmt.Errorf("failed to set high-water mark: %v", err)
	}
	return nil
}

// Statistics returns store-wide counters
func (s *SQLiteStore) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}
	today := time.Now().Truncate(24 * time.Hour)

	rows := []struct {
		dest  *int64
		query string
		args  []interface{}
	}{
		{&stats.TotalURLs, `SELECT COUNT(*) FROM scraped_urls`, nil},
		{&stats.SuccessfulURLs, `SELECT COUNT(*) FROM scraped_urls WHERE extraction_success = 1`, nil},
		{&stats.FailedURLs, `SELECT COUNT(*) FROM scraped_urls WHERE extraction_success = 0`, nil},
		{&stats.ScrapedToday, `SELECT COUNT(*) FROM scraped_urls WHERE last_scraped_at >= ?`, []interface{}{today}},
		{&stats.SucceededToday, `SELECT COUNT(*) FROM scraped_urls WHERE last_scraped_at >= ? AND extraction_success = 1`, []interface{}{today}},
		{&stats.FailedToday, `SELECT COUNT(*) FROM scraped_urls WHERE last_scraped_at >= ? AND extraction_success = 0`, []interface{}{today}},
	}

	for _, row := range rows {
		if err := s.db.GetContext(ctx, row.dest, row.query, row.args...); err != nil {
			return nil, fmt.Errorf("failed to compute statistics: %v", err)
		}
	}
	return stats, nil
}

// Cleanup deletes rows whose last scrape is older than the retention window
func (s *SQLiteStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM scraped_urls WHERE last_scraped_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old entries: %v", err)
	}
	return result.RowsAffected()
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
