package tracker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/estatescope/go-estate-scraper/internal/logger"
)

// Entry is the per-URL history row, keyed by URLHash
type Entry struct {
	URLHash           string    `db:"url_hash" json:"url_hash"`
	PropertyURL       string    `db:"property_url" json:"property_url"`
	FirstSeenAt       time.Time `db:"first_seen_at" json:"first_seen_at"`
	LastScrapedAt     time.Time `db:"last_scraped_at" json:"last_scraped_at"`
	DataQualityScore  float64   `db:"data_quality_score" json:"data_quality_score"`
	ExtractionSuccess bool      `db:"extraction_success" json:"extraction_success"`
	ScrapeCount       int       `db:"scrape_count" json:"scrape_count"`
}

// Store is the persistence behind the tracker. Writes are idempotent by
// url_hash.
type Store interface {
	Get(ctx context.Context, urlHash string) (*Entry, error)
	GetBatch(ctx context.Context, urlHashes []string) (map[string]Entry, error)
	Upsert(ctx context.Context, entry Entry) error
	HighWaterMark(ctx context.Context, key string) (time.Time, error)
	SetHighWaterMark(ctx context.Context, key string, mark time.Time) error
	Statistics(ctx context.Context) (*Statistics, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
	Close() error
}

// Statistics summarizes the tracker store contents
type Statistics struct {
	TotalURLs      int64 `json:"total_urls"`
	SuccessfulURLs int64 `json:"successful_urls"`
	FailedURLs     int64 `json:"failed_urls"`
	ScrapedToday   int64 `json:"scraped_today"`
	SucceededToday int64 `json:"succeeded_today"`
	FailedToday    int64 `json:"failed_today"`
}

// FilterSummary counts the smart-filter buckets for one invocation
type FilterSummary struct {
	Total            int     `json:"total"`
	New              int     `json:"new"`
	FailedExtraction int     `json:"failed_extraction"`
	LowQuality       int     `json:"low_quality"`
	Stale            int     `json:"stale"`
	SkipGood         int     `json:"skip_good"`
	ReductionPct     float64 `json:"reduction_pct"`
}

// Tracker answers "should this URL be re-scraped?" from persisted per-URL
// history. The smart filter is the biggest throughput lever on repeat runs.
type Tracker struct {
	store  Store
	logger *logger.Logger
}

// New creates a tracker over the given store
func New(store Store) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.NewLogger("tracker"),
	}
}

// trackingParams are query parameters stripped during normalization
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"ref":          true,
	"refsource":    true,
	"src":          true,
	"cmpid":        true,
}

// NormalizeURL lowercases scheme and host, strips tracking parameters, the
// trailing slash and the fragment. Hashing always goes through this.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")

	query := parsed.Query()
	for key := range query {
		if trackingParams[strings.ToLower(key)] {
			query.Del(key)
		}
	}
	parsed.RawQuery = query.Encode()

	return parsed.String()
}

// HashURL returns the stable 64-bit hex key of a normalized URL.
// Deterministic across runs and platforms.
func HashURL(raw string) string {
	sum := sha256.Sum256([]byte(NormalizeURL(raw)))
	return fmt.Sprintf("%x", sum[:8])
}

// IsScraped reports whether the URL has ever been scraped successfully
func (t *Tracker) IsScraped(ctx context.Context, rawURL string) (bool, error) {
	entry, err := t.store.Get(ctx, HashURL(rawURL))
	if err != nil {
		return false, fmt.Errorf("failed to look up URL: %v", err)
	}
	return entry != nil && entry.ExtractionSuccess, nil
}

// SmartFilter returns the subset of urls that should be scraped. A URL is
// included when it is new, its last extraction failed, its stored quality is
// below qualityThreshold, or its last scrape is older than ttlDays. Everything
// else is a SKIP-GOOD.
func (t *Tracker) SmartFilter(ctx context.Context, urls []string, qualityThreshold float64, ttlDays int) ([]string, FilterSummary, error) {
	summary := FilterSummary{Total: len(urls)}
	if len(urls) == 0 {
		return nil, summary, nil
	}

	hashes := make([]string, len(urls))
	for i, u := range urls {
		hashes[i] = HashURL(u)
	}

	entries, err := t.store.GetBatch(ctx, hashes)
	if err != nil {
		return nil, summary, fmt.Errorf("failed to load tracker entries: %v", err)
	}

	staleCutoff := time.Now().AddDate(0, 0, -ttlDays)
	var filtered []string

	for i, u := range urls {
		entry, seen := entries[hashes[i]]
		switch {
		case !seen:
			summary.New++
			filtered = append(filtered, u)
		case !entry.ExtractionSuccess:
			summary.FailedExtraction++
			filtered = append(filtered, u)
		case entry.DataQualityScore < qualityThreshold:
			summary.LowQuality++
			filtered = append(filtered, u)
		case entry.LastScrapedAt.Before(staleCutoff):
			summary.Stale++
			filtered = append(filtered, u)
		default:
			summary.SkipGood++
		}
	}

	if summary.Total > 0 {
		summary.ReductionPct = float64(summary.SkipGood) / float64(summary.Total) * 100
	}

	t.logger.WithFields(map[string]interface{}{
		"total":             summary.Total,
		"new":               summary.New,
		"failed_extraction": summary.FailedExtraction,
		"low_quality":       summary.LowQuality,
		"stale":             summary.Stale,
		"skip_good":         summary.SkipGood,
		"reduction_pct":     fmt.Sprintf("%.1f%%", summary.ReductionPct),
	}).Info("Smart filter applied")

	return filtered, summary, nil
}

// RecordResult upserts the outcome of one PDP attempt. first_seen_at is
// preserved and scrape_count accumulates across runs.
func (t *Tracker) RecordResult(ctx context.Context, rawURL string, success bool, qualityScore float64) error {
	normalized := NormalizeURL(rawURL)
	hash := HashURL(rawURL)
	now := time.Now()

	entry := Entry{
		URLHash:           hash,
		PropertyURL:       normalized,
		FirstSeenAt:       now,
		LastScrapedAt:     now,
		DataQualityScore:  qualityScore,
		ExtractionSuccess: success,
		ScrapeCount:       1,
	}

	existing, err := t.store.Get(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to load existing entry: %v", err)
	}
	if existing != nil {
		entry.FirstSeenAt = existing.FirstSeenAt
		entry.ScrapeCount = existing.ScrapeCount + 1
	}

	if err := t.store.Upsert(ctx, entry); err != nil {
		return fmt.Errorf("failed to record result: %v", err)
	}
	return nil
}

// HighWater returns the newest posting date confirmed in earlier runs for a
// city. Zero time means no previous run, which disables the incremental stop.
func (t *Tracker) HighWater(ctx context.Context, city string) (time.Time, error) {
	mark, err := t.store.HighWaterMark(ctx, strings.ToLower(city))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load high-water mark: %v", err)
	}
	return mark, nil
}

// AdvanceHighWater raises the stored mark for a city. Marks only move
// forward; an older timestamp is a no-op.
func (t *Tracker) AdvanceHighWater(ctx context.Context, city string, mark time.Time) error {
	if mark.IsZero() {
		return nil
	}
	key := strings.ToLower(city)
	current, err := t.store.HighWaterMark(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load high-water mark: %v", err)
	}
	if !mark.After(current) {
		return nil
	}
	if err := t.store.SetHighWaterMark(ctx, key, mark); err != nil {
		return fmt.Errorf("failed to advance high-water mark: %v", err)
	}
	return nil
}

// Statistics returns store-level counters for the status API
func (t *Tracker) Statistics(ctx context.Context) (*Statistics, error) {
	return t.store.Statistics(ctx)
}

// Cleanup removes rows older than the retention window
func (t *Tracker) Cleanup(ctx context.Context, retention time.Duration) error {
	removed, err := t.store.Cleanup(ctx, retention)
	if err != nil {
		return fmt.Errorf("failed to cleanup tracker: %v", err)
	}
	if removed > 0 {
		t.logger.WithField("removed", removed).Info("Tracker cleanup completed")
	}
	return nil
}

// Close releases the underlying store
func (t *Tracker) Close() error {
	return t.store.Close()
}
