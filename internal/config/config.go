package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config holds environment-backed settings. Rate-limit values, delay ranges,
// TTLs and thresholds live here so they can be tuned without code changes.
type Config struct {
	Port              string `env:"PORT" envDefault:"8080"`
	Headless          bool   `env:"HEADLESS" envDefault:"true"`
	BrowserBinaryPath string `env:"BROWSER_BINARY_PATH"`
	OutputDir         string `env:"OUTPUT_DIR" envDefault:"output"`
	TrackerDBPath     string `env:"TRACKER_DB_PATH" envDefault:"output/tracker.db"`
	MongoURI          string `env:"MONGO_URI"`
	MongoDatabase     string `env:"MONGO_DATABASE" envDefault:"estate_scraper"`
	BaseURL           string `env:"PORTAL_BASE_URL" envDefault:"https://www.magicbricks.com"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`

	// Listing traversal
	PageDelayMinSec    float64 `env:"PAGE_DELAY_MIN_SEC" envDefault:"2.5"`
	PageDelayMaxSec    float64 `env:"PAGE_DELAY_MAX_SEC" envDefault:"6.0"`
	MaxConsecutiveFail int     `env:"MAX_CONSECUTIVE_FAILURES" envDefault:"5"`
	MinCardsPerPage    int     `env:"MIN_CARDS_PER_PAGE" envDefault:"10"`
	StopConfidencePct  float64 `env:"INCREMENTAL_STOP_CONFIDENCE" envDefault:"65"`
	StopHysteresisPct  float64 `env:"INCREMENTAL_STOP_HYSTERESIS" envDefault:"40"`
	DateSampleTopK     int     `env:"DATE_SAMPLE_TOP_K" envDefault:"15"`

	// PDP work engine
	BatchSize           int           `env:"PDP_BATCH_SIZE" envDefault:"20"`
	Concurrency         int           `env:"PDP_CONCURRENCY" envDefault:"1"`
	MaxRetries          int           `env:"PDP_MAX_RETRIES" envDefault:"3"`
	MaxURLFailures      int           `env:"PDP_MAX_URL_FAILURES" envDefault:"3"`
	WorkerTimeout       time.Duration `env:"PDP_WORKER_TIMEOUT" envDefault:"45s"`
	HardCooldownBase    time.Duration `env:"COOLDOWN_HARD_BASE" envDefault:"120s"`
	SoftCooldownBase    time.Duration `env:"COOLDOWN_SOFT_BASE" envDefault:"45s"`
	CooldownMax         time.Duration `env:"COOLDOWN_MAX" envDefault:"900s"`
	SegmentCooldownBase time.Duration `env:"SEGMENT_COOLDOWN_BASE" envDefault:"90s"`
	SegmentWaitCap      time.Duration `env:"SEGMENT_WAIT_CAP" envDefault:"15s"`

	// Smart filter
	QualityThreshold float64 `env:"SMART_FILTER_QUALITY_THRESHOLD" envDefault:"60"`
	TTLDays          int     `env:"SMART_FILTER_TTL_DAYS" envDefault:"30"`

	// Browser
	RandomizeViewport bool          `env:"RANDOMIZE_VIEWPORT" envDefault:"false"`
	BlockResources    bool          `env:"BLOCK_RESOURCES" envDefault:"true"`
	EagerPageLoad     bool          `env:"EAGER_PAGE_LOAD" envDefault:"true"`
	HumanGestures     bool          `env:"HUMAN_GESTURES" envDefault:"true"`
	NavigationWait    time.Duration `env:"NAVIGATION_WAIT" envDefault:"3s"`
}

// Load parses the environment into a Config
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %v", err)
	}
	return cfg, nil
}

// RunOptions are per-run overrides merged on top of Config defaults
type RunOptions struct {
	City            string
	Mode            string
	MaxPages        int
	IndividualPages bool
	ForceRescrape   bool
	ExportFormats   []string
	Concurrency     int
	BatchSize       int
	PriceMinLakh    float64
	PriceMaxLakh    float64
	AreaMinSqft     float64
	AreaMaxSqft     float64
	PropertyTypes   []string
	BHKTypes        []string
	Localities      []string
	ExcludeKeywords []string
}

// Merge fills zero-valued RunOptions fields from Config defaults
func (o *RunOptions) Merge(cfg *Config) {
	if o.Mode == "" {
		o.Mode = "full"
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 50
	}
	if o.Concurrency <= 0 {
		o.Concurrency = cfg.Concurrency
	}
	if o.BatchSize <= 0 {
		o.BatchSize = cfg.BatchSize
	}
	if len(o.ExportFormats) == 0 {
		o.ExportFormats = []string{"csv", "json"}
	}
}

// ValidFormats is the accepted export format set
var ValidFormats = map[string]bool{
	"csv":         true,
	"json":        true,
	"spreadsheet": true,
	"sql":         true,
}

// ValidateFormats checks the requested export formats
func ValidateFormats(formats []string) error {
	for _, f := range formats {
		if !ValidFormats[strings.ToLower(strings.TrimSpace(f))] {
			return fmt.Errorf("unknown export format %q", f)
		}
	}
	return nil
}
