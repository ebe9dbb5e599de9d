package engine

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatescope/go-estate-scraper/internal/antidetect"
	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/dateparse"
	"github.com/estatescope/go-estate-scraper/internal/export"
	"github.com/estatescope/go-estate-scraper/internal/extractor"
	"github.com/estatescope/go-estate-scraper/internal/tracker"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

func coordinatorConfig(outputDir string) *config.Config {
	return &config.Config{
		BaseURL:            "https://www.magicbricks.com",
		OutputDir:          outputDir,
		MinCardsPerPage:    1,
		MaxConsecutiveFail: 3,
		StopConfidencePct:  65,
		StopHysteresisPct:  40,
		DateSampleTopK:     15,
		BatchSize:          20,
		Concurrency:        1,
		MaxRetries:         2,
		MaxURLFailures:     2,
		WorkerTimeout:      5 * time.Second,
		SoftCooldownBase:   45 * time.Second,
		CooldownMax:        900 * time.Second,
		QualityThreshold:   60,
		TTLDays:            30,
	}
}

func TestCoordinator_FullSession(t *testing.T) {
	outputDir := t.TempDir()
	cfg := coordinatorConfig(outputDir)

	fake := &fakeNavigator{pages: map[string]string{}}
	store := newMemStore()
	started, stopped := false, false

	deps := Deps{
		Nav:          fake,
		StartBrowser: func(context.Context) error { started = true; return nil },
		StopBrowser:  func() { stopped = true },
		Detector:     antidetect.New(antidetect.Options{}),
		Extractor:    extractor.New(cfg.BaseURL),
		Validator:    validator.New(validator.FilterConfig{}),
		Dates:        dateparse.New(),
		Tracker:      tracker.New(store),
		Exporter:     export.NewManager(outputDir),
	}
	c := NewCoordinator(cfg, deps)

	listing := listingPage("Posted: 2 days ago", "Posted: 5 days ago")
	fake.pages["https://www.magicbricks.com/property-for-sale-in-gurgaon-pppfs"] = listing

	opts := config.RunOptions{City: "gurgaon", Mode: "full", MaxPages: 1, ExportFormats: []string{"csv", "json"}}
	stats, err := c.Run(context.Background(), opts)
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.True(t, started)
	assert.True(t, stopped)
	assert.NotEmpty(t, stats.SessionID)
	assert.Equal(t, 1, stats.PagesScraped)
	assert.Equal(t, 2, stats.PropertiesSaved)
	assert.False(t, stats.EndTime.IsZero())

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// A full walk still pushes the high-water mark forward for the next
	// incremental run
	mark := store.marks["gurgaon"]
	assert.False(t, mark.IsZero())
}

func TestCoordinator_InvalidMode(t *testing.T) {
	c := NewCoordinator(coordinatorConfig(t.TempDir()), Deps{})

	_, err := c.Run(context.Background(), config.RunOptions{City: "gurgaon", Mode: "turbo"})
	assert.Error(t, err)
}

func TestCoordinator_TraversalFailureStillReturnsStats(t *testing.T) {
	outputDir := t.TempDir()
	cfg := coordinatorConfig(outputDir)
	fake := &fakeNavigator{pages: map[string]string{}} // every page 404s

	deps := Deps{
		Nav:          fake,
		StartBrowser: func(context.Context) error { return nil },
		StopBrowser:  func() {},
		Detector:     antidetect.New(antidetect.Options{}),
		Extractor:    extractor.New(cfg.BaseURL),
		Validator:    validator.New(validator.FilterConfig{}),
		Dates:        dateparse.New(),
		Tracker:      tracker.New(newMemStore()),
		Exporter:     export.NewManager(outputDir),
	}
	c := NewCoordinator(cfg, deps)

	opts := config.RunOptions{City: "gurgaon", Mode: "full", MaxPages: 10, ExportFormats: []string{"csv"}}
	stats, err := c.Run(context.Background(), opts)
	require.Error(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "consecutive_failures", stats.StopReason)
	assert.False(t, stats.EndTime.IsZero())
}
