package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estatescope/go-estate-scraper/internal/antidetect"
	"github.com/estatescope/go-estate-scraper/internal/browser"
	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/dateparse"
	"github.com/estatescope/go-estate-scraper/internal/export"
	"github.com/estatescope/go-estate-scraper/internal/extractor"
	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
	"github.com/estatescope/go-estate-scraper/internal/repository"
	"github.com/estatescope/go-estate-scraper/internal/tracker"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

// Deps are the coordinator's collaborators. Tests inject fakes; Build wires
// the real ones.
type Deps struct {
	Nav          browser.Navigator
	StartBrowser func(ctx context.Context) error
	StopBrowser  func()
	Detector     *antidetect.Controller
	Extractor    *extractor.Extractor
	Validator    *validator.Validator
	Dates        dateparse.Parser
	Tracker      *tracker.Tracker
	Exporter     *export.Manager
	Repo         repository.PropertyRepository
}

// Coordinator runs one scrape session end to end: listing traversal, detail
// enrichment, final validation, export and persistence
type Coordinator struct {
	cfg    *config.Config
	deps   Deps
	logger *logger.Logger
}

// NewCoordinator creates a coordinator over prewired dependencies
func NewCoordinator(cfg *config.Config, deps Deps) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.NewLogger("coordinator"),
	}
}

// Build wires a coordinator with real components from the configuration. The
// returned cleanup releases the tracker and repository; the browser lifecycle
// belongs to Run.
func Build(ctx context.Context, cfg *config.Config, filters validator.FilterConfig) (*Coordinator, func(), error) {
	detector := antidetect.New(antidetect.Options{})
	session := browser.NewSession(browser.Options{
		Headless:       cfg.Headless,
		BinaryPath:     cfg.BrowserBinaryPath,
		NavigationWait: cfg.NavigationWait,
		TabTimeout:     cfg.WorkerTimeout,
		BlockResources: cfg.BlockResources,
		EagerPageLoad:  cfg.EagerPageLoad,
		RandomViewport: cfg.RandomizeViewport,
		UserAgent:      detector.CurrentUserAgent,
	})

	store, err := tracker.NewSQLiteStore(cfg.TrackerDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tracker: %v", err)
	}
	tr := tracker.New(store)

	deps := Deps{
		Nav:          session,
		StartBrowser: session.Start,
		StopBrowser:  session.Quit,
		Detector:     detector,
		Extractor:    extractor.New(cfg.BaseURL),
		Validator:    validator.New(filters),
		Dates:        dateparse.New(),
		Tracker:      tr,
		Exporter:     export.NewManager(cfg.OutputDir),
	}

	cleanup := func() { tr.Close() }

	if cfg.MongoURI != "" {
		repo, rerr := repository.NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if rerr != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect property repository: %v", rerr)
		}
		deps.Repo = repo
		cleanup = func() {
			tr.Close()
			repo.Close(context.Background())
		}
	}

	return NewCoordinator(cfg, deps), cleanup, nil
}

// Run executes one full session and returns its statistics. The returned
// stats are complete even when the run ends in an error.
func (c *Coordinator) Run(ctx context.Context, opts config.RunOptions) (*models.SessionStats, error) {
	mode, err := models.ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateFormats(opts.ExportFormats); err != nil {
		return nil, err
	}
	opts.Merge(c.cfg)

	stats := &models.SessionStats{
		SessionID: uuid.NewString(),
		StartTime: time.Now(),
		Mode:      mode,
		City:      opts.City,
	}
	runLog := c.logger.WithFields(map[string]interface{}{
		"session_id": stats.SessionID,
		"mode":       string(mode),
		"city":       opts.City,
	})
	runLog.Info("Scrape session starting")

	if err := c.deps.StartBrowser(ctx); err != nil {
		return stats, fmt.Errorf("failed to start browser: %v", err)
	}
	defer c.deps.StopBrowser()

	var highWater time.Time
	if mode.SortsByDate() && c.deps.Tracker != nil {
		if hw, herr := c.deps.Tracker.HighWater(ctx, opts.City); herr != nil {
			runLog.WithError(herr).Warn("Could not load high-water mark, full walk")
		} else {
			highWater = hw
		}
	}

	traversal := NewTraversal(c.deps.Nav, c.deps.Detector, c.deps.Extractor,
		c.deps.Validator, c.deps.Dates, c.cfg, stats)
	records, terr := traversal.Run(ctx, opts, mode, highWater)
	if terr != nil && len(records) == 0 {
		stats.EndTime = time.Now()
		return stats, fmt.Errorf("listing traversal failed: %v", terr)
	}
	if terr != nil {
		runLog.WithError(terr).Warn("Listing traversal ended early, continuing with partial results")
	}

	if opts.IndividualPages && len(records) > 0 {
		cooldowns := NewCooldownManager(CooldownConfig{
			HardBase:    c.cfg.HardCooldownBase,
			SoftBase:    c.cfg.SoftCooldownBase,
			Max:         c.cfg.CooldownMax,
			SegmentBase: c.cfg.SegmentCooldownBase,
			WaitCap:     c.cfg.SegmentWaitCap,
		})
		pdp := NewPDPEngine(c.deps.Nav, c.deps.Detector, c.deps.Extractor,
			c.deps.Validator, c.deps.Tracker, cooldowns, c.cfg, stats)
		referer := PageURL(traversal.ListingURL(opts.City, mode), stats.PagesScraped)
		if perr := pdp.Run(ctx, records, mode, opts, referer); perr != nil {
			runLog.WithError(perr).Warn("Detail enrichment ended early")
		}
	}

	// Final sweep: rescore after all merging is done and drop anything the
	// merge left invalid
	newest := highWater
	kept := records[:0]
	for _, rec := range records {
		if !c.deps.Validator.IsValid(rec) {
			stats.RecordValidationDrop()
			continue
		}
		c.deps.Validator.Score(rec)
		if rec.PostingDateParsed != nil && rec.PostingDateParsed.After(newest) {
			newest = *rec.PostingDateParsed
		}
		kept = append(kept, rec)
	}
	if dropped := len(records) - len(kept); dropped > 0 {
		runLog.WithField("dropped", dropped).Warn("Records became invalid after detail merge")
	}
	records = kept
	if c.deps.Tracker != nil && !newest.IsZero() {
		if herr := c.deps.Tracker.AdvanceHighWater(ctx, opts.City, newest); herr != nil {
			runLog.WithError(herr).Warn("Failed to advance high-water mark")
		}
	}

	paths, eerr := c.deps.Exporter.Export(records, stats, opts.ExportFormats)
	if eerr != nil {
		stats.EndTime = time.Now()
		return stats, fmt.Errorf("export failed: %v", eerr)
	}

	if c.deps.Repo != nil {
		if serr := c.deps.Repo.SaveAll(ctx, records); serr != nil {
			runLog.WithError(serr).Error("Failed to persist properties")
		}
	}

	stats.EndTime = time.Now()
	runLog.WithFields(map[string]interface{}{
		"pages":      stats.PagesScraped,
		"found":      stats.PropertiesFound,
		"saved":      stats.PropertiesSaved,
		"pdp":        stats.IndividualPropertiesScraped,
		"detections": stats.DetectionEvents,
		"duration":   stats.Duration().Round(time.Second).String(),
		"exports":    paths,
	}).Info("Scrape session finished")

	return stats, nil
}
