package engine

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/estatescope/go-estate-scraper/internal/antidetect"
	"github.com/estatescope/go-estate-scraper/internal/browser"
	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/extractor"
	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
	"github.com/estatescope/go-estate-scraper/internal/tracker"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

// PDPEngine visits detail pages for listing records in batches of bounded
// concurrency, merging what it finds back into the records and updating the
// tracker
type PDPEngine struct {
	nav       browser.Navigator
	detector  *antidetect.Controller
	extractor *extractor.Extractor
	validator *validator.Validator
	tracker   *tracker.Tracker
	cooldowns *CooldownManager
	cfg       *config.Config
	stats     *models.SessionStats
	logger    *logger.Logger
	sleep     func(time.Duration)
}

// NewPDPEngine wires a PDP engine from its collaborators
func NewPDPEngine(nav browser.Navigator, detector *antidetect.Controller, ex *extractor.Extractor,
	val *validator.Validator, tr *tracker.Tracker, cooldowns *CooldownManager,
	cfg *config.Config, stats *models.SessionStats) *PDPEngine {
	return &PDPEngine{
		nav:       nav,
		detector:  detector,
		extractor: ex,
		validator: val,
		tracker:   tr,
		cooldowns: cooldowns,
		cfg:       cfg,
		stats:     stats,
		logger:    logger.NewLogger("pdp"),
		sleep:     time.Sleep,
	}
}

// Run enriches records from their detail pages. referer is the last listing
// page visited, carried on every PDP request. Records without a URL are
// skipped; duplicates by url_hash are visited once.
func (p *PDPEngine) Run(ctx context.Context, records []*models.PropertyRecord, mode models.ScrapingMode, opts config.RunOptions, referer string) error {
	byHash := make(map[string]*models.PropertyRecord, len(records))
	var urls []string
	for _, rec := range records {
		if rec.URL == "" || rec.URLHash == "" {
			continue
		}
		if _, dup := byHash[rec.URLHash]; dup {
			continue
		}
		byHash[rec.URLHash] = rec
		urls = append(urls, rec.URL)
	}

	if mode.UsesTrackerFilter() && !opts.ForceRescrape && p.tracker != nil {
		filtered, _, err := p.tracker.SmartFilter(ctx, urls, p.cfg.QualityThreshold, p.cfg.TTLDays)
		if err != nil {
			return fmt.Errorf("smart filter failed: %v", err)
		}
		urls = filtered
	}
	if len(urls) == 0 {
		p.logger.Info("No detail pages to visit after filtering")
		return nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}

	for start := 0; start < len(urls); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + batchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch := urls[start:end]

		p.runBatch(ctx, batch, byHash, opts, referer)
		p.logBatchQuality(batch, byHash, start/batchSize+1)

		if end < len(urls) {
			p.sleep(time.Duration(3+rand.Intn(4)) * time.Second)
		}
	}
	return nil
}

// runBatch fans one batch out over min(concurrency, batch size) workers
func (p *PDPEngine) runBatch(ctx context.Context, batch []string, byHash map[string]*models.PropertyRecord, opts config.RunOptions, referer string) {
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	if workers > len(batch) {
		workers = len(batch)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range jobs {
				rec := byHash[tracker.HashURL(url)]
				if rec == nil {
					continue
				}
				p.scrapeOne(ctx, rec, referer)
			}
		}()
	}
	for _, url := range batch {
		select {
		case jobs <- url:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

// scrapeOne visits one detail page with retries, cooldown gates and the
// detection check, merging the result into rec on success
func (p *PDPEngine) scrapeOne(ctx context.Context, rec *models.PropertyRecord, referer string) {
	url := rec.URL
	urlLog := p.logger.WithField("url", url)
	segment := SegmentOf(url)
	startSession := p.nav.SessionID()

	if p.cooldowns.URLFailureCount(url) >= p.cfg.MaxURLFailures {
		urlLog.Debug("URL exceeded its failure budget, skipping")
		return
	}
	if ready, remaining := p.cooldowns.URLReady(url); !ready {
		urlLog.WithField("remaining", remaining.String()).Debug("URL cooling down, skipping")
		return
	}
	if wait := p.cooldowns.SegmentWait(segment); wait > 0 {
		p.sleep(wait)
		// The wait is capped below the full cooldown; if the segment is
		// still cooling the URL waits for a later run
		if p.cooldowns.SegmentWait(segment) > 0 {
			urlLog.WithField("segment", segment).Debug("Segment still cooling down, skipping")
			return
		}
	}

	// Small human-like pause between consecutive detail requests
	p.sleep(time.Duration(200+rand.Intn(700)) * time.Millisecond)

	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if p.nav.SessionID() != startSession {
			urlLog.Debug("Browser restarted mid-item, aborting")
			return
		}

		navCtx, cancel := context.WithTimeout(ctx, p.cfg.WorkerTimeout)
		html, currentURL, err := p.nav.Navigate(navCtx, url, referer, extractor.PDPCriticalSelector)
		cancel()

		if err != nil {
			if browser.NeedsRestart(err) {
				// A dead browser is a session problem, not a URL problem:
				// restart and retry the same URL within the attempt budget
				urlLog.WithError(err).WithField("attempt", attempt).
					Warn("Browser died during detail navigation")
				if rerr := p.nav.Restart(ctx); rerr != nil {
					urlLog.WithError(rerr).Error("Browser restart failed")
					return
				}
				startSession = p.nav.SessionID()
				continue
			}

			failures := p.cooldowns.URLFailure(url, false)
			p.cooldowns.SegmentFailure(segment)
			urlLog.WithError(err).WithFields(map[string]interface{}{
				"attempt":  attempt,
				"failures": failures,
			}).Warn("Detail page navigation failed")
			p.recordFailure(ctx, url)
			if failures >= p.cfg.MaxURLFailures {
				return
			}
			p.sleep(backoff(p.cfg.SoftCooldownBase, p.cfg.CooldownMax, attempt))
			continue
		}

		if p.detector.Inspect(html, currentURL) {
			p.stats.AddDetection()
			p.cooldowns.URLFailure(url, true)
			p.cooldowns.SegmentFailure(segment)
			if herr := p.detector.HandleDetection(ctx, p.nav.Restart); herr != nil {
				urlLog.WithError(herr).Error("Detection recovery failed")
			}
			return
		}

		doc, perr := goquery.NewDocumentFromReader(strings.NewReader(html))
		if perr != nil {
			urlLog.WithError(perr).Warn("Failed to parse detail page")
			p.cooldowns.URLFailure(url, false)
			p.recordFailure(ctx, url)
			continue
		}

		raw := p.extractor.ExtractDetail(doc)
		if !raw.Success() {
			failures := p.cooldowns.URLFailure(url, false)
			p.cooldowns.SegmentFailure(segment)
			urlLog.WithField("failures", failures).Warn("Detail extraction yielded nothing")
			p.recordFailure(ctx, url)
			if failures >= p.cfg.MaxURLFailures {
				return
			}
			continue
		}

		// A restart while this navigation was in flight invalidates the
		// capture; discard it rather than record a stale result
		if p.nav.SessionID() != startSession {
			urlLog.Debug("Browser restarted mid-item, discarding result")
			return
		}

		detail := p.validator.ValidateAndClean(raw)
		rec.MergeDetail(detail)
		p.validator.Score(rec)

		p.cooldowns.URLSuccess(url)
		p.cooldowns.SegmentSuccess(segment)
		if p.tracker != nil {
			if terr := p.tracker.RecordResult(ctx, url, true, rec.DataQualityScore); terr != nil {
				urlLog.WithError(terr).Warn("Failed to record tracker result")
			}
		}
		p.stats.AddPDP()
		return
	}
}

// recordFailure persists one unsuccessful attempt so the next run's smart
// filter retries the URL and the scrape count reflects every try
func (p *PDPEngine) recordFailure(ctx context.Context, url string) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.RecordResult(ctx, url, false, 0); err != nil {
		p.logger.WithError(err).WithField("url", url).Warn("Failed to record tracker result")
	}
}

// logBatchQuality reports the average quality score of a finished batch
func (p *PDPEngine) logBatchQuality(batch []string, byHash map[string]*models.PropertyRecord, batchNum int) {
	total := 0.0
	counted := 0
	for _, url := range batch {
		if rec := byHash[tracker.HashURL(url)]; rec != nil {
			total += rec.DataQualityScore
			counted++
		}
	}
	avg := 0.0
	if counted > 0 {
		avg = total / float64(counted)
	}
	p.logger.WithFields(map[string]interface{}{
		"batch":       batchNum,
		"size":        len(batch),
		"avg_quality": fmt.Sprintf("%.1f", avg),
	}).Info("Detail batch completed")
}
