// Package engine contains the listing traversal, the PDP work engine and the
// coordinator that drives a whole scrape session.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/estatescope/go-estate-scraper/internal/antidetect"
	"github.com/estatescope/go-estate-scraper/internal/browser"
	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/dateparse"
	"github.com/estatescope/go-estate-scraper/internal/extractor"
	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
	"github.com/estatescope/go-estate-scraper/internal/tracker"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

// Traversal walks search-result pages for one city, extracting and validating
// cards until a page budget, a failure budget or the incremental stop ends
// the walk
type Traversal struct {
	nav       browser.Navigator
	detector  *antidetect.Controller
	extractor *extractor.Extractor
	validator *validator.Validator
	dates     dateparse.Parser
	cfg       *config.Config
	stats     *models.SessionStats
	logger    *logger.Logger
	sleep     func(time.Duration)
}

// NewTraversal wires a traversal engine from its collaborators
func NewTraversal(nav browser.Navigator, detector *antidetect.Controller, ex *extractor.Extractor,
	val *validator.Validator, dates dateparse.Parser, cfg *config.Config, stats *models.SessionStats) *Traversal {
	return &Traversal{
		nav:       nav,
		detector:  detector,
		extractor: ex,
		validator: val,
		dates:     dates,
		cfg:       cfg,
		stats:     stats,
		logger:    logger.NewLogger("traversal"),
		sleep:     time.Sleep,
	}
}

// CitySlug resolves a city keyword to its listing-URL slug. Unknown cities
// get a plain lowercase-hyphenated slug.
func CitySlug(city string) string {
	key := strings.ToLower(strings.TrimSpace(city))
	if slug, ok := extractor.CitySlugs[key]; ok {
		return slug
	}
	return strings.Join(strings.Fields(key), "-")
}

// ListingURL builds the page-1 search URL for a city. Date-sorted modes
// request newest-first ordering.
func (t *Traversal) ListingURL(city string, mode models.ScrapingMode) string {
	base := fmt.Sprintf("%s/property-for-sale-in-%s-pppfs",
		strings.TrimSuffix(t.cfg.BaseURL, "/"), CitySlug(city))
	if mode.SortsByDate() {
		base += "?sort=date_desc"
	}
	return base
}

// PageURL appends the page parameter. Page 1 is the bare listing URL; later
// pages honor an existing query string.
func PageURL(base string, page int) string {
	if page <= 1 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%spage=%d", base, sep, page)
}

// Run walks listing pages and returns the validated records. highWater, when
// non-zero, arms the incremental stop for date-sorted modes.
func (t *Traversal) Run(ctx context.Context, opts config.RunOptions, mode models.ScrapingMode, highWater time.Time) ([]*models.PropertyRecord, error) {
	base := t.ListingURL(opts.City, mode)
	waitSelector := extractor.CardContainerSelectors[0]

	var records []*models.PropertyRecord
	var referer string
	consecutiveFailures := 0
	prevOlderPct := 0.0
	stopArmed := mode.SortsByDate() && !highWater.IsZero()

	for page := 1; page <= opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		pageURL := PageURL(base, page)
		pageLog := t.logger.WithFields(map[string]interface{}{
			"page": page,
			"url":  pageURL,
		})

		doc, err := t.loadPage(ctx, pageURL, referer, waitSelector)
		if err != nil {
			consecutiveFailures++
			t.detector.RecordFailure()
			pageLog.WithError(err).WithField("consecutive_failures", consecutiveFailures).
				Error("Listing page failed")
			if consecutiveFailures >= t.cfg.MaxConsecutiveFail {
				t.stats.MarkStopped("consecutive_failures")
				return records, fmt.Errorf("aborting after %d consecutive page failures: %v",
					consecutiveFailures, err)
			}
			continue
		}
		t.detector.RecordSuccess()
		referer = pageURL

		cards, selector := t.extractor.FindCards(doc, t.cfg.MinCardsPerPage)
		if cards == nil || cards.Length() == 0 {
			// A card-less page spends the same budget as a failed load
			consecutiveFailures++
			pageLog.WithField("consecutive_failures", consecutiveFailures).
				Warn("No listing cards found on page")
			if consecutiveFailures >= t.cfg.MaxConsecutiveFail {
				t.stats.MarkStopped("consecutive_failures")
				return records, fmt.Errorf("aborting after %d consecutive empty pages", consecutiveFailures)
			}
			if page < opts.MaxPages {
				t.sleep(t.detector.ChooseDelay(page, t.cfg.PageDelayMinSec, t.cfg.PageDelayMaxSec))
			}
			continue
		}
		consecutiveFailures = 0

		pageRecords, pageDates := t.processCards(cards, opts, page)
		t.stats.AddPage(cards.Length(), len(pageRecords))
		records = append(records, pageRecords...)

		pageLog.WithFields(map[string]interface{}{
			"selector": selector,
			"found":    cards.Length(),
			"saved":    len(pageRecords),
		}).Info("Listing page scraped")

		if stopArmed {
			olderPct := olderFraction(pageDates, highWater, t.cfg.DateSampleTopK) * 100
			// Hysteresis needs a previous page; page 1 stops on its own
			// percentage alone
			if olderPct >= t.cfg.StopConfidencePct && (page == 1 || prevOlderPct >= t.cfg.StopHysteresisPct) {
				t.stats.MarkStopped("old_postings")
				pageLog.WithFields(map[string]interface{}{
					"older_pct":      fmt.Sprintf("%.0f", olderPct),
					"prev_older_pct": fmt.Sprintf("%.0f", prevOlderPct),
				}).Info("Incremental stop: page content predates last run")
				break
			}
			prevOlderPct = olderPct
		}

		if t.cfg.HumanGestures {
			t.nav.SimulateHumanGesture(ctx)
		}
		if page < opts.MaxPages {
			t.sleep(t.detector.ChooseDelay(page, t.cfg.PageDelayMinSec, t.cfg.PageDelayMaxSec))
		}
	}

	return records, nil
}

// loadPage navigates, runs the detection check, and parses the HTML. One
// recovery attempt follows a detection or a browser restart; a second failure
// of either kind on the same page fails it.
func (t *Traversal) loadPage(ctx context.Context, pageURL, referer, waitSelector string) (*goquery.Document, error) {
	restarted := false
	for attempt := 0; attempt < 2; attempt++ {
		html, currentURL, err := t.nav.Navigate(ctx, pageURL, referer, waitSelector)
		if err != nil {
			if browser.NeedsRestart(err) && !restarted {
				restarted = true
				t.logger.WithError(err).WithField("url", pageURL).
					Warn("Browser died on listing page, restarting and retrying")
				if rerr := t.nav.Restart(ctx); rerr != nil {
					return nil, fmt.Errorf("browser restart failed: %v", rerr)
				}
				continue
			}
			return nil, err
		}

		if t.detector.Inspect(html, currentURL) {
			t.stats.AddDetection()
			if herr := t.detector.HandleDetection(ctx, t.nav.Restart); herr != nil {
				return nil, herr
			}
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("failed to parse listing page: %v", err)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("page still served a detection response after recovery")
}

// processCards extracts, cleans, validates and filters every card on a page.
// Returns the surviving records plus the parsed posting dates of all cards
// for the incremental stop sample.
func (t *Traversal) processCards(cards *goquery.Selection, opts config.RunOptions, page int) ([]*models.PropertyRecord, []time.Time) {
	var pageRecords []*models.PropertyRecord
	var pageDates []time.Time
	now := time.Now()

	cards.Each(func(position int, card *goquery.Selection) {
		raw := t.extractor.ExtractCard(card)
		rec := t.validator.ValidateAndClean(raw)
		rec.City = strings.ToLower(strings.TrimSpace(opts.City))
		rec.PageNumber = page
		rec.PositionOnPage = position + 1
		rec.SessionID = t.stats.SessionID
		if rec.URL != "" {
			rec.URLHash = tracker.HashURL(rec.URL)
		}

		if ts, which, ok := dateparse.ResolveCanonical(t.dates, rec.PostingDateRaw, rec.PostingDateAltRaw, now); ok {
			rec.PostingDateParsed = &ts
			pageDates = append(pageDates, ts)
			if which == "alt_position" {
				t.logger.WithField("url", rec.URL).
					Debug("Alternate posting-date position was earlier, using it")
			}
		}

		if !t.validator.IsValid(rec) {
			t.stats.RecordValidationDrop()
			return
		}
		t.validator.Score(rec)

		included := t.validator.ApplyFilters(rec)
		t.stats.RecordFiltered(!included)
		if !included {
			return
		}

		pageRecords = append(pageRecords, rec)
	})

	return pageRecords, pageDates
}

// olderFraction returns the share of the newest topK page dates at or before
// the high-water mark. Pages are date-sorted in incremental modes, so the
// top of the page is the newest content the portal has.
func olderFraction(dates []time.Time, highWater time.Time, topK int) float64 {
	if len(dates) == 0 {
		return 0
	}
	sample := dates
	if topK > 0 && len(sample) > topK {
		sample = sample[:topK]
	}
	older := 0
	for _, ts := range sample {
		if !ts.After(highWater) {
			older++
		}
	}
	return float64(older) / float64(len(sample))
}
