package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatescope/go-estate-scraper/internal/antidetect"
	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/dateparse"
	"github.com/estatescope/go-estate-scraper/internal/extractor"
	"github.com/estatescope/go-estate-scraper/internal/models"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

// fakeNavigator serves canned HTML per URL without a real browser. failLimit
// bounds how often navErr fires (0 means every call); bumpAfterNav advances
// the session id after a successful navigation, as a concurrent restart would.
type fakeNavigator struct {
	pages        map[string]string
	requests     []string
	restarts     int
	navErr       error
	failLimit    int
	failed       int
	bumpAfterNav bool
	sessionBumps int64
}

func (f *fakeNavigator) Navigate(_ context.Context, pageURL, _, _ string) (string, string, error) {
	f.requests = append(f.requests, pageURL)
	if f.navErr != nil && (f.failLimit == 0 || f.failed < f.failLimit) {
		f.failed++
		return "", "", f.navErr
	}
	html, ok := f.pages[pageURL]
	if !ok {
		return "", "", fmt.Errorf("no fixture for %s", pageURL)
	}
	if f.bumpAfterNav {
		f.sessionBumps++
	}
	return html, pageURL, nil
}

func (f *fakeNavigator) SessionID() int64              { return 1 + int64(f.restarts) + f.sessionBumps }
func (f *fakeNavigator) Restart(context.Context) error { f.restarts++; return nil }

func (f *fakeNavigator) SimulateHumanGesture(context.Context) {}

// listingPage renders one search-results page with a card per posting date
func listingPage(postedTexts ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="mb-srp__list">`)
	for i, posted := range postedTexts {
		fmt.Fprintf(&b, `
  <div class="mb-srp__card">
    <h2 class="mb-srp__card--title">%d BHK Apartment in Sector 57</h2>
    <div class="mb-srp__card__price--amount">₹1.2 Cr</div>
    <div class="mb-srp__card__summary--value">1400 sqft</div>
    <span class="mb-srp__card--locality">Sector 57</span>
    <span class="mb-srp__card__photo--count">%s</span>
    <a href="/propertyDetails/%d-BHK-Apartment-Sector-57-in-Gurgaon?pdpid=%d">View Details</a>
  </div>`, i+2, posted, i+2, i+1000)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func newTestTraversal(fake *fakeNavigator, cfg *config.Config) (*Traversal, *models.SessionStats) {
	if cfg == nil {
		cfg = &config.Config{
			BaseURL:            "https://www.magicbricks.com",
			MinCardsPerPage:    1,
			MaxConsecutiveFail: 3,
			StopConfidencePct:  65,
			StopHysteresisPct:  40,
			DateSampleTopK:     15,
		}
	}
	stats := &models.SessionStats{SessionID: "test-session", StartTime: time.Now()}
	tr := NewTraversal(fake, antidetect.New(antidetect.Options{}), extractor.New(cfg.BaseURL),
		validator.New(validator.FilterConfig{}), dateparse.New(), cfg, stats)
	tr.sleep = func(time.Duration) {}
	return tr, stats
}

func TestListingURL_SortParam(t *testing.T) {
	tr, _ := newTestTraversal(&fakeNavigator{}, nil)

	full := tr.ListingURL("Gurgaon", models.ModeFull)
	assert.Equal(t, "https://www.magicbricks.com/property-for-sale-in-gurgaon-pppfs", full)

	incremental := tr.ListingURL("Gurgaon", models.ModeIncremental)
	assert.Equal(t, "https://www.magicbricks.com/property-for-sale-in-gurgaon-pppfs?sort=date_desc", incremental)
}

func TestPageURL(t *testing.T) {
	assert.Equal(t, "https://x/base", PageURL("https://x/base", 1))
	assert.Equal(t, "https://x/base?page=2", PageURL("https://x/base", 2))
	assert.Equal(t, "https://x/base?sort=date_desc&page=3", PageURL("https://x/base?sort=date_desc", 3))
}

func TestRun_CollectsRecords(t *testing.T) {
	fake := &fakeNavigator{pages: map[string]string{}}
	tr, stats := newTestTraversal(fake, nil)

	base := tr.ListingURL("gurgaon", models.ModeFull)
	fake.pages[base] = listingPage("Posted: 2 days ago", "Posted: 5 days ago", "Posted: Today")

	records, err := tr.Run(context.Background(), config.RunOptions{City: "Gurgaon", MaxPages: 1}, models.ModeFull, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "gurgaon", first.City)
	assert.Equal(t, 1, first.PageNumber)
	assert.Equal(t, 1, first.PositionOnPage)
	assert.Equal(t, "test-session", first.SessionID)
	assert.NotEmpty(t, first.URLHash)
	require.NotNil(t, first.PostingDateParsed)

	assert.Equal(t, 1, stats.PagesScraped)
	assert.Equal(t, 3, stats.PropertiesFound)
	assert.Equal(t, 3, stats.PropertiesSaved)
	assert.False(t, stats.IncrementalStopped)
}

func TestRun_IncrementalStopWithHysteresis(t *testing.T) {
	fake := &fakeNavigator{pages: map[string]string{}}
	tr, stats := newTestTraversal(fake, nil)

	base := tr.ListingURL("gurgaon", models.ModeIncremental)
	fresh := listingPage("Posted: 1 day ago", "Posted: 2 days ago", "Posted: 3 days ago")
	old := listingPage("Posted: 90 days ago", "Posted: 95 days ago", "Posted: 100 days ago")
	fake.pages[base] = fresh
	fake.pages[PageURL(base, 2)] = old
	fake.pages[PageURL(base, 3)] = old
	// No fixture past page 3: reaching it would fail the test

	highWater := time.Now().AddDate(0, 0, -30)
	records, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 10}, models.ModeIncremental, highWater)
	require.NoError(t, err)

	// Page 2 is the first fully-old page; hysteresis defers the stop to page 3
	assert.Len(t, fake.requests, 3)
	assert.Len(t, records, 9)
	assert.True(t, stats.IncrementalStopped)
	assert.Equal(t, "old_postings", stats.StopReason)
}

func TestRun_IncrementalStopOnFirstPage(t *testing.T) {
	fake := &fakeNavigator{pages: map[string]string{}}
	tr, stats := newTestTraversal(fake, nil)

	base := tr.ListingURL("gurgaon", models.ModeIncremental)
	fake.pages[base] = listingPage("Posted: 90 days ago", "Posted: 95 days ago", "Posted: 100 days ago")

	highWater := time.Now().AddDate(0, 0, -30)
	_, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 10}, models.ModeIncremental, highWater)
	require.NoError(t, err)

	assert.Len(t, fake.requests, 1)
	assert.Equal(t, 1, stats.PagesScraped)
	assert.True(t, stats.IncrementalStopped)
	assert.Equal(t, "old_postings", stats.StopReason)
}

func TestRun_NoStopWithoutHighWater(t *testing.T) {
	fake := &fakeNavigator{pages: map[string]string{}}
	tr, stats := newTestTraversal(fake, nil)

	base := tr.ListingURL("gurgaon", models.ModeIncremental)
	old := listingPage("Posted: 90 days ago", "Posted: 95 days ago")
	fake.pages[base] = old
	fake.pages[PageURL(base, 2)] = old

	_, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 2}, models.ModeIncremental, time.Time{})
	require.NoError(t, err)
	assert.Len(t, fake.requests, 2)
	assert.False(t, stats.IncrementalStopped)
}

func TestRun_ConsecutiveFailureBudget(t *testing.T) {
	fake := &fakeNavigator{navErr: errors.New("net::ERR_CONNECTION_RESET")}
	tr, stats := newTestTraversal(fake, nil)

	_, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 10}, models.ModeFull, time.Time{})
	require.Error(t, err)
	assert.Len(t, fake.requests, 3)
	assert.True(t, stats.IncrementalStopped)
	assert.Equal(t, "consecutive_failures", stats.StopReason)
}

func TestRun_CountsValidationDrops(t *testing.T) {
	fake := &fakeNavigator{pages: map[string]string{}}
	tr, stats := newTestTraversal(fake, nil)

	base := tr.ListingURL("gurgaon", models.ModeFull)
	page := listingPage("Posted: 2 days ago")
	// A card with no core fields sits next to the good one
	bare := `<div class="mb-srp__card"><span class="mb-srp__card__photo--count">12 Photos</span></div>`
	fake.pages[base] = strings.Replace(page, `</div></body></html>`, bare+`</div></body></html>`, 1)

	records, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 1}, models.ModeFull, time.Time{})
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, 1, stats.FilterStats.ValidationDropped)
	// Only records that pass validation reach the user filters
	assert.Equal(t, 1, stats.FilterStats.Total)
	assert.Equal(t, stats.FilterStats.Total, stats.FilterStats.Filtered+stats.FilterStats.Excluded)
}

func TestRun_EmptyPagesExhaustBudget(t *testing.T) {
	fake := &fakeNavigator{pages: map[string]string{}}
	tr, stats := newTestTraversal(fake, nil)

	base := tr.ListingURL("gurgaon", models.ModeFull)
	cardless := `<html><body><div class="mb-srp__list"></div></body></html>`
	for page := 1; page <= 10; page++ {
		fake.pages[PageURL(base, page)] = cardless
	}

	_, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 10}, models.ModeFull, time.Time{})
	require.Error(t, err)

	// Card-less pages spend the failure budget just like failed loads
	assert.Len(t, fake.requests, 3)
	assert.True(t, stats.IncrementalStopped)
	assert.Equal(t, "consecutive_failures", stats.StopReason)
}

func TestRun_RestartsDeadBrowser(t *testing.T) {
	fake := &fakeNavigator{navErr: errors.New("websocket: close 1006 (abnormal closure)")}
	cfg := &config.Config{
		BaseURL:            "https://www.magicbricks.com",
		MinCardsPerPage:    1,
		MaxConsecutiveFail: 1,
		StopConfidencePct:  65,
		StopHysteresisPct:  40,
		DateSampleTopK:     15,
	}
	tr, _ := newTestTraversal(fake, cfg)

	_, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 2}, models.ModeFull, time.Time{})
	require.Error(t, err)

	// One restart and one retry of the same page; the second death fails it
	assert.Equal(t, 1, fake.restarts)
	assert.Len(t, fake.requests, 2)
	assert.Equal(t, fake.requests[0], fake.requests[1])
}

func TestRun_RetriesPageAfterRestart(t *testing.T) {
	fake := &fakeNavigator{
		pages:     map[string]string{},
		navErr:    errors.New("websocket: close 1006 (abnormal closure)"),
		failLimit: 1,
	}
	tr, stats := newTestTraversal(fake, nil)

	base := tr.ListingURL("gurgaon", models.ModeFull)
	fake.pages[base] = listingPage("Posted: 2 days ago", "Posted: 5 days ago")

	records, err := tr.Run(context.Background(), config.RunOptions{City: "gurgaon", MaxPages: 1}, models.ModeFull, time.Time{})
	require.NoError(t, err)

	// The page that killed the browser is retried after the restart
	assert.Equal(t, 1, fake.restarts)
	assert.Len(t, fake.requests, 2)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, stats.PagesScraped)
}

func TestOlderFraction(t *testing.T) {
	highWater := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	before := highWater.AddDate(0, 0, -10)
	after := highWater.AddDate(0, 0, 10)

	assert.Equal(t, 0.0, olderFraction(nil, highWater, 15))
	assert.Equal(t, 1.0, olderFraction([]time.Time{before, before}, highWater, 15))
	assert.Equal(t, 0.5, olderFraction([]time.Time{before, after}, highWater, 15))

	// Only the newest topK entries are sampled
	dates := []time.Time{after, after, before, before}
	assert.Equal(t, 0.0, olderFraction(dates, highWater, 2))
}
