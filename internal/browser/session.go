// Package browser wraps a single shared headless Chrome instance. All page
// loads flow through it so detection checks see every response.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/estatescope/go-estate-scraper/internal/logger"
)

// Navigator is what the scraping engines program against. A fake
// implementation backs the engine tests.
type Navigator interface {
	// Navigate loads url and returns the rendered HTML plus the final URL
	// after any redirects. waitSelector, when non-empty, is awaited briefly
	// before capture.
	Navigate(ctx context.Context, url, referer, waitSelector string) (html string, currentURL string, err error)
	// SessionID increases on every restart. Workers holding an old id must
	// abort their current item.
	SessionID() int64
	Restart(ctx context.Context) error
	SimulateHumanGesture(ctx context.Context)
}

// Options configure the Chrome process and per-navigation behavior
type Options struct {
	Headless       bool
	BinaryPath     string
	NavigationWait time.Duration // max wait for the critical selector
	TabTimeout     time.Duration // hard cap per navigation
	BlockResources bool          // skip images, fonts and media
	EagerPageLoad  bool          // return once navigation commits instead of awaiting the load event
	RandomViewport bool
	UserAgent      func() string // called per start so rotation takes effect
}

// Session owns the allocator and browser contexts. Start, Restart and Quit
// are serialized; Navigate opens an isolated tab per call.
type Session struct {
	mu        sync.Mutex
	opts      Options
	allocCtx  context.Context
	allocStop context.CancelFunc
	browCtx   context.Context
	browStop  context.CancelFunc
	sessionID int64
	rng       *rand.Rand
	logger    *logger.Logger
}

// NewSession prepares a session without launching Chrome. Call Start before
// the first Navigate.
func NewSession(opts Options) *Session {
	if opts.NavigationWait == 0 {
		opts.NavigationWait = 3 * time.Second
	}
	if opts.TabTimeout == 0 {
		opts.TabTimeout = 45 * time.Second
	}
	if opts.UserAgent == nil {
		opts.UserAgent = func() string {
			return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
		}
	}
	return &Session{
		opts:   opts,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.NewLogger("browser"),
	}
}

// stealthScript hides the most common automation fingerprints before any
// page script runs
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
`

// blockedPatterns matches resource URLs skipped when BlockResources is on
var blockedPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp4", "*.webm", "*.mp3",
}

// restartTriggers are error substrings that mean the browser process is gone
// and a restart is the only recovery
var restartTriggers = []string{
	"context canceled",
	"context deadline exceeded",
	"websocket: close",
	"broken pipe",
	"connection refused",
	"chrome failed to start",
	"target closed",
	"session closed",
}

// NeedsRestart reports whether err indicates a dead browser process
func NeedsRestart(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, trigger := range restartTriggers {
		if strings.Contains(msg, trigger) {
			return true
		}
	}
	return false
}

// Start launches Chrome with the anti-detection flag set
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	width, height := 1920, 1080
	if s.opts.RandomViewport {
		width = 1280 + s.rng.Intn(641) // 1280-1920
		height = 800 + s.rng.Intn(281) // 800-1080
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(width, height),
		chromedp.UserAgent(s.opts.UserAgent()),
	)
	if s.opts.BinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.BinaryPath))
	}

	s.allocCtx, s.allocStop = chromedp.NewExecAllocator(ctx, opts...)
	s.browCtx, s.browStop = chromedp.NewContext(s.allocCtx)

	// First action launches the process
	if err := chromedp.Run(s.browCtx); err != nil {
		s.stopLocked()
		return fmt.Errorf("failed to start browser: %v", err)
	}

	s.sessionID++
	s.logger.WithFields(map[string]interface{}{
		"session_id": s.sessionID,
		"headless":   s.opts.Headless,
		"viewport":   fmt.Sprintf("%dx%d", width, height),
	}).Info("Browser started")
	return nil
}

// Quit terminates the browser process
func (s *Session) Quit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.logger.WithField("session_id", s.sessionID).Info("Browser stopped")
}

func (s *Session) stopLocked() {
	if s.browStop != nil {
		s.browStop()
		s.browStop = nil
	}
	if s.allocStop != nil {
		s.allocStop()
		s.allocStop = nil
	}
}

// Restart replaces the browser process and bumps the session id. Concurrent
// callers racing on the same dead browser restart it once; the loser sees a
// fresh id and returns immediately.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return s.startLocked(ctx)
}

// SessionID returns the current monotonic session id
func (s *Session) SessionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Navigate loads url in a fresh tab, waits for the content to appear and
// returns the rendered HTML and the post-redirect URL
func (s *Session) Navigate(ctx context.Context, url, referer, waitSelector string) (string, string, error) {
	s.mu.Lock()
	browCtx := s.browCtx
	s.mu.Unlock()
	if browCtx == nil {
		return "", "", fmt.Errorf("browser not started")
	}

	tabCtx, cancelTab := chromedp.NewContext(browCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, s.opts.TabTimeout)
	defer cancelTimeout()

	actions := []chromedp.Action{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if s.opts.BlockResources {
		actions = append(actions, network.SetBlockedURLS(blockedPatterns))
	}
	if referer != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{
			"Referer": referer,
		}))
	}
	if s.opts.EagerPageLoad {
		// Commit-only navigation; awaitContent handles the selector wait
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, _, err := page.Navigate(url).Do(ctx)
			return err
		}))
	} else {
		actions = append(actions, chromedp.Navigate(url))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", "", fmt.Errorf("navigation to %s failed: %v", url, err)
	}

	s.awaitContent(tabCtx, waitSelector)

	var html, currentURL string
	if err := chromedp.Run(tabCtx,
		chromedp.Location(&currentURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", "", fmt.Errorf("failed to capture page %s: %v", url, err)
	}
	return html, currentURL, nil
}

// awaitContent waits up to NavigationWait for the critical selector, then
// falls back to a short settle pause. Dynamic pages often render the
// selector well before the load event.
func (s *Session) awaitContent(tabCtx context.Context, waitSelector string) {
	if waitSelector != "" {
		waitCtx, cancel := context.WithTimeout(tabCtx, s.opts.NavigationWait)
		err := chromedp.Run(waitCtx, chromedp.WaitVisible(waitSelector, chromedp.ByQuery))
		cancel()
		if err == nil {
			return
		}
	}
	settleCtx, cancel := context.WithTimeout(tabCtx, time.Second)
	_ = chromedp.Run(settleCtx, chromedp.Sleep(time.Second))
	cancel()
}

// SimulateHumanGesture performs a couple of small scrolls. Best effort, a
// failure never fails the navigation.
func (s *Session) SimulateHumanGesture(ctx context.Context) {
	s.mu.Lock()
	browCtx := s.browCtx
	s.mu.Unlock()
	if browCtx == nil {
		return
	}

	tabCtx, cancel := context.WithTimeout(browCtx, 5*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		offset := 200 + s.rng.Intn(400)
		_ = chromedp.Run(tabCtx,
			chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", offset), nil),
			chromedp.Sleep(time.Duration(150+s.rng.Intn(250))*time.Millisecond),
		)
	}
}
