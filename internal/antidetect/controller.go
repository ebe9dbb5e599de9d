// Package antidetect watches every navigation for adversarial responses and
// owns the graduated recovery ladder: delay, header rotation, browser
// restart.
package antidetect

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/estatescope/go-estate-scraper/internal/logger"
)

// Options tune the controller. All values have working defaults.
type Options struct {
	RecentDetectionWindow time.Duration // detections inside this window inflate delays
	LongSessionPages      int           // pages after which delays grow
	LongSessionDuration   time.Duration // runtime after which delays grow
}

// Controller is shared by the listing loop and every PDP worker. Detection
// and recovery are serialized through the mutex; callers observe restarts
// via the browser session id.
type Controller struct {
	mu                  sync.Mutex
	opts                Options
	detections          int
	lastDetectionAt     time.Time
	consecutiveFailures int
	pagesServed         int
	sessionStart        time.Time
	uaIndex             int
	rng                 *rand.Rand
	sleep               func(time.Duration)
	logger              *logger.Logger
}

// New creates a controller. The session clock starts immediately.
func New(opts Options) *Controller {
	if opts.RecentDetectionWindow == 0 {
		opts.RecentDetectionWindow = 5 * time.Minute
	}
	if opts.LongSessionPages == 0 {
		opts.LongSessionPages = 40
	}
	if opts.LongSessionDuration == 0 {
		opts.LongSessionDuration = 45 * time.Minute
	}
	return &Controller{
		opts:         opts,
		sessionStart: time.Now(),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:        time.Sleep,
		logger:       logger.NewLogger("antidetect"),
	}
}

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

	// Keywords the portal's anti-automation pages carry
	detectionKeywords = []string{
		"captcha",
		"are you a robot",
		"verify you are human",
		"unusual traffic",
		"access denied",
		"cloudflare",
		"attention required",
		"request blocked",
	}

	// Redirect targets the portal uses when it suspects automation
	aboutRedirectFragments = []string{
		"/about-us",
		"/aboutus",
		"/about.html",
	}

	// The boilerplate title of the vendor "about" page served instead of
	// requested content
	aboutPageTitles = []string{
		"about magicbricks",
		"about us",
	}
)

// Inspect reports whether the served page is an anti-automation response
// rather than the requested content
func (c *Controller) Inspect(pageHTML, currentURL string) bool {
	lowerURL := strings.ToLower(currentURL)
	for _, fragment := range aboutRedirectFragments {
		if strings.Contains(lowerURL, fragment) {
			return true
		}
	}

	lowerHTML := strings.ToLower(pageHTML)
	for _, keyword := range detectionKeywords {
		if strings.Contains(lowerHTML, keyword) {
			return true
		}
	}

	if m := titleRe.FindStringSubmatch(pageHTML); len(m) > 1 {
		title := strings.ToLower(strings.TrimSpace(m[1]))
		for _, boilerplate := range aboutPageTitles {
			if title == boilerplate {
				return true
			}
		}
	}

	return false
}

// HandleDetection records the event and runs the recovery ladder. When it
// returns without error a fresh browser is ready.
//
// Ladder by detection count this session:
//
//	1-2: sleep 45-90s (linear with count), rotate UA, restart
//	3-4: sleep 120-240s, restart
//	5+:  sleep 300s, restart, warn that operator intervention may be needed
func (c *Controller) HandleDetection(ctx context.Context, restartFn func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detections++
	c.lastDetectionAt = time.Now()
	count := c.detections

	var delay time.Duration
	switch {
	case count <= 2:
		delay = time.Duration(45*count) * time.Second
		c.rotateUserAgentLocked()
	case count <= 4:
		delay = time.Duration(120*(count-2)) * time.Second
	default:
		delay = 300 * time.Second
	}

	c.logger.WithFields(map[string]interface{}{
		"detection_count": count,
		"delay":           delay.String(),
	}).Warn("Bot detection triggered, recovering")

	if count >= 5 {
		c.logger.WithField("detection_count", count).
			Warn("Repeated detections this session, operator intervention recommended")
	}

	c.sleep(delay)

	if err := restartFn(ctx); err != nil {
		return fmt.Errorf("browser restart after detection failed: %v", err)
	}
	return nil
}

// ChooseDelay returns a jittered inter-page delay. Recent detections,
// pending consecutive failures and long sessions all stretch it.
func (c *Controller) ChooseDelay(pageIndex int, baseMin, baseMax float64) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pagesServed++

	if baseMax <= baseMin {
		baseMax = baseMin + 1
	}
	seconds := baseMin + c.rng.Float64()*(baseMax-baseMin)

	if !c.lastDetectionAt.IsZero() && time.Since(c.lastDetectionAt) < c.opts.RecentDetectionWindow {
		seconds *= 2
	}
	if c.consecutiveFailures > 0 {
		factor := 1 + 0.5*float64(c.consecutiveFailures)
		if factor > 3 {
			factor = 3
		}
		seconds *= factor
	}
	if c.pagesServed > c.opts.LongSessionPages || time.Since(c.sessionStart) > c.opts.LongSessionDuration {
		seconds *= 1.5
	}

	return time.Duration(seconds * float64(time.Second))
}

// RecordFailure notes one failed navigation for delay inflation
func (c *Controller) RecordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures++
}

// RecordSuccess clears the consecutive-failure streak
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

// RotateUserAgent advances the UA pointer and returns the new value
func (c *Controller) RotateUserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotateUserAgentLocked()
	return userAgentPool[c.uaIndex]
}

// CurrentUserAgent returns the UA all subsequent navigations should carry
func (c *Controller) CurrentUserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return userAgentPool[c.uaIndex]
}

func (c *Controller) rotateUserAgentLocked() {
	c.uaIndex = (c.uaIndex + 1) % len(userAgentPool)
}

// DetectionCount never decreases within a run
func (c *Controller) DetectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detections
}
