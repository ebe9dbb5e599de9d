package engine

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// CooldownConfig holds the backoff bases and caps
type CooldownConfig struct {
	HardBase    time.Duration // detection or browser-death failures
	SoftBase    time.Duration // timeouts and empty extractions
	Max         time.Duration
	SegmentBase time.Duration
	SegmentMax  time.Duration
	WaitCap     time.Duration // longest a worker blocks on a segment cooldown
}

// cooldownState is one URL's or segment's failure history
type cooldownState struct {
	failures int
	until    time.Time
}

// CooldownManager tracks per-URL and per-segment failure backoff. Workers
// consult it before every PDP visit so a struggling locality is not hammered.
type CooldownManager struct {
	mu       sync.Mutex
	cfg      CooldownConfig
	urls     map[string]*cooldownState
	segments map[string]*cooldownState
	now      func() time.Time
}

// NewCooldownManager creates a manager with the given backoff configuration
func NewCooldownManager(cfg CooldownConfig) *CooldownManager {
	if cfg.HardBase == 0 {
		cfg.HardBase = 120 * time.Second
	}
	if cfg.SoftBase == 0 {
		cfg.SoftBase = 45 * time.Second
	}
	if cfg.Max == 0 {
		cfg.Max = 900 * time.Second
	}
	if cfg.SegmentBase == 0 {
		cfg.SegmentBase = 90 * time.Second
	}
	if cfg.SegmentMax == 0 {
		cfg.SegmentMax = 900 * time.Second
	}
	if cfg.WaitCap == 0 {
		cfg.WaitCap = 15 * time.Second
	}
	return &CooldownManager{
		cfg:      cfg,
		urls:     make(map[string]*cooldownState),
		segments: make(map[string]*cooldownState),
		now:      time.Now,
	}
}

// backoff doubles per failure from base, capped at max
func backoff(base, max time.Duration, failures int) time.Duration {
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// URLFailure records one failed visit. hard selects the steeper backoff base.
// Returns the new failure count.
func (m *CooldownManager) URLFailure(rawURL string, hard bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.urls[rawURL]
	if state == nil {
		state = &cooldownState{}
		m.urls[rawURL] = state
	}
	state.failures++

	base := m.cfg.SoftBase
	if hard {
		base = m.cfg.HardBase
	}
	state.until = m.now().Add(backoff(base, m.cfg.Max, state.failures))
	return state.failures
}

// URLFailureCount returns the accumulated failures for a URL
func (m *CooldownManager) URLFailureCount(rawURL string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state := m.urls[rawURL]; state != nil {
		return state.failures
	}
	return 0
}

// URLReady reports whether the URL may be visited now, and if not, how long
// until it may
func (m *CooldownManager) URLReady(rawURL string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.urls[rawURL]
	if state == nil || !m.now().Before(state.until) {
		return true, 0
	}
	return false, state.until.Sub(m.now())
}

// URLSuccess clears a URL's failure history
func (m *CooldownManager) URLSuccess(rawURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.urls, rawURL)
}

// SegmentFailure records a failure against the URL's locality segment
func (m *CooldownManager) SegmentFailure(segment string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.segments[segment]
	if state == nil {
		state = &cooldownState{}
		m.segments[segment] = state
	}
	state.failures++
	state.until = m.now().Add(backoff(m.cfg.SegmentBase, m.cfg.SegmentMax, state.failures))
}

// SegmentWait returns how long a worker should block before visiting a URL in
// this segment. The full cooldown may be longer; the wait is capped so a
// single bad segment cannot stall the whole pool.
func (m *CooldownManager) SegmentWait(segment string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.segments[segment]
	if state == nil || !m.now().Before(state.until) {
		return 0
	}
	wait := state.until.Sub(m.now())
	if wait > m.cfg.WaitCap {
		wait = m.cfg.WaitCap
	}
	return wait
}

// SegmentSuccess clears a segment's failure history
func (m *CooldownManager) SegmentSuccess(segment string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.segments, segment)
}

// SegmentOf derives the cooldown segment of a PDP URL. Detail slugs on this
// portal end in "...-<locality>-in-<city>", so the segment is the last two
// slug tokens before "-in-" plus the city. URLs without the marker fall back
// to the host.
func SegmentOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}
	path := strings.ToLower(strings.Trim(parsed.Path, "/"))

	if idx := strings.LastIndex(path, "-in-"); idx >= 0 {
		start := idx
		for tokens := 0; tokens < 2 && start > 0; tokens++ {
			prev := strings.LastIndex(path[:start], "-")
			if prev < 0 {
				start = 0
				break
			}
			start = prev
		}
		segment := path[start:]
		if slash := strings.Index(segment, "/"); slash >= 0 {
			segment = segment[:slash]
		}
		return strings.Trim(segment, "-")
	}

	return strings.ToLower(parsed.Host)
}
