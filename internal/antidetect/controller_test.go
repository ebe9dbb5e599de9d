package antidetect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController() (*Controller, *[]time.Duration) {
	c := New(Options{})
	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }
	return c, &slept
}

func TestInspect_DetectionPatterns(t *testing.T) {
	c, _ := newTestController()

	tests := []struct {
		name string
		html string
		url  string
		want bool
	}{
		{"clean page", "<html><title>3 BHK in Gurgaon</title><body>listings</body></html>", "https://portal.test/property-for-sale-in-gurgaon-pppfs", false},
		{"captcha keyword", "<html><body>Please solve this CAPTCHA to continue</body></html>", "https://portal.test/p", true},
		{"cloudflare block", "<html><title>Attention Required! | Cloudflare</title></html>", "https://portal.test/p", true},
		{"access denied", "<html><body>Access Denied</body></html>", "https://portal.test/p", true},
		{"about redirect", "<html><body>anything</body></html>", "https://portal.test/about-us", true},
		{"about title", "<html><title> About Magicbricks </title><body>x</body></html>", "https://portal.test/p", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Inspect(tt.html, tt.url))
		})
	}
}

func TestHandleDetection_Ladder(t *testing.T) {
	c, slept := newTestController()
	ctx := context.Background()
	restarts := 0
	restart := func(context.Context) error { restarts++; return nil }

	for i := 0; i < 5; i++ {
		require.NoError(t, c.HandleDetection(ctx, restart))
	}

	assert.Equal(t, 5, restarts)
	assert.Equal(t, []time.Duration{
		45 * time.Second,
		90 * time.Second,
		120 * time.Second,
		240 * time.Second,
		300 * time.Second,
	}, *slept)
	assert.Equal(t, 5, c.DetectionCount())
}

func TestHandleDetection_RestartFailure(t *testing.T) {
	c, _ := newTestController()
	restart := func(context.Context) error { return assert.AnError }

	err := c.HandleDetection(context.Background(), restart)
	assert.Error(t, err)
	// The detection still counts even when recovery failed
	assert.Equal(t, 1, c.DetectionCount())
}

func TestDetectionCount_NeverDecreases(t *testing.T) {
	c, _ := newTestController()
	restart := func(context.Context) error { return nil }

	require.NoError(t, c.HandleDetection(context.Background(), restart))
	before := c.DetectionCount()

	c.RecordSuccess()
	c.RotateUserAgent()
	c.ChooseDelay(1, 2, 5)

	assert.Equal(t, before, c.DetectionCount())
}

func TestChooseDelay_WithinBaseRange(t *testing.T) {
	c, _ := newTestController()

	// Stay under the long-session page threshold
	for i := 0; i < 30; i++ {
		d := c.ChooseDelay(1, 2, 5)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestChooseDelay_InflatesAfterDetection(t *testing.T) {
	c, _ := newTestController()
	require.NoError(t, c.HandleDetection(context.Background(), func(context.Context) error { return nil }))

	// Recent detection doubles the base range
	for i := 0; i < 20; i++ {
		d := c.ChooseDelay(1, 2, 5)
		assert.GreaterOrEqual(t, d, 4*time.Second)
	}
}

func TestChooseDelay_InflatesWithFailures(t *testing.T) {
	c, _ := newTestController()
	c.RecordFailure()
	c.RecordFailure()

	// Two pending failures double the delay
	for i := 0; i < 20; i++ {
		d := c.ChooseDelay(1, 2, 5)
		assert.GreaterOrEqual(t, d, 4*time.Second)
	}

	c.RecordSuccess()
	d := c.ChooseDelay(1, 2, 5)
	assert.LessOrEqual(t, d, 5*time.Second)
}

func TestRotateUserAgent(t *testing.T) {
	c, _ := newTestController()

	assert.GreaterOrEqual(t, len(userAgentPool), 15)

	first := c.CurrentUserAgent()
	second := c.RotateUserAgent()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, c.CurrentUserAgent())

	// The pool wraps instead of running out
	for i := 0; i < len(userAgentPool)*2; i++ {
		assert.NotEmpty(t, c.RotateUserAgent())
	}
}
