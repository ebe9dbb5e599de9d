package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNeedsRestart(t *testing.T) {
	assert.False(t, NeedsRestart(nil))
	assert.False(t, NeedsRestart(errors.New("waiting for selector: timed out")))

	dead := []string{
		"websocket: close 1006 (abnormal closure)",
		"context canceled",
		"read tcp: broken pipe",
		"chrome failed to start: exit status 1",
		"target closed",
	}
	for _, msg := range dead {
		assert.True(t, NeedsRestart(errors.New(msg)), msg)
	}
}

func TestNewSession_Defaults(t *testing.T) {
	s := NewSession(Options{EagerPageLoad: true, BlockResources: true})

	assert.Equal(t, 3*time.Second, s.opts.NavigationWait)
	assert.Equal(t, 45*time.Second, s.opts.TabTimeout)
	assert.NotEmpty(t, s.opts.UserAgent())
	assert.True(t, s.opts.EagerPageLoad)
	assert.True(t, s.opts.BlockResources)
}

func TestNavigate_RequiresStart(t *testing.T) {
	s := NewSession(Options{})

	_, _, err := s.Navigate(context.Background(), "https://example.com", "", "")
	assert.ErrorContains(t, err, "browser not started")
}
