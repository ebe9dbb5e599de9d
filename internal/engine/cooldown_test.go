package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCooldowns() (*CooldownManager, *time.Time) {
	m := NewCooldownManager(CooldownConfig{
		HardBase:    120 * time.Second,
		SoftBase:    45 * time.Second,
		Max:         900 * time.Second,
		SegmentBase: 90 * time.Second,
		WaitCap:     15 * time.Second,
	})
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	assert.Equal(t, 45*time.Second, backoff(45*time.Second, 900*time.Second, 1))
	assert.Equal(t, 90*time.Second, backoff(45*time.Second, 900*time.Second, 2))
	assert.Equal(t, 180*time.Second, backoff(45*time.Second, 900*time.Second, 3))
	assert.Equal(t, 900*time.Second, backoff(45*time.Second, 900*time.Second, 10))
	assert.Equal(t, 120*time.Second, backoff(120*time.Second, 900*time.Second, 1))
	assert.Equal(t, 480*time.Second, backoff(120*time.Second, 900*time.Second, 3))
}

func TestURLFailure_EscalatesCooldown(t *testing.T) {
	m, now := newTestCooldowns()
	url := "https://portal.test/p/1"

	assert.Equal(t, 1, m.URLFailure(url, false))
	ready, remaining := m.URLReady(url)
	assert.False(t, ready)
	assert.Equal(t, 45*time.Second, remaining)

	assert.Equal(t, 2, m.URLFailure(url, false))
	_, remaining = m.URLReady(url)
	assert.Equal(t, 90*time.Second, remaining)

	// Time passing releases the URL
	*now = now.Add(2 * time.Minute)
	ready, _ = m.URLReady(url)
	assert.True(t, ready)
}

func TestURLFailure_HardBase(t *testing.T) {
	m, _ := newTestCooldowns()
	url := "https://portal.test/p/1"

	m.URLFailure(url, true)
	_, remaining := m.URLReady(url)
	assert.Equal(t, 120*time.Second, remaining)
}

func TestURLSuccess_ResetsHistory(t *testing.T) {
	m, _ := newTestCooldowns()
	url := "https://portal.test/p/1"

	m.URLFailure(url, true)
	m.URLFailure(url, true)
	assert.Equal(t, 2, m.URLFailureCount(url))

	m.URLSuccess(url)
	assert.Equal(t, 0, m.URLFailureCount(url))
	ready, _ := m.URLReady(url)
	assert.True(t, ready)
}

func TestSegmentWait_Capped(t *testing.T) {
	m, _ := newTestCooldowns()
	segment := "sector-57-in-gurgaon"

	assert.Equal(t, time.Duration(0), m.SegmentWait(segment))

	// 90s cooldown, but workers only ever block up to the cap
	m.SegmentFailure(segment)
	assert.Equal(t, 15*time.Second, m.SegmentWait(segment))

	m.SegmentSuccess(segment)
	assert.Equal(t, time.Duration(0), m.SegmentWait(segment))
}

func TestSegmentOf(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{
			"https://www.magicbricks.com/propertyDetails/3-BHK-Apartment-Sector-57-in-Gurgaon?pdpid=1",
			"sector-57-in-gurgaon",
		},
		{
			"https://www.magicbricks.com/propertydetail/villa-dlf-phase-2-in-gurgaon",
			"phase-2-in-gurgaon",
		},
		{
			"https://www.magicbricks.com/somepage",
			"www.magicbricks.com",
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SegmentOf(tt.url), tt.url)
	}
}

func TestSegmentOf_SameLocalitySharesSegment(t *testing.T) {
	a := SegmentOf("https://portal.test/propertyDetails/2-BHK-Flat-Sector-57-in-Gurgaon?pdpid=1")
	b := SegmentOf("https://portal.test/propertyDetails/3-BHK-House-Sector-57-in-Gurgaon?pdpid=2")
	assert.Equal(t, a, b)
}
