package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore is an in-memory Store for tracker tests
type mockStore struct {
	entries map[string]Entry
	marks   map[string]time.Time
}

func newMockStore() *mockStore {
	return &mockStore{
		entries: make(map[string]Entry),
		marks:   make(map[string]time.Time),
	}
}

func (m *mockStore) Get(_ context.Context, urlHash string) (*Entry, error) {
	if entry, ok := m.entries[urlHash]; ok {
		return &entry, nil
	}
	return nil, nil
}

func (m *mockStore) GetBatch(_ context.Context, urlHashes []string) (map[string]Entry, error) {
	result := make(map[string]Entry)
	for _, hash := range urlHashes {
		if entry, ok := m.entries[hash]; ok {
			result[hash] = entry
		}
	}
	return result, nil
}

func (m *mockStore) Upsert(_ context.Context, entry Entry) error {
	m.entries[entry.URLHash] = entry
	return nil
}

func (m *mockStore) HighWaterMark(_ context.Context, key string) (time.Time, error) {
	return m.marks[key], nil
}

func (m *mockStore) SetHighWaterMark(_ context.Context, key string, mark time.Time) error {
	m.marks[key] = mark
	return nil
}

func (m *mockStore) Statistics(_ context.Context) (*Statistics, error) {
	return &Statistics{TotalURLs: int64(len(m.entries))}, nil
}

func (m *mockStore) Cleanup(_ context.Context, _ time.Duration) (int64, error) { return 0, nil }
func (m *mockStore) Close() error                                              { return nil }

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"strips tracking params",
			"https://www.magicbricks.com/propertyDetails/x?pdpid=1&utm_source=mail&gclid=abc",
			"https://www.magicbricks.com/propertyDetails/x?pdpid=1",
		},
		{
			"lowercases scheme and host only",
			"HTTPS://WWW.Magicbricks.COM/PropertyDetails/X",
			"https://www.magicbricks.com/PropertyDetails/X",
		},
		{
			"drops trailing slash and fragment",
			"https://www.magicbricks.com/propertyDetails/x/#photos",
			"https://www.magicbricks.com/propertyDetails/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.raw))
		})
	}
}

func TestHashURL_StableAcrossVariants(t *testing.T) {
	base := HashURL("https://www.magicbricks.com/propertyDetails/x?pdpid=1")
	withTracking := HashURL("https://www.magicbricks.com/propertyDetails/x?pdpid=1&utm_campaign=promo")
	withFragment := HashURL("https://www.magicbricks.com/propertyDetails/x?pdpid=1#gallery")

	assert.Equal(t, base, withTracking)
	assert.Equal(t, base, withFragment)
	assert.Len(t, base, 16)

	other := HashURL("https://www.magicbricks.com/propertyDetails/y?pdpid=2")
	assert.NotEqual(t, base, other)
}

func TestSmartFilter_Buckets(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	tr := New(store)
	now := time.Now()

	urls := []string{
		"https://portal.test/p/new",
		"https://portal.test/p/failed",
		"https://portal.test/p/lowq",
		"https://portal.test/p/stale",
		"https://portal.test/p/good",
	}

	store.entries[HashURL(urls[1])] = Entry{URLHash: HashURL(urls[1]), ExtractionSuccess: false, LastScrapedAt: now, DataQualityScore: 80}
	store.entries[HashURL(urls[2])] = Entry{URLHash: HashURL(urls[2]), ExtractionSuccess: true, LastScrapedAt: now, DataQualityScore: 40}
	store.entries[HashURL(urls[3])] = Entry{URLHash: HashURL(urls[3]), ExtractionSuccess: true, LastScrapedAt: now.AddDate(0, 0, -45), DataQualityScore: 90}
	store.entries[HashURL(urls[4])] = Entry{URLHash: HashURL(urls[4]), ExtractionSuccess: true, LastScrapedAt: now, DataQualityScore: 90}

	filtered, summary, err := tr.SmartFilter(ctx, urls, 60, 30)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 1, summary.FailedExtraction)
	assert.Equal(t, 1, summary.LowQuality)
	assert.Equal(t, 1, summary.Stale)
	assert.Equal(t, 1, summary.SkipGood)
	assert.InDelta(t, 20.0, summary.ReductionPct, 0.01)

	assert.Len(t, filtered, 4)
	assert.NotContains(t, filtered, urls[4])
}

func TestSmartFilter_Empty(t *testing.T) {
	tr := New(newMockStore())

	filtered, summary, err := tr.SmartFilter(context.Background(), nil, 60, 30)
	require.NoError(t, err)
	assert.Empty(t, filtered)
	assert.Equal(t, 0, summary.Total)
}

func TestRecordResult_PreservesFirstSeen(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()
	tr := New(store)
	url := "https://portal.test/p/1"

	require.NoError(t, tr.RecordResult(ctx, url, false, 0))
	first := store.entries[HashURL(url)]
	assert.Equal(t, 1, first.ScrapeCount)
	assert.False(t, first.ExtractionSuccess)

	require.NoError(t, tr.RecordResult(ctx, url, true, 85))
	second := store.entries[HashURL(url)]
	assert.Equal(t, 2, second.ScrapeCount)
	assert.True(t, second.ExtractionSuccess)
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
	assert.Equal(t, 85.0, second.DataQualityScore)
}

func TestIsScraped(t *testing.T) {
	ctx := context.Background()
	tr := New(newMockStore())
	url := "https://portal.test/p/1"

	scraped, err := tr.IsScraped(ctx, url)
	require.NoError(t, err)
	assert.False(t, scraped)

	require.NoError(t, tr.RecordResult(ctx, url, true, 70))
	scraped, err = tr.IsScraped(ctx, url)
	require.NoError(t, err)
	assert.True(t, scraped)
}

func BenchmarkHashURL(b *testing.B) {
	url := "https://www.magicbricks.com/propertyDetails/3-BHK-Apartment-Sector-57-in-Gurgaon?pdpid=4d42353&utm_source=mail"
	for i := 0; i < b.N; i++ {
		HashURL(url)
	}
}

func TestHighWater_OnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	tr := New(newMockStore())
	newer := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	older := newer.AddDate(0, -1, 0)

	require.NoError(t, tr.AdvanceHighWater(ctx, "Gurgaon", newer))
	mark, err := tr.HighWater(ctx, "gurgaon")
	require.NoError(t, err)
	assert.Equal(t, newer, mark)

	require.NoError(t, tr.AdvanceHighWater(ctx, "gurgaon", older))
	mark, err = tr.HighWater(ctx, "GURGAON")
	require.NoError(t, err)
	assert.Equal(t, newer, mark)
}
