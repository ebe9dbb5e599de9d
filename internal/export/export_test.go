package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatescope/go-estate-scraper/internal/models"
)

func testRecords() []*models.PropertyRecord {
	posted := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	return []*models.PropertyRecord{
		{
			URL:               "https://portal.test/propertyDetails/a?pdpid=1",
			URLHash:           "aaaa1111bbbb2222",
			Title:             "3 BHK Apartment in Sector 57",
			PriceText:         "₹1.25 Cr",
			PriceValue:        1.25,
			PriceUnit:         models.PriceUnitCrore,
			AreaValue:         1450,
			AreaUnit:          models.AreaUnitSqft,
			Locality:          "Sector 57",
			City:              "gurgaon",
			BHK:               "3 BHK",
			PostingDateParsed: &posted,
			PageNumber:        1,
			PositionOnPage:    1,
			ScrapedAt:         posted.Add(24 * time.Hour),
			SessionID:         "s1",
			DataQualityScore:  85,
			ExtendedFields:    map[string]interface{}{"facing": "East", "floor": "4 out of 12"},
		},
		{
			URL:            "https://portal.test/propertyDetails/b?pdpid=2",
			URLHash:        "cccc3333dddd4444",
			Title:          "2 BHK Flat in Nirvana Country",
			City:           "gurgaon",
			ExtendedFields: map[string]interface{}{"facing": "North"},
		},
	}
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m := NewManager(dir)
	m.now = func() time.Time { return time.Date(2026, 8, 11, 14, 30, 5, 0, time.UTC) }
	return m, dir
}

func TestExport_FilenamePattern(t *testing.T) {
	m, dir := newTestManager(t)
	stats := &models.SessionStats{Mode: models.ModeIncremental}

	paths, err := m.Export(testRecords(), stats, []string{"csv", "json"})
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, filepath.Join(dir, "scrape_incremental_20260811_143005.csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "scrape_incremental_20260811_143005.json"), paths[1])
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestExport_UnknownFormat(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Export(testRecords(), &models.SessionStats{}, []string{"parquet"})
	assert.Error(t, err)
}

func TestExport_NoTempLeftovers(t *testing.T) {
	m, dir := newTestManager(t)

	_, err := m.Export(testRecords(), &models.SessionStats{}, []string{"csv", "json", "sql"})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestCSVExport_ColumnOrder(t *testing.T) {
	m, _ := newTestManager(t)

	paths, err := m.Export(testRecords(), &models.SessionStats{}, []string{"csv"})
	require.NoError(t, err)

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Core columns first, then extended-field columns sorted by key
	header := rows[0]
	require.Len(t, header, len(coreColumns)+2)
	assert.Equal(t, coreColumns, header[:len(coreColumns)])
	assert.Equal(t, []string{"facing", "floor"}, header[len(coreColumns):])

	first := rows[1]
	assert.Equal(t, "https://portal.test/propertyDetails/a?pdpid=1", first[0])
	assert.Equal(t, "1.25", first[4])
	assert.Equal(t, "2026-08-10T00:00:00Z", first[19])
	assert.Equal(t, "East", first[len(coreColumns)])

	// A record without the extended key writes an empty cell
	second := rows[2]
	assert.Equal(t, "", second[len(coreColumns)+1])
}

func TestJSONExport_Envelope(t *testing.T) {
	m, _ := newTestManager(t)
	stats := &models.SessionStats{SessionID: "s1", Mode: models.ModeFull, City: "gurgaon"}

	paths, err := m.Export(testRecords(), stats, []string{"json"})
	require.NoError(t, err)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)

	var envelope struct {
		Metadata struct {
			ScrapeTimestamp time.Time           `json:"scrape_timestamp"`
			TotalProperties int                 `json:"total_properties"`
			SessionStats    models.SessionStats `json:"session_stats"`
			ScraperVersion  string              `json:"scraper_version"`
		} `json:"metadata"`
		Properties []*models.PropertyRecord `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))

	assert.Equal(t, 2, envelope.Metadata.TotalProperties)
	assert.Equal(t, "s1", envelope.Metadata.SessionStats.SessionID)
	assert.NotEmpty(t, envelope.Metadata.ScraperVersion)
	require.Len(t, envelope.Properties, 2)
	assert.Equal(t, "3 BHK Apartment in Sector 57", envelope.Properties[0].Title)
}

func TestExport_ZeroRecordsWritesNothing(t *testing.T) {
	m, dir := newTestManager(t)

	paths, err := m.Export(nil, &models.SessionStats{}, []string{"csv", "json"})
	require.NoError(t, err)
	assert.Empty(t, paths)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
