package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriceInLakh(t *testing.T) {
	assert.Equal(t, 85.0, (&PropertyRecord{PriceValue: 85, PriceUnit: PriceUnitLac}).PriceInLakh())
	assert.Equal(t, 125.0, (&PropertyRecord{PriceValue: 1.25, PriceUnit: PriceUnitCrore}).PriceInLakh())
	assert.Equal(t, 0.0, (&PropertyRecord{PriceValue: 4500, PriceUnit: PriceUnitPerSqft}).PriceInLakh())
	assert.Equal(t, 0.0, (&PropertyRecord{PriceUnit: PriceUnitOnRequest}).PriceInLakh())
}

func TestAreaInSqft(t *testing.T) {
	assert.Equal(t, 1450.0, (&PropertyRecord{AreaValue: 1450, AreaUnit: AreaUnitSqft}).AreaInSqft())
	assert.Equal(t, 1800.0, (&PropertyRecord{AreaValue: 200, AreaUnit: AreaUnitSqYards}).AreaInSqft())
	// Region-dependent units have no fixed factor
	assert.Equal(t, 0.0, (&PropertyRecord{AreaValue: 2, AreaUnit: AreaUnitBigha}).AreaInSqft())
}

func TestHasCore(t *testing.T) {
	assert.True(t, (&PropertyRecord{Title: "3 BHK"}).HasCore())
	assert.True(t, (&PropertyRecord{PriceValue: 85, AreaValue: 1120}).HasCore())
	assert.False(t, (&PropertyRecord{PriceValue: 85}).HasCore())

	assert.True(t, (&PropertyRecord{PriceValue: 85}).HasAnyCore())
	assert.False(t, (&PropertyRecord{}).HasAnyCore())
}

func TestMergeDetail(t *testing.T) {
	base := &PropertyRecord{
		Title:          "3 BHK Apartment",
		PriceText:      "₹1.2 Cr",
		PriceValue:     1.2,
		PriceUnit:      PriceUnitCrore,
		Locality:       "Sector 57",
		ExtendedFields: map[string]interface{}{"facing": "East"},
	}
	detail := &PropertyRecord{
		Title:          "3 BHK Apartment in Emerald Heights",
		Society:        "Emerald Heights",
		Bathrooms:      2,
		Status:         StatusReadyToMove,
		ExtendedFields: map[string]interface{}{"floor": "4 out of 12", "facing": "North-East"},
	}

	base.MergeDetail(detail)

	assert.Equal(t, "3 BHK Apartment in Emerald Heights", base.Title)
	assert.Equal(t, "Emerald Heights", base.Society)
	assert.Equal(t, 2, base.Bathrooms)
	assert.Equal(t, StatusReadyToMove, base.Status)

	// Empty detail fields never clobber listing data
	assert.Equal(t, "₹1.2 Cr", base.PriceText)
	assert.Equal(t, "Sector 57", base.Locality)

	// Extended fields union with detail winning on conflict
	assert.Equal(t, "North-East", base.ExtendedFields["facing"])
	assert.Equal(t, "4 out of 12", base.ExtendedFields["floor"])

	base.MergeDetail(nil)
	assert.Equal(t, "Emerald Heights", base.Society)
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("Incremental")
	assert.NoError(t, err)
	assert.Equal(t, ModeIncremental, mode)

	mode, err = ParseMode("")
	assert.NoError(t, err)
	assert.Equal(t, ModeFull, mode)

	_, err = ParseMode("turbo")
	assert.Error(t, err)
}

func TestModeBehavior(t *testing.T) {
	assert.True(t, ModeIncremental.SortsByDate())
	assert.True(t, ModeConservative.SortsByDate())
	assert.False(t, ModeFull.SortsByDate())

	assert.False(t, ModeFull.UsesTrackerFilter())
	assert.True(t, ModeIncremental.UsesTrackerFilter())
}

func TestSessionStats_Counters(t *testing.T) {
	s := &SessionStats{}

	s.AddPage(30, 28)
	s.AddPage(30, 25)
	s.AddPDP()
	s.AddDetection()
	s.RecordFiltered(false)
	s.RecordFiltered(true)
	s.RecordValidationDrop()
	s.MarkStopped("old_postings")

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.PagesScraped)
	assert.Equal(t, 60, snap.PropertiesFound)
	assert.Equal(t, 53, snap.PropertiesSaved)
	assert.Equal(t, 1, snap.IndividualPropertiesScraped)
	assert.Equal(t, 1, snap.DetectionEvents)
	assert.Equal(t, 2, snap.FilterStats.Total)
	assert.Equal(t, 1, snap.FilterStats.Filtered)
	assert.Equal(t, 1, snap.FilterStats.Excluded)
	assert.Equal(t, 1, snap.FilterStats.ValidationDropped)
	assert.True(t, snap.IncrementalStopped)
	assert.Equal(t, "old_postings", snap.StopReason)
	assert.Equal(t, snap.FilterStats.Total, snap.FilterStats.Filtered+snap.FilterStats.Excluded)
}
