package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/estatescope/go-estate-scraper/internal/models"
)

// SpreadsheetExporter writes an xlsx workbook with the records, a session
// summary and a per-locality breakdown
type SpreadsheetExporter struct{}

func NewSpreadsheetExporter() *SpreadsheetExporter { return &SpreadsheetExporter{} }

func (e *SpreadsheetExporter) Format() string    { return "spreadsheet" }
func (e *SpreadsheetExporter) Extension() string { return "xlsx" }

func (e *SpreadsheetExporter) Export(path string, records []*models.PropertyRecord, stats *models.SessionStats) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := e.writeRecords(f, records); err != nil {
		return err
	}
	if err := e.writeSummary(f, stats, len(records)); err != nil {
		return err
	}
	if err := e.writeLocalities(f, records); err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("failed to save workbook: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move workbook into place: %v", err)
	}
	return nil
}

func (e *SpreadsheetExporter) writeRecords(f *excelize.File, records []*models.PropertyRecord) error {
	const sheet = "Records"
	f.SetSheetName("Sheet1", sheet)

	extended := extendedKeys(records)
	header := append(append([]string{}, coreColumns...), extended...)
	if err := setRow(f, sheet, 1, toAny(header)); err != nil {
		return err
	}

	for i, rec := range records {
		if err := setRow(f, sheet, i+2, toAny(csvRow(rec, extended))); err != nil {
			return err
		}
	}
	return nil
}

func (e *SpreadsheetExporter) writeSummary(f *excelize.File, stats *models.SessionStats, recordCount int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	snap := stats.Snapshot()
	rows := [][]interface{}{
		{"Session ID", snap.SessionID},
		{"Mode", string(snap.Mode)},
		{"City", snap.City},
		{"Started", snap.StartTime.Format(time.RFC3339)},
		{"Duration", stats.Duration().Round(time.Second).String()},
		{"Pages scraped", snap.PagesScraped},
		{"Properties found", snap.PropertiesFound},
		{"Properties saved", snap.PropertiesSaved},
		{"Detail pages scraped", snap.IndividualPropertiesScraped},
		{"Detection events", snap.DetectionEvents},
		{"Stopped early", snap.IncrementalStopped},
		{"Stop reason", snap.StopReason},
		{"Records exported", recordCount},
	}
	for i, row := range rows {
		if err := setRow(f, sheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

func (e *SpreadsheetExporter) writeLocalities(f *excelize.File, records []*models.PropertyRecord) error {
	const sheet = "Localities"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	counts := make(map[string]int)
	for _, rec := range records {
		locality := rec.Locality
		if locality == "" {
			locality = "(unknown)"
		}
		counts[locality]++
	}
	localities := make([]string, 0, len(counts))
	for locality := range counts {
		localities = append(localities, locality)
	}
	sort.Slice(localities, func(i, j int) bool {
		if counts[localities[i]] != counts[localities[j]] {
			return counts[localities[i]] > counts[localities[j]]
		}
		return localities[i] < localities[j]
	})

	if err := setRow(f, sheet, 1, []interface{}{"Locality", "Listings"}); err != nil {
		return err
	}
	for i, locality := range localities {
		if err := setRow(f, sheet, i+2, []interface{}{locality, counts[locality]}); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return err
		}
	}
	return nil
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
