package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/estatescope/go-estate-scraper/internal/models"
)

// coreColumns is the fixed CSV column order. Extended-field columns follow,
// sorted by key, so core data always reads the same regardless of what the
// detail pages carried.
var coreColumns = []string{
	"url", "url_hash", "title",
	"price_text", "price_value", "price_unit",
	"area_text", "area_value", "area_unit", "area_kind",
	"locality", "society", "city",
	"property_type", "bhk", "bathrooms", "balconies", "status",
	"posting_date_raw", "posting_date_parsed",
	"page_number", "position_on_page", "scraped_at", "session_id",
	"is_premium", "data_quality_score",
}

// CSVExporter writes one row per record
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter { return &CSVExporter{} }

func (e *CSVExporter) Format() string    { return "csv" }
func (e *CSVExporter) Extension() string { return "csv" }

func (e *CSVExporter) Export(path string, records []*models.PropertyRecord, stats *models.SessionStats) error {
	extended := extendedKeys(records)
	header := append(append([]string{}, coreColumns...), extended...)

	return writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV header: %v", err)
		}
		for _, rec := range records {
			if err := w.Write(csvRow(rec, extended)); err != nil {
				return fmt.Errorf("failed to write CSV row: %v", err)
			}
		}
		w.Flush()
		return w.Error()
	})
}

func csvRow(rec *models.PropertyRecord, extended []string) []string {
	posted := ""
	if rec.PostingDateParsed != nil {
		posted = rec.PostingDateParsed.Format(time.RFC3339)
	}

	row := []string{
		rec.URL, rec.URLHash, rec.Title,
		rec.PriceText, formatFloat(rec.PriceValue), string(rec.PriceUnit),
		rec.AreaText, formatFloat(rec.AreaValue), string(rec.AreaUnit), string(rec.AreaKind),
		rec.Locality, rec.Society, rec.City,
		rec.PropertyType, rec.BHK, strconv.Itoa(rec.Bathrooms), strconv.Itoa(rec.Balconies), string(rec.Status),
		rec.PostingDateRaw, posted,
		strconv.Itoa(rec.PageNumber), strconv.Itoa(rec.PositionOnPage),
		rec.ScrapedAt.Format(time.RFC3339), rec.SessionID,
		strconv.FormatBool(rec.IsPremium), formatFloat(rec.DataQualityScore),
	}

	for _, key := range extended {
		row = append(row, fmt.Sprint(valueOrEmpty(rec.ExtendedFields[key])))
	}
	return row
}

func formatFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func valueOrEmpty(v interface{}) interface{} {
	if v == nil {
		return ""
	}
	return v
}
