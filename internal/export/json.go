package export

import (
	"encoding/json"
	"os"
	"time"

	"github.com/estatescope/go-estate-scraper/internal/models"
)

// JSONExporter writes a metadata envelope plus the full record array
type JSONExporter struct{}

func NewJSONExporter() *JSONExporter { return &JSONExporter{} }

func (e *JSONExporter) Format() string    { return "json" }
func (e *JSONExporter) Extension() string { return "json" }

// scraperVersion is stamped into every JSON export's metadata
const scraperVersion = "1.0.0"

type jsonEnvelope struct {
	Metadata   jsonMetadata             `json:"metadata"`
	Properties []*models.PropertyRecord `json:"properties"`
}

type jsonMetadata struct {
	ScrapeTimestamp time.Time           `json:"scrape_timestamp"`
	TotalProperties int                 `json:"total_properties"`
	SessionStats    models.SessionStats `json:"session_stats"`
	ScraperVersion  string              `json:"scraper_version"`
}

func (e *JSONExporter) Export(path string, records []*models.PropertyRecord, stats *models.SessionStats) error {
	envelope := jsonEnvelope{
		Metadata: jsonMetadata{
			ScrapeTimestamp: time.Now(),
			TotalProperties: len(records),
			SessionStats:    stats.Snapshot(),
			ScraperVersion:  scraperVersion,
		},
		Properties: records,
	}

	return writeAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(&envelope)
	})
}
