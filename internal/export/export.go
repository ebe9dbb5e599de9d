// Package export writes scraped records to CSV, JSON, spreadsheet and SQLite
// outputs. Every file lands via temp-write, fsync and rename so a crash never
// leaves a truncated export behind.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
)

// Exporter writes one output format
type Exporter interface {
	Format() string
	Extension() string
	Export(path string, records []*models.PropertyRecord, stats *models.SessionStats) error
}

// Manager dispatches records to the requested exporters
type Manager struct {
	outputDir string
	exporters map[string]Exporter
	logger    *logger.Logger
	now       func() time.Time
}

// NewManager creates a manager writing into outputDir
func NewManager(outputDir string) *Manager {
	m := &Manager{
		outputDir: outputDir,
		exporters: make(map[string]Exporter),
		logger:    logger.NewLogger("export"),
		now:       time.Now,
	}
	for _, e := range []Exporter{
		NewCSVExporter(),
		NewJSONExporter(),
		NewSpreadsheetExporter(),
		NewSQLiteExporter(),
	} {
		m.exporters[e.Format()] = e
	}
	return m
}

// Export writes records in each requested format and returns the created
// file paths. Zero records produces no files, only a warning.
func (m *Manager) Export(records []*models.PropertyRecord, stats *models.SessionStats, formats []string) ([]string, error) {
	if len(records) == 0 {
		m.logger.Warn("No records to export, skipping file writes")
		return nil, nil
	}
	if err := os.MkdirAll(m.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %v", err)
	}

	stamp := m.now().Format("20060102_150405")
	mode := string(stats.Mode)
	if mode == "" {
		mode = "full"
	}

	var paths []string
	for _, format := range formats {
		exporter, ok := m.exporters[strings.ToLower(strings.TrimSpace(format))]
		if !ok {
			return paths, fmt.Errorf("unknown export format %q", format)
		}

		name := fmt.Sprintf("scrape_%s_%s.%s", mode, stamp, exporter.Extension())
		path := filepath.Join(m.outputDir, name)
		if err := exporter.Export(path, records, stats); err != nil {
			return paths, fmt.Errorf("%s export failed: %v", exporter.Format(), err)
		}

		m.logger.WithFields(map[string]interface{}{
			"format":  exporter.Format(),
			"path":    path,
			"records": len(records),
		}).Info("Export written")
		paths = append(paths, path)
	}
	return paths, nil
}

// writeAtomic writes data through a temp file in the target directory,
// fsyncs, and renames into place
func writeAtomic(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %v", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %v", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move export into place: %v", err)
	}
	return nil
}

// extendedKeys returns the sorted union of extended-field keys across records
func extendedKeys(records []*models.PropertyRecord) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for key := range rec.ExtendedFields {
			seen[key] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
