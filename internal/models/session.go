package models

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ScrapingMode controls listing sort order, stopping criteria and whether
// tracker filtering applies
type ScrapingMode string

const (
	ModeFull         ScrapingMode = "full"
	ModeIncremental  ScrapingMode = "incremental"
	ModeConservative ScrapingMode = "conservative"
	ModeDateRange    ScrapingMode = "date_range"
	ModeCustom       ScrapingMode = "custom"
)

// ParseMode parses a mode keyword case-insensitively
func ParseMode(s string) (ScrapingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "":
		return ModeFull, nil
	case "incremental":
		return ModeIncremental, nil
	case "conservative":
		return ModeConservative, nil
	case "date_range", "daterange":
		return ModeDateRange, nil
	case "custom":
		return ModeCustom, nil
	default:
		return "", fmt.Errorf("unknown scraping mode %q", s)
	}
}

// SortsByDate reports whether listings should be requested newest-first
func (m ScrapingMode) SortsByDate() bool {
	switch m {
	case ModeIncremental, ModeConservative, ModeDateRange:
		return true
	}
	return false
}

// UsesTrackerFilter reports whether the smart filter applies in this mode
func (m ScrapingMode) UsesTrackerFilter() bool {
	return m != ModeFull
}

// FilterStats accumulates filter outcomes across one session.
// Invariant: Total = Filtered + Excluded. ValidationDropped counts records
// that failed core-field validation, separately from user-filter exclusions.
type FilterStats struct {
	Total             int `json:"total"`
	Filtered          int `json:"filtered"`
	Excluded          int `json:"excluded"`
	ValidationDropped int `json:"validation_dropped"`
}

// SessionStats carries per-run counters. Counter updates go through the
// mutex-guarded methods; the struct is read directly only after the run.
type SessionStats struct {
	SessionID                   string       `json:"session_id"`
	StartTime                   time.Time    `json:"start_time"`
	EndTime                     time.Time    `json:"end_time"`
	Mode                        ScrapingMode `json:"mode"`
	City                        string       `json:"city"`
	PagesScraped                int          `json:"pages_scraped"`
	PropertiesFound             int          `json:"properties_found"`
	PropertiesSaved             int          `json:"properties_saved"`
	IndividualPropertiesScraped int          `json:"individual_properties_scraped"`
	DetectionEvents             int          `json:"detection_events"`
	IncrementalStopped          bool         `json:"incremental_stopped"`
	StopReason                  string       `json:"stop_reason,omitempty"`
	FilterStats                 FilterStats  `json:"filter_stats"`

	mu sync.Mutex
}

// AddPage records one completed listing page with its card counts
func (s *SessionStats) AddPage(found, saved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PagesScraped++
	s.PropertiesFound += found
	s.PropertiesSaved += saved
}

// AddPDP records one successfully scraped detail page
func (s *SessionStats) AddPDP() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IndividualPropertiesScraped++
}

// AddDetection records one detection event
func (s *SessionStats) AddDetection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DetectionEvents++
}

// RecordFiltered accumulates one filter outcome
func (s *SessionStats) RecordFiltered(excluded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilterStats.Total++
	if excluded {
		s.FilterStats.Excluded++
	} else {
		s.FilterStats.Filtered++
	}
}

// RecordValidationDrop counts one record dropped for failing validation
func (s *SessionStats) RecordValidationDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilterStats.ValidationDropped++
}

// MarkStopped records an incremental early stop with its reason
func (s *SessionStats) MarkStopped(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.IncrementalStopped = true
	s.StopReason = reason
}

// Snapshot returns a copy safe to serialize while workers are running
func (s *SessionStats) Snapshot() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{
		SessionID:                   s.SessionID,
		StartTime:                   s.StartTime,
		EndTime:                     s.EndTime,
		Mode:                        s.Mode,
		City:                        s.City,
		PagesScraped:                s.PagesScraped,
		PropertiesFound:             s.PropertiesFound,
		PropertiesSaved:             s.PropertiesSaved,
		IndividualPropertiesScraped: s.IndividualPropertiesScraped,
		DetectionEvents:             s.DetectionEvents,
		IncrementalStopped:          s.IncrementalStopped,
		StopReason:                  s.StopReason,
		FilterStats:                 s.FilterStats,
	}
}

// Duration returns the wall-clock duration of the run so far
func (s *SessionStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}
