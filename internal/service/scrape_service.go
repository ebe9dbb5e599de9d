// Package service sits between the HTTP API and the scraping engine
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/estatescope/go-estate-scraper/internal/config"
	"github.com/estatescope/go-estate-scraper/internal/engine"
	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/models"
	"github.com/estatescope/go-estate-scraper/internal/validator"
)

// ErrAlreadyRunning is returned when a trigger arrives mid-session
var ErrAlreadyRunning = fmt.Errorf("a scrape session is already running")

// ScrapeService owns scrape-session lifecycle for the API: one session at a
// time, triggered asynchronously, with the latest stats queryable
type ScrapeService struct {
	cfg    *config.Config
	logger *logger.Logger

	mu        sync.Mutex
	running   bool
	lastStats *models.SessionStats
	lastErr   error
	lastRunAt time.Time
}

// NewScrapeService creates a scrape service over the given configuration
func NewScrapeService(cfg *config.Config) *ScrapeService {
	return &ScrapeService{
		cfg:    cfg,
		logger: logger.NewLogger("scrape-service"),
	}
}

// Trigger starts a session in the background. Only one session runs at a
// time; a second trigger fails fast with ErrAlreadyRunning.
func (s *ScrapeService) Trigger(opts config.RunOptions, filters validator.FilterConfig) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.lastRunAt = time.Now()
	s.mu.Unlock()

	go func() {
		ctx := context.Background()
		stats, err := s.run(ctx, opts, filters)

		s.mu.Lock()
		s.running = false
		s.lastStats = stats
		s.lastErr = err
		s.mu.Unlock()

		if err != nil {
			s.logger.WithError(err).Error("Background scrape session failed")
		}
	}()
	return nil
}

func (s *ScrapeService) run(ctx context.Context, opts config.RunOptions, filters validator.FilterConfig) (*models.SessionStats, error) {
	coordinator, cleanup, err := engine.Build(ctx, s.cfg, filters)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return coordinator.Run(ctx, opts)
}

// StatusResponse is what GET /scrape/status returns
type StatusResponse struct {
	Running   bool                 `json:"running"`
	LastRunAt *time.Time           `json:"last_run_at,omitempty"`
	LastStats *models.SessionStats `json:"last_stats,omitempty"`
	LastError string               `json:"last_error,omitempty"`
}

// Status reports whether a session is running plus the last outcome
func (s *ScrapeService) Status() StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := StatusResponse{Running: s.running}
	if !s.lastRunAt.IsZero() {
		t := s.lastRunAt
		resp.LastRunAt = &t
	}
	if s.lastStats != nil {
		snap := s.lastStats.Snapshot()
		resp.LastStats = &snap
	}
	if s.lastErr != nil {
		resp.LastError = s.lastErr.Error()
	}
	return resp
}
