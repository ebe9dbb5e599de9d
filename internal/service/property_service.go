package service

import (
	"context"
	"fmt"

	"github.com/estatescope/go-estate-scraper/internal/logger"
	"github.com/estatescope/go-estate-scraper/internal/repository"
)

// PropertyService exposes stored properties to the API
type PropertyService struct {
	repo   repository.PropertyRepository
	logger *logger.Logger
}

// NewPropertyService creates a property service over a repository
func NewPropertyService(repo repository.PropertyRepository) *PropertyService {
	return &PropertyService{
		repo:   repo,
		logger: logger.NewLogger("property-service"),
	}
}

// Search queries stored properties with filters and pagination
func (s *PropertyService) Search(ctx context.Context, filter repository.PropertyFilter, pagination repository.PaginationParams) (*repository.PropertySearchResult, error) {
	result, err := s.repo.FindWithFilters(ctx, filter, pagination)
	if err != nil {
		return nil, fmt.Errorf("property search failed: %v", err)
	}
	return result, nil
}

// Count returns the stored property total
func (s *PropertyService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
