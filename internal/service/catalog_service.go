package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type statusRepository interface {
	ListRequestStatuses(ctx context.Context) ([]models.StatusRef, error)
	ListLearningStatuses(ctx context.Context) ([]models.StatusRef, error)
}

const catalogCacheKey = "catalog:statuses"

// CatalogService exposes the closed sets of request and learning statuses.
// The lists are reference data: loaded from the store, cached for the
// session TTL and treated as immutable while a workflow operation runs.
type CatalogService struct {
	repo     statusRepository
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService constructs CatalogService.
func NewCatalogService(repo statusRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Catalog returns both ordered status lists.
func (s *CatalogService) Catalog(ctx context.Context) (*models.StatusCatalog, error) {
	catalog, _, err := s.CatalogWithSource(ctx)
	return catalog, err
}

// CatalogWithSource returns the catalog plus whether it came from the cache.
func (s *CatalogService) CatalogWithSource(ctx context.Context) (*models.StatusCatalog, bool, error) {
	var cached models.StatusCatalog
	if hit, err := s.cache.Get(ctx, catalogCacheKey, &cached); err == nil && hit {
		return &cached, true, nil
	}

	requestStatuses, err := s.repo.ListRequestStatuses(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request statuses")
	}
	learningStatuses, err := s.repo.ListLearningStatuses(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load learning statuses")
	}

	catalog := &models.StatusCatalog{RequestStatuses: requestStatuses, LearningStatuses: learningStatuses}
	if err := s.cache.Set(ctx, catalogCacheKey, catalog, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache status catalog", zap.Error(err))
	}
	return catalog, false, nil
}

// IsValidRequestStatus reports whether the name belongs to the request
// status set.
func (s *CatalogService) IsValidRequestStatus(ctx context.Context, name string) (bool, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return false, err
	}
	return containsStatus(catalog.RequestStatuses, name), nil
}

// IsValidLearningStatus reports whether the name belongs to the learning
// status set.
func (s *CatalogService) IsValidLearningStatus(ctx context.Context, name string) (bool, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return false, err
	}
	return containsStatus(catalog.LearningStatuses, name), nil
}

// ValidateRequestStatus fails with a validation error for unknown names;
// referencing an unknown status is never silently ignored.
func (s *CatalogService) ValidateRequestStatus(ctx context.Context, name string) error {
	ok, err := s.IsValidRequestStatus(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown request status %q", name))
	}
	return nil
}

// ValidateLearningStatus fails with a validation error for unknown names.
func (s *CatalogService) ValidateLearningStatus(ctx context.Context, name string) error {
	ok, err := s.IsValidLearningStatus(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown learning status %q", name))
	}
	return nil
}

// Invalidate drops the cached catalog, forcing a reload on next use.
func (s *CatalogService) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx, catalogCacheKey)
}

func containsStatus(refs []models.StatusRef, name string) bool {
	for _, ref := range refs {
		if ref.Name == name {
			return true
		}
	}
	return false
}
