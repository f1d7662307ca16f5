package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type memCacheRepo struct {
	entries map[string][]byte
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	return nil
}

func (m *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type countingStatusRepo struct {
	loads int
}

func (c *countingStatusRepo) ListRequestStatuses(ctx context.Context) ([]models.StatusRef, error) {
	c.loads++
	return []models.StatusRef{
		{ID: 1, Name: "SUBMITTED", Position: 1},
		{ID: 2, Name: "UNDER_REVIEW", Position: 2},
		{ID: 3, Name: "APPROVED", Position: 3},
		{ID: 4, Name: "REJECTED", Position: 4},
		{ID: 5, Name: "WITHDRAWN", Position: 5},
	}, nil
}

func (c *countingStatusRepo) ListLearningStatuses(ctx context.Context) ([]models.StatusRef, error) {
	return []models.StatusRef{
		{ID: 1, Name: "IN_PROGRESS", Position: 1},
		{ID: 2, Name: "COMPLETED", Position: 2},
		{ID: 3, Name: "EXPELLED", Position: 3},
	}, nil
}

func newCatalogService(repo *countingStatusRepo) *CatalogService {
	cache := NewCacheService(&memCacheRepo{}, nil, time.Minute, nil, true)
	return NewCatalogService(repo, cache, time.Minute, nil)
}

func TestCatalogServiceOrderedListings(t *testing.T) {
	svc := newCatalogService(&countingStatusRepo{})

	catalog, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, catalog.RequestStatuses, 5)
	assert.Equal(t, "SUBMITTED", catalog.RequestStatuses[0].Name)
	require.Len(t, catalog.LearningStatuses, 3)
	assert.Equal(t, "IN_PROGRESS", catalog.LearningStatuses[0].Name)
}

func TestCatalogServiceCachesPerSession(t *testing.T) {
	repo := &countingStatusRepo{}
	svc := newCatalogService(repo)

	for i := 0; i < 3; i++ {
		_, err := svc.Catalog(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.loads, "reference data loads once per cache window")

	_, hit, err := svc.CatalogWithSource(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)

	require.NoError(t, svc.Invalidate(context.Background()))
	_, hit, err = svc.CatalogWithSource(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.loads)
}

func TestCatalogServiceValidation(t *testing.T) {
	svc := newCatalogService(&countingStatusRepo{})

	ok, err := svc.IsValidRequestStatus(context.Background(), "APPROVED")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.IsValidRequestStatus(context.Background(), "ARCHIVED")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.ValidateLearningStatus(context.Background(), "EXPELLED"))

	err = svc.ValidateRequestStatus(context.Background(), "ARCHIVED")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "unknown request status")
}
