package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campusflow/lms-api/internal/models"
)

// StatusRepository loads the status reference data backing the catalog.
type StatusRepository struct {
	db *sqlx.DB
}

// NewStatusRepository constructs the repository.
func NewStatusRepository(db *sqlx.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// ListRequestStatuses returns the request statuses in display order.
func (r *StatusRepository) ListRequestStatuses(ctx context.Context) ([]models.StatusRef, error) {
	const query = `SELECT id, name, position FROM request_statuses ORDER BY position`
	var statuses []models.StatusRef
	if err := r.db.SelectContext(ctx, &statuses, query); err != nil {
		return nil, fmt.Errorf("list request statuses: %w", err)
	}
	return statuses, nil
}

// ListLearningStatuses returns the learning statuses in display order.
func (r *StatusRepository) ListLearningStatuses(ctx context.Context) ([]models.StatusRef, error) {
	const query = `SELECT id, name, position FROM learning_statuses ORDER BY position`
	var statuses []models.StatusRef
	if err := r.db.SelectContext(ctx, &statuses, query); err != nil {
		return nil, fmt.Errorf("list learning statuses: %w", err)
	}
	return statuses, nil
}
