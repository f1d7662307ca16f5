package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/lms-api/internal/models"
)

// MaterialRepository handles persistence of course materials.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// ListByCourse returns the materials of a course in step order.
func (r *MaterialRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	const query = `SELECT id, course_id, position, name, body, added_at FROM course_materials WHERE course_id = $1 ORDER BY position`
	var materials []models.CourseMaterial
	if err := r.db.SelectContext(ctx, &materials, query, courseID); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return materials, nil
}

// FindByID returns a material by its ID.
func (r *MaterialRepository) FindByID(ctx context.Context, id string) (*models.CourseMaterial, error) {
	const query = `SELECT id, course_id, position, name, body, added_at FROM course_materials WHERE id = $1`
	var material models.CourseMaterial
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		return nil, err
	}
	return &material, nil
}

// ExistsPosition reports whether the course has a material at the ordinal.
func (r *MaterialRepository) ExistsPosition(ctx context.Context, courseID string, position int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM course_materials WHERE course_id = $1 AND position = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, courseID, position); err != nil {
		return false, fmt.Errorf("check material position: %w", err)
	}
	return exists, nil
}

// Create appends a material to the end of the course's step sequence.
func (r *MaterialRepository) Create(ctx context.Context, material *models.CourseMaterial) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	if material.AddedAt.IsZero() {
		material.AddedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_materials (id, course_id, position, name, body, added_at)
        VALUES ($1, $2, (SELECT COALESCE(MAX(position) + 1, 0) FROM course_materials WHERE course_id = $2), $3, $4, $5)
        RETURNING position`
	if err := r.db.GetContext(ctx, &material.Position, query, material.ID, material.CourseID, material.Name, material.Body, material.AddedAt); err != nil {
		return fmt.Errorf("create material: %w", err)
	}
	return nil
}
