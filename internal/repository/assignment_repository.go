package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/lms-api/internal/models"
)

// AssignmentRepository handles persistence of assignments and their files.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListByCourse returns the assignments of a course.
func (r *AssignmentRepository) ListByCourse(ctx context.Context, courseID string) ([]models.Assignment, error) {
	const query = `SELECT id, course_id, name, description, deadline, created_at FROM assignments WHERE course_id = $1 ORDER BY created_at`
	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// FindByID returns an assignment by its ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, course_id, name, description, deadline, created_at FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Create persists a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignments (id, course_id, name, description, deadline, created_at)
        VALUES (:id, :course_id, :name, :description, :deadline, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// CreateFile records an attachment reference for an assignment.
func (r *AssignmentRepository) CreateFile(ctx context.Context, file *models.AttachedFile) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	const query = `INSERT INTO assignment_files (id, assignment_id, file_name, path, content_type, size_bytes, uploaded_at)
        VALUES (:id, :assignment_id, :file_name, :path, :content_type, :size_bytes, :uploaded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, file); err != nil {
		return fmt.Errorf("create assignment file: %w", err)
	}
	return nil
}

// ListFiles returns the attachment references of an assignment.
func (r *AssignmentRepository) ListFiles(ctx context.Context, assignmentID string) ([]models.AttachedFile, error) {
	const query = `SELECT id, assignment_id, file_name, path, content_type, size_bytes, uploaded_at FROM assignment_files WHERE assignment_id = $1 ORDER BY uploaded_at`
	var files []models.AttachedFile
	if err := r.db.SelectContext(ctx, &files, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list assignment files: %w", err)
	}
	return files, nil
}

// FindFileByID returns one attachment reference.
func (r *AssignmentRepository) FindFileByID(ctx context.Context, id string) (*models.AttachedFile, error) {
	const query = `SELECT id, assignment_id, file_name, path, content_type, size_bytes, uploaded_at FROM assignment_files WHERE id = $1`
	var file models.AttachedFile
	if err := r.db.GetContext(ctx, &file, query, id); err != nil {
		return nil, err
	}
	return &file, nil
}
