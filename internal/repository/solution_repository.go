package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/lms-api/internal/models"
)

// SolutionRepository handles persistence of submitted solutions.
type SolutionRepository struct {
	db *sqlx.DB
}

// NewSolutionRepository constructs the repository.
func NewSolutionRepository(db *sqlx.DB) *SolutionRepository {
	return &SolutionRepository{db: db}
}

// Create persists a new solution. Resubmission never overwrites a prior
// record; each submission is an independent row.
func (r *SolutionRepository) Create(ctx context.Context, solution *models.Solution) error {
	if solution.ID == "" {
		solution.ID = uuid.NewString()
	}
	if solution.SubmittedAt.IsZero() {
		solution.SubmittedAt = time.Now().UTC()
	}
	if solution.Status == "" {
		solution.Status = models.SolutionStatusSubmitted
	}
	const query = `INSERT INTO solutions (id, assignment_id, student_id, submitted_at, comment, score, status, graded_by, graded_at)
        VALUES (:id, :assignment_id, :student_id, :submitted_at, :comment, :score, :status, :graded_by, :graded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, solution); err != nil {
		return fmt.Errorf("create solution: %w", err)
	}
	return nil
}

// FindByID returns a solution by its ID.
func (r *SolutionRepository) FindByID(ctx context.Context, id string) (*models.Solution, error) {
	const query = `SELECT id, assignment_id, student_id, submitted_at, comment, score, status, graded_by, graded_at FROM solutions WHERE id = $1`
	var solution models.Solution
	if err := r.db.GetContext(ctx, &solution, query, id); err != nil {
		return nil, err
	}
	return &solution, nil
}

// ListByAssignment returns all solutions submitted for an assignment, newest
// first, enriched for the grading screen.
func (r *SolutionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SolutionDetail, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.submitted_at, s.comment, s.score, s.status, s.graded_by, s.graded_at,
            u.full_name AS student_name, a.name AS assignment_name
        FROM solutions s
        JOIN users u ON u.id = s.student_id
        JOIN assignments a ON a.id = s.assignment_id
        WHERE s.assignment_id = $1
        ORDER BY s.submitted_at DESC`
	var solutions []models.SolutionDetail
	if err := r.db.SelectContext(ctx, &solutions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list solutions by assignment: %w", err)
	}
	return solutions, nil
}

// ListByStudentAndCourse returns a student's solutions across one course.
func (r *SolutionRepository) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.SolutionDetail, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.submitted_at, s.comment, s.score, s.status, s.graded_by, s.graded_at,
            u.full_name AS student_name, a.name AS assignment_name
        FROM solutions s
        JOIN users u ON u.id = s.student_id
        JOIN assignments a ON a.id = s.assignment_id
        WHERE s.student_id = $1 AND a.course_id = $2
        ORDER BY s.submitted_at DESC`
	var solutions []models.SolutionDetail
	if err := r.db.SelectContext(ctx, &solutions, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list solutions by student: %w", err)
	}
	return solutions, nil
}

// Grade writes the score and grading audit fields. Re-grading overwrites the
// previous score; last write wins.
func (r *SolutionRepository) Grade(ctx context.Context, id string, score int, gradedBy string, gradedAt time.Time) error {
	const query = `UPDATE solutions SET score = $2, status = $3, graded_by = $4, graded_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, score, models.SolutionStatusGraded, gradedBy, gradedAt); err != nil {
		return fmt.Errorf("grade solution: %w", err)
	}
	return nil
}
