package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campusflow/lms-api/internal/models"
)

// ProgressRepository handles persistence of progress records and their
// completed-step sets. Work-unit totals are always derived from the live
// material, assignment and solution sets.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Find returns the progress record for a (student, course) pair without its
// step set. Callers needing the steps use ListSteps.
func (r *ProgressRepository) Find(ctx context.Context, studentID, courseID string) (*models.ProgressRecord, error) {
	const query = `SELECT student_id, course_id, percent, learning_status, education_start_date, graduation_date
        FROM progress_records WHERE student_id = $1 AND course_id = $2`
	var record models.ProgressRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, courseID); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create persists a fresh progress record.
func (r *ProgressRepository) Create(ctx context.Context, record *models.ProgressRecord) error {
	if record.EducationStartDate.IsZero() {
		record.EducationStartDate = time.Now().UTC()
	}
	if record.LearningStatus == "" {
		record.LearningStatus = models.LearningStatusInProgress
	}
	const query = `INSERT INTO progress_records (student_id, course_id, percent, learning_status, education_start_date, graduation_date)
        VALUES (:student_id, :course_id, :percent, :learning_status, :education_start_date, :graduation_date)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create progress record: %w", err)
	}
	return nil
}

// ListSteps returns the completed step ordinals in ascending order.
func (r *ProgressRepository) ListSteps(ctx context.Context, studentID, courseID string) ([]int, error) {
	const query = `SELECT step_index FROM progress_steps WHERE student_id = $1 AND course_id = $2 ORDER BY step_index`
	var steps []int
	if err := r.db.SelectContext(ctx, &steps, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list progress steps: %w", err)
	}
	return steps, nil
}

// AddStep records a completed step. Re-marking the same step is a no-op.
func (r *ProgressRepository) AddStep(ctx context.Context, studentID, courseID string, stepIndex int) error {
	const query = `INSERT INTO progress_steps (student_id, course_id, step_index, completed_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (student_id, course_id, step_index) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, studentID, courseID, stepIndex, time.Now().UTC()); err != nil {
		return fmt.Errorf("add progress step: %w", err)
	}
	return nil
}

// Totals derives the live work-unit counts for a (student, course) pair.
// A graded assignment counts once no matter how many solutions were graded.
func (r *ProgressRepository) Totals(ctx context.Context, studentID, courseID string) (models.ProgressTotals, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM course_materials WHERE course_id = $2) AS material_count,
        (SELECT COUNT(*) FROM assignments WHERE course_id = $2) AS assignment_count,
        (SELECT COUNT(*) FROM progress_steps WHERE student_id = $1 AND course_id = $2) AS completed_step_count,
        (SELECT COUNT(DISTINCT s.assignment_id) FROM solutions s
            JOIN assignments a ON a.id = s.assignment_id
            WHERE s.student_id = $1 AND a.course_id = $2 AND s.score IS NOT NULL) AS graded_assignment_count`
	var totals models.ProgressTotals
	if err := r.db.GetContext(ctx, &totals, query, studentID, courseID); err != nil {
		return models.ProgressTotals{}, fmt.Errorf("progress totals: %w", err)
	}
	return totals, nil
}

// UpdateAggregate writes the recomputed percent and, when provided, the
// learning status and graduation date. COALESCE keeps an already-set
// graduation date so it can never be cleared or moved.
func (r *ProgressRepository) UpdateAggregate(ctx context.Context, studentID, courseID string, percent int, status *models.LearningStatus, graduationDate *time.Time) error {
	const query = `UPDATE progress_records
        SET percent = $3,
            learning_status = COALESCE($4, learning_status),
            graduation_date = COALESCE(graduation_date, $5)
        WHERE student_id = $1 AND course_id = $2`
	if _, err := r.db.ExecContext(ctx, query, studentID, courseID, percent, status, graduationDate); err != nil {
		return fmt.Errorf("update progress aggregate: %w", err)
	}
	return nil
}

// UpdateLearningStatus applies a staff override. Percent is untouched.
func (r *ProgressRepository) UpdateLearningStatus(ctx context.Context, studentID, courseID string, status models.LearningStatus) error {
	const query = `UPDATE progress_records SET learning_status = $3 WHERE student_id = $1 AND course_id = $2`
	if _, err := r.db.ExecContext(ctx, query, studentID, courseID, status); err != nil {
		return fmt.Errorf("update learning status: %w", err)
	}
	return nil
}

// ListByGroup returns per-student progress for the group roster, used by the
// course-management screen and the progress reports.
func (r *ProgressRepository) ListByGroup(ctx context.Context, groupID string) ([]models.StudentProgressRow, error) {
	const query = `SELECT r.student_id, u.full_name AS student_name,
            COALESCE(p.percent, 0) AS percent,
            COALESCE(p.learning_status, $4) AS learning_status,
            p.graduation_date
        FROM enrollment_requests r
        JOIN users u ON u.id = r.student_id
        LEFT JOIN progress_records p ON p.student_id = r.student_id AND p.course_id = r.course_id
        WHERE r.group_id = $1 AND r.status NOT IN ($2, $3)
        ORDER BY u.full_name`
	var rows []models.StudentProgressRow
	if err := r.db.SelectContext(ctx, &rows, query, groupID, models.RequestStatusRejected, models.RequestStatusWithdrawn, models.LearningStatusInProgress); err != nil {
		return nil, fmt.Errorf("list group progress: %w", err)
	}
	return rows, nil
}
