package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/lms-api/internal/models"
)

// ErrCapacityExceeded is returned when a guarded group assignment finds no
// free seat at write time.
var ErrCapacityExceeded = errors.New("group capacity exceeded")

// RequestRepository handles persistence of enrollment requests.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// List returns enrollment requests filtered by the provided criteria.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error) {
	base := `FROM enrollment_requests r
LEFT JOIN users u ON u.id = r.student_id
LEFT JOIN courses c ON c.id = r.course_id
LEFT JOIN course_groups g ON g.id = r.group_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("r.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.GroupID != "" {
		conditions = append(conditions, fmt.Sprintf("r.group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "r.created_at",
		"processed_at": "r.processed_at",
		"student_name": "u.full_name",
		"course_name":  "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "r.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT r.id, r.student_id, r.course_id, r.status, r.group_id, r.comment, r.processed_by, r.created_at, r.processed_at,
        u.full_name AS student_name, c.name AS course_name, g.name AS group_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var requests []models.RequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}
	return requests, total, nil
}

// FindByID returns an enrollment request by its ID.
func (r *RequestRepository) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	const query = `SELECT id, student_id, course_id, status, group_id, comment, processed_by, created_at, processed_at FROM enrollment_requests WHERE id = $1`
	var request models.EnrollmentRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindDetailByID returns an enrollment request enriched with display names.
func (r *RequestRepository) FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error) {
	const query = `SELECT r.id, r.student_id, r.course_id, r.status, r.group_id, r.comment, r.processed_by, r.created_at, r.processed_at,
            u.full_name AS student_name, c.name AS course_name, g.name AS group_name
        FROM enrollment_requests r
        LEFT JOIN users u ON u.id = r.student_id
        LEFT JOIN courses c ON c.id = r.course_id
        LEFT JOIN course_groups g ON g.id = r.group_id
        WHERE r.id = $1`
	var detail models.RequestDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Exists checks whether any request, terminal or not, was ever filed for
// the pair.
func (r *RequestRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollment_requests WHERE student_id = $1 AND course_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check request: %w", err)
	}
	return true, nil
}

// ExistsOpen checks whether a non-terminal request exists for the pair.
func (r *RequestRepository) ExistsOpen(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM enrollment_requests WHERE student_id = $1 AND course_id = $2 AND status NOT IN ($3, $4) LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, models.RequestStatusRejected, models.RequestStatusWithdrawn); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open request: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment request.
func (r *RequestRepository) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusSubmitted
	}
	const query = `INSERT INTO enrollment_requests (id, student_id, course_id, status, group_id, comment, processed_by, created_at, processed_at)
        VALUES (:id, :student_id, :course_id, :status, :group_id, :comment, :processed_by, :created_at, :processed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and processing audit fields.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, processedAt *time.Time, processedBy *string) error {
	const query = `UPDATE enrollment_requests SET status = $2, processed_at = COALESCE($3, processed_at), processed_by = COALESCE($4, processed_by) WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, processedAt, processedBy); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return nil
}

// UpdateComment replaces the staff comment.
func (r *RequestRepository) UpdateComment(ctx context.Context, id string, comment *string) error {
	const query = `UPDATE enrollment_requests SET comment = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, comment); err != nil {
		return fmt.Errorf("update request comment: %w", err)
	}
	return nil
}

// AssignGroup binds the request to a group, re-checking capacity inside the
// UPDATE so concurrent assignments never overshoot. Capacity counts only
// requests whose status still occupies a seat.
func (r *RequestRepository) AssignGroup(ctx context.Context, id, groupID string) error {
	return assignGroupExec(ctx, r.db, id, groupID)
}

// ClearGroup removes the group binding. Idempotent.
func (r *RequestRepository) ClearGroup(ctx context.Context, id string) error {
	const query = `UPDATE enrollment_requests SET group_id = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear request group: %w", err)
	}
	return nil
}

// RequestEdit captures the validated field changes of a committed draft.
// Nil fields stay untouched.
type RequestEdit struct {
	Status      *models.RequestStatus
	ProcessedAt *time.Time
	ProcessedBy *string
	GroupID     *string
	RemoveGroup bool
	Comment     *string
}

// ApplyEdit applies all changed fields of a draft in one transaction. The
// group assignment re-checks live capacity; on a full group the whole edit
// rolls back and ErrCapacityExceeded is returned.
func (r *RequestRepository) ApplyEdit(ctx context.Context, id string, edit RequestEdit) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin edit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if edit.Status != nil {
		const query = `UPDATE enrollment_requests SET status = $2, processed_at = COALESCE($3, processed_at), processed_by = COALESCE($4, processed_by) WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, id, *edit.Status, edit.ProcessedAt, edit.ProcessedBy); err != nil {
			return fmt.Errorf("apply status edit: %w", err)
		}
	}
	if edit.Comment != nil {
		const query = `UPDATE enrollment_requests SET comment = $2 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, id, edit.Comment); err != nil {
			return fmt.Errorf("apply comment edit: %w", err)
		}
	}
	switch {
	case edit.RemoveGroup:
		const query = `UPDATE enrollment_requests SET group_id = NULL WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("apply group removal: %w", err)
		}
	case edit.GroupID != nil:
		if err := assignGroupExec(ctx, tx, id, *edit.GroupID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit edit: %w", err)
	}
	return nil
}

// Delete removes a request and detaches its progress records.
func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	request, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM progress_steps WHERE student_id = $1 AND course_id = $2`, request.StudentID, request.CourseID); err != nil {
		return fmt.Errorf("detach progress steps: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM progress_records WHERE student_id = $1 AND course_id = $2`, request.StudentID, request.CourseID); err != nil {
		return fmt.Errorf("detach progress record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollment_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// ListGroupMembers returns the roster rows for a group.
func (r *RequestRepository) ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	const query = `SELECT r.id AS request_id, r.student_id, u.full_name AS student_name, r.status
        FROM enrollment_requests r
        JOIN users u ON u.id = r.student_id
        WHERE r.group_id = $1 AND r.status NOT IN ($2, $3)
        ORDER BY u.full_name`
	var members []models.GroupMember
	if err := r.db.SelectContext(ctx, &members, query, groupID, models.RequestStatusRejected, models.RequestStatusWithdrawn); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// ListCoursesByStudent returns the courses a student has an approved request for.
func (r *RequestRepository) ListCoursesByStudent(ctx context.Context, studentID string) ([]models.CourseSummary, error) {
	const query = `SELECT c.id, c.name
        FROM enrollment_requests r
        JOIN courses c ON c.id = r.course_id
        WHERE r.student_id = $1 AND r.status = $2
        ORDER BY c.name`
	var courses []models.CourseSummary
	if err := r.db.SelectContext(ctx, &courses, query, studentID, models.RequestStatusApproved); err != nil {
		return nil, fmt.Errorf("list student courses: %w", err)
	}
	return courses, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func assignGroupExec(ctx context.Context, e execer, id, groupID string) error {
	const query = `UPDATE enrollment_requests SET group_id = $2
        WHERE id = $1
        AND (SELECT COUNT(*) FROM enrollment_requests
             WHERE group_id = $2 AND id <> $1 AND status NOT IN ($3, $4))
            < (SELECT capacity FROM course_groups WHERE id = $2)`
	result, err := e.ExecContext(ctx, query, id, groupID, models.RequestStatusRejected, models.RequestStatusWithdrawn)
	if err != nil {
		return fmt.Errorf("assign group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign group result: %w", err)
	}
	if affected == 0 {
		return ErrCapacityExceeded
	}
	return nil
}
