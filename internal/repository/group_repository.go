package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusflow/lms-api/internal/models"
)

// GroupRepository handles persistence of course groups. Membership counts
// are always derived from the live request set, never stored.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const occupancyJoin = `LEFT JOIN LATERAL (
        SELECT COUNT(*) AS active_count FROM enrollment_requests r
        WHERE r.group_id = g.id AND r.status NOT IN ($1, $2)
    ) occ ON TRUE`

// ListByCourse returns the groups of a course with derived occupancy.
func (r *GroupRepository) ListByCourse(ctx context.Context, courseID string) ([]models.GroupUsage, error) {
	query := fmt.Sprintf(`SELECT g.id, g.course_id, g.name, g.capacity, g.created_at, occ.active_count
        FROM course_groups g
        %s
        WHERE g.course_id = $3
        ORDER BY g.name`, occupancyJoin)
	var groups []models.GroupUsage
	if err := r.db.SelectContext(ctx, &groups, query, models.RequestStatusRejected, models.RequestStatusWithdrawn, courseID); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

// FindByID returns a group by its ID.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	const query = `SELECT id, course_id, name, capacity, created_at FROM course_groups WHERE id = $1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// FindUsageByID returns a group with its derived occupancy.
func (r *GroupRepository) FindUsageByID(ctx context.Context, id string) (*models.GroupUsage, error) {
	query := fmt.Sprintf(`SELECT g.id, g.course_id, g.name, g.capacity, g.created_at, occ.active_count
        FROM course_groups g
        %s
        WHERE g.id = $3`, occupancyJoin)
	var usage models.GroupUsage
	if err := r.db.GetContext(ctx, &usage, query, models.RequestStatusRejected, models.RequestStatusWithdrawn, id); err != nil {
		return nil, err
	}
	return &usage, nil
}

// Create persists a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_groups (id, course_id, name, capacity, created_at)
        VALUES (:id, :course_id, :name, :capacity, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Delete removes a group after detaching any bound requests.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE enrollment_requests SET group_id = NULL WHERE group_id = $1`, id); err != nil {
		return fmt.Errorf("detach group requests: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM course_groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit group delete: %w", err)
	}
	return nil
}
