package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/lms-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollment_requests WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("stu-1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	found, err := repo.Exists(context.Background(), "stu-1", "c1")
	require.NoError(t, err)
	require.True(t, found)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollment_requests WHERE student_id = $1 AND course_id = $2 LIMIT 1")).
		WithArgs("stu-2", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	found, err = repo.Exists(context.Background(), "stu-2", "c1")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryExistsOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollment_requests WHERE student_id = $1 AND course_id = $2 AND status NOT IN ($3, $4) LIMIT 1")).
		WithArgs("stu-1", "c1", models.RequestStatusRejected, models.RequestStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	open, err := repo.ExistsOpen(context.Background(), "stu-1", "c1")
	require.NoError(t, err)
	require.True(t, open)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollment_requests")).
		WithArgs("stu-2", "c1", models.RequestStatusRejected, models.RequestStatusWithdrawn).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	open, err = repo.ExistsOpen(context.Background(), "stu-2", "c1")
	require.NoError(t, err)
	require.False(t, open)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryAssignGroupGuardsCapacity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	// Seat available: the guarded UPDATE touches the row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET group_id = $2")).
		WithArgs("req-1", "g1", models.RequestStatusRejected, models.RequestStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AssignGroup(context.Background(), "req-1", "g1"))

	// Group full: zero rows affected maps to ErrCapacityExceeded.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET group_id = $2")).
		WithArgs("req-2", "g1", models.RequestStatusRejected, models.RequestStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.AssignGroup(context.Background(), "req-2", "g1")
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApplyEditTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	status := models.RequestStatusApproved
	processedAt := time.Now().UTC()
	processedBy := "admin-1"
	comment := "late enrollment approved"
	groupID := "g1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET status = $2")).
		WithArgs("req-1", status, &processedAt, &processedBy).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET comment = $2")).
		WithArgs("req-1", &comment).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET group_id = $2")).
		WithArgs("req-1", "g1", models.RequestStatusRejected, models.RequestStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyEdit(context.Background(), "req-1", RequestEdit{
		Status:      &status,
		ProcessedAt: &processedAt,
		ProcessedBy: &processedBy,
		Comment:     &comment,
		GroupID:     &groupID,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryApplyEditRollsBackOnFullGroup(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	status := models.RequestStatusUnderReview
	groupID := "g1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET status = $2")).
		WithArgs("req-1", status, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_requests SET group_id = $2")).
		WithArgs("req-1", "g1", models.RequestStatusRejected, models.RequestStatusWithdrawn).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyEdit(context.Background(), "req-1", RequestEdit{Status: &status, GroupID: &groupID})
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDeleteDetachesProgress(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRequestRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "course_id", "status", "group_id", "comment", "processed_by", "created_at", "processed_at"}).
		AddRow("req-1", "stu-1", "c1", models.RequestStatusApproved, nil, nil, nil, time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, course_id, status, group_id, comment, processed_by, created_at, processed_at FROM enrollment_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(rows)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM progress_steps WHERE student_id = $1 AND course_id = $2")).
		WithArgs("stu-1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM progress_records WHERE student_id = $1 AND course_id = $2")).
		WithArgs("stu-1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM enrollment_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "req-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
