package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

// fakeProgressRepo keeps the work-unit sets in memory and derives totals
// from them, mirroring the live SQL derivation.
type fakeProgressRepo struct {
	records     map[string]models.ProgressRecord
	steps       map[string]map[int]bool
	materials   int
	assignments int
	graded      int
}

func progressKey(studentID, courseID string) string { return studentID + "|" + courseID }

func (f *fakeProgressRepo) Find(ctx context.Context, studentID, courseID string) (*models.ProgressRecord, error) {
	if r, ok := f.records[progressKey(studentID, courseID)]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeProgressRepo) Create(ctx context.Context, record *models.ProgressRecord) error {
	if f.records == nil {
		f.records = make(map[string]models.ProgressRecord)
	}
	f.records[progressKey(record.StudentID, record.CourseID)] = *record
	return nil
}

func (f *fakeProgressRepo) ListSteps(ctx context.Context, studentID, courseID string) ([]int, error) {
	var list []int
	for step := range f.steps[progressKey(studentID, courseID)] {
		list = append(list, step)
	}
	return list, nil
}

func (f *fakeProgressRepo) AddStep(ctx context.Context, studentID, courseID string, stepIndex int) error {
	if f.steps == nil {
		f.steps = make(map[string]map[int]bool)
	}
	key := progressKey(studentID, courseID)
	if f.steps[key] == nil {
		f.steps[key] = make(map[int]bool)
	}
	f.steps[key][stepIndex] = true
	return nil
}

func (f *fakeProgressRepo) Totals(ctx context.Context, studentID, courseID string) (models.ProgressTotals, error) {
	return models.ProgressTotals{
		MaterialCount:         f.materials,
		AssignmentCount:       f.assignments,
		CompletedStepCount:    len(f.steps[progressKey(studentID, courseID)]),
		GradedAssignmentCount: f.graded,
	}, nil
}

func (f *fakeProgressRepo) UpdateAggregate(ctx context.Context, studentID, courseID string, percent int, status *models.LearningStatus, graduationDate *time.Time) error {
	key := progressKey(studentID, courseID)
	r := f.records[key]
	r.Percent = percent
	if status != nil {
		r.LearningStatus = *status
	}
	if graduationDate != nil && r.GraduationDate == nil {
		r.GraduationDate = graduationDate
	}
	f.records[key] = r
	return nil
}

func (f *fakeProgressRepo) UpdateLearningStatus(ctx context.Context, studentID, courseID string, status models.LearningStatus) error {
	key := progressKey(studentID, courseID)
	r := f.records[key]
	r.LearningStatus = status
	f.records[key] = r
	return nil
}

type fakeStepPositions struct {
	max int
}

func (f *fakeStepPositions) ExistsPosition(ctx context.Context, courseID string, position int) (bool, error) {
	return position >= 1 && position <= f.max, nil
}

type fakeEnrollmentIndex struct {
	pairs map[string]bool
}

func (f *fakeEnrollmentIndex) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	return f.pairs[progressKey(studentID, courseID)], nil
}

func newProgressService(repo *fakeProgressRepo, audit *captureAudit) *ProgressService {
	courses := &mockCourseReader{courses: map[string]models.Course{"c1": {ID: "c1"}}}
	enrolled := &fakeEnrollmentIndex{pairs: map[string]bool{progressKey("s1", "c1"): true}}
	if audit == nil {
		audit = &captureAudit{}
	}
	return NewProgressService(repo, courses, &fakeStepPositions{max: repo.materials}, enrolled, &mockStatusCatalog{}, audit, nil)
}

func TestProgressServiceLazyCreation(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2, assignments: 1}
	svc := newProgressService(repo, nil)

	record, err := svc.GetProgress(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, record.Percent)
	assert.Equal(t, models.LearningStatusInProgress, record.LearningStatus)
	assert.False(t, record.EducationStartDate.IsZero())
	assert.Nil(t, record.GraduationDate)
}

func TestProgressServiceRequiresEnrollmentRequest(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2}
	svc := newProgressService(repo, nil)

	_, err := svc.GetProgress(context.Background(), "s2", "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.records, "no orphan record for an unenrolled student")

	_, err = svc.MarkStepCompleted(context.Background(), models.Actor{ID: "s2", Role: models.RoleStudent}, "s2", "c1", 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.steps)
}

func TestProgressServiceMarkStepForAnotherStudent(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2}
	svc := newProgressService(repo, nil)

	_, err := svc.MarkStepCompleted(context.Background(), models.Actor{ID: "s2", Role: models.RoleStudent}, "s1", "c1", 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.steps)
	assert.Empty(t, repo.records)
}

func TestProgressServiceStaffMarksOnBehalf(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2}
	svc := newProgressService(repo, nil)

	record, err := svc.MarkStepCompleted(context.Background(), staff, "s1", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 50, record.Percent)
}

func TestProgressServiceUnknownCourse(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2}
	svc := newProgressService(repo, nil)

	_, err := svc.GetProgress(context.Background(), "s1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

// Two materials and one assignment: each completed unit is worth a third.
func TestProgressServiceCourseCompletionScenario(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2, assignments: 1}
	svc := newProgressService(repo, nil)

	record, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 33, record.Percent)

	record, err = svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 2)
	require.NoError(t, err)
	assert.Equal(t, 66, record.Percent)
	assert.Equal(t, models.LearningStatusInProgress, record.LearningStatus)
	assert.Nil(t, record.GraduationDate)

	repo.graded = 1
	record, err = svc.Recompute(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 100, record.Percent)
	assert.Equal(t, models.LearningStatusCompleted, record.LearningStatus)
	require.NotNil(t, record.GraduationDate)
}

func TestProgressServiceRemarkingStepIsIdempotent(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2, assignments: 1}
	svc := newProgressService(repo, nil)

	record, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 33, record.Percent)

	record, err = svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 33, record.Percent)
	assert.Equal(t, []int{1}, record.CompletedSteps)
}

func TestProgressServiceStepOutsideSequence(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2, assignments: 1}
	svc := newProgressService(repo, nil)

	_, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 7)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProgressServiceOutOfOrderStepsAllowed(t *testing.T) {
	repo := &fakeProgressRepo{materials: 3}
	svc := newProgressService(repo, nil)

	_, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 3)
	require.NoError(t, err)
	record, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 66, record.Percent)
}

func TestProgressServicePercentNeverDecreases(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2}
	svc := newProgressService(repo, nil)

	record, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 50, record.Percent)

	// the course grows after the fact; the reached value holds
	repo.materials = 10
	record, err = svc.Recompute(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, record.Percent)
}

func TestProgressServiceGraduationHappensOnce(t *testing.T) {
	repo := &fakeProgressRepo{materials: 1}
	svc := newProgressService(repo, nil)

	record, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 1)
	require.NoError(t, err)
	require.NotNil(t, record.GraduationDate)
	first := *record.GraduationDate

	record, err = svc.Recompute(context.Background(), "s1", "c1")
	require.NoError(t, err)
	require.NotNil(t, record.GraduationDate)
	assert.Equal(t, first, *record.GraduationDate)
}

func TestProgressServiceEmptyCourseIsZero(t *testing.T) {
	repo := &fakeProgressRepo{}
	svc := newProgressService(repo, nil)

	record, err := svc.Recompute(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, record.Percent)
}

func TestProgressServiceLearningStatusOverride(t *testing.T) {
	repo := &fakeProgressRepo{materials: 2}
	audit := &captureAudit{}
	svc := newProgressService(repo, audit)

	record, err := svc.MarkStepCompleted(context.Background(), student, "s1", "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 50, record.Percent)

	record, err = svc.SetLearningStatus(context.Background(), staff, "s1", "c1", string(models.LearningStatusExpelled))
	require.NoError(t, err)
	assert.Equal(t, models.LearningStatusExpelled, record.LearningStatus)
	assert.Equal(t, 50, record.Percent, "override never touches percent")
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionStatusOverride, audit.logs[0].Action)

	_, err = svc.SetLearningStatus(context.Background(), staff, "s1", "c1", "PAUSED")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
