package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type progressRepository interface {
	Find(ctx context.Context, studentID, courseID string) (*models.ProgressRecord, error)
	Create(ctx context.Context, record *models.ProgressRecord) error
	ListSteps(ctx context.Context, studentID, courseID string) ([]int, error)
	AddStep(ctx context.Context, studentID, courseID string, stepIndex int) error
	Totals(ctx context.Context, studentID, courseID string) (models.ProgressTotals, error)
	UpdateAggregate(ctx context.Context, studentID, courseID string, percent int, status *models.LearningStatus, graduationDate *time.Time) error
	UpdateLearningStatus(ctx context.Context, studentID, courseID string, status models.LearningStatus) error
}

type materialPositionReader interface {
	ExistsPosition(ctx context.Context, courseID string, position int) (bool, error)
}

type enrollmentReader interface {
	Exists(ctx context.Context, studentID, courseID string) (bool, error)
}

type learningStatusValidator interface {
	ValidateLearningStatus(ctx context.Context, name string) error
}

// ProgressService aggregates a student's completion state for a course: the
// set of viewed materials, the set of graded assignments, the derived percent
// and the graduation event. Records are recomputed from the live work-unit
// sets, never blindly overwritten.
type ProgressService struct {
	repo     progressRepository
	courses  courseReader
	steps    materialPositionReader
	requests enrollmentReader
	catalog  learningStatusValidator
	audit    auditRecorder
	logger   *zap.Logger
}

// NewProgressService constructs ProgressService.
func NewProgressService(repo progressRepository, courses courseReader, steps materialPositionReader, requests enrollmentReader, catalog learningStatusValidator, audit auditRecorder, logger *zap.Logger) *ProgressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressService{repo: repo, courses: courses, steps: steps, requests: requests, catalog: catalog, audit: audit, logger: logger}
}

// GetProgress returns the record for a (student, course) pair, creating it
// lazily on first interaction the way approval does.
func (s *ProgressService) GetProgress(ctx context.Context, studentID, courseID string) (*models.ProgressRecord, error) {
	record, err := s.ensureRecord(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	steps, err := s.repo.ListSteps(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed steps")
	}
	record.CompletedSteps = steps
	return record, nil
}

// MarkStepCompleted records a viewed material and recomputes the aggregate.
// Re-marking a step is a no-op; completion order is not constrained, the
// UI's linear stepper is presentation only. Students may only mark their own
// steps, staff may mark on a student's behalf.
func (s *ProgressService) MarkStepCompleted(ctx context.Context, actor models.Actor, studentID, courseID string, stepIndex int) (*models.ProgressRecord, error) {
	if !actor.IsStaff() && studentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only record their own progress")
	}

	exists, err := s.steps.ExistsPosition(ctx, courseID, stepIndex)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate step")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("step %d is outside the course material sequence", stepIndex))
	}

	if _, err := s.ensureRecord(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	if err := s.repo.AddStep(ctx, studentID, courseID, stepIndex); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record step")
	}
	return s.Recompute(ctx, studentID, courseID)
}

// Recompute derives percent from the live totals and fires the one-time
// graduation event when 100 is first reached. Percent never decreases: the
// completed set only grows, and a later expansion of the course's work units
// keeps the previously reached value.
func (s *ProgressService) Recompute(ctx context.Context, studentID, courseID string) (*models.ProgressRecord, error) {
	record, err := s.ensureRecord(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.Totals(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to derive progress totals")
	}

	percent := totals.Percent()
	if percent < record.Percent {
		percent = record.Percent
	}

	var status *models.LearningStatus
	var graduation *time.Time
	if percent == 100 && record.GraduationDate == nil {
		now := time.Now().UTC()
		graduation = &now
		completed := models.LearningStatusCompleted
		status = &completed
	}

	if err := s.repo.UpdateAggregate(ctx, studentID, courseID, percent, status, graduation); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update progress")
	}
	return s.GetProgress(ctx, studentID, courseID)
}

// SetLearningStatus is the staff override for administrative outcomes such
// as expulsion. It never touches percent or the graduation date.
func (s *ProgressService) SetLearningStatus(ctx context.Context, actor models.Actor, studentID, courseID, status string) (*models.ProgressRecord, error) {
	if err := s.catalog.ValidateLearningStatus(ctx, status); err != nil {
		return nil, err
	}
	if _, err := s.ensureRecord(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLearningStatus(ctx, studentID, courseID, models.LearningStatus(status)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to override learning status")
	}
	if s.audit != nil {
		actorID := actor.ID
		payload, _ := json.Marshal(map[string]string{"student_id": studentID, "course_id": courseID, "learning_status": status})
		s.audit.Record(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionStatusOverride,
			Resource:   "progress_record",
			ResourceID: &studentID,
			NewValues:  payload,
		})
	}
	return s.GetProgress(ctx, studentID, courseID)
}

func (s *ProgressService) ensureRecord(ctx context.Context, studentID, courseID string) (*models.ProgressRecord, error) {
	record, err := s.repo.Find(ctx, studentID, courseID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load progress record")
	}

	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	// Progress exists only for students who actually applied for the course.
	enrolled, err := s.requests.Exists(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment request")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no enrollment request for this student and course")
	}

	record = &models.ProgressRecord{
		StudentID:          studentID,
		CourseID:           courseID,
		Percent:            0,
		LearningStatus:     models.LearningStatusInProgress,
		EducationStartDate: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create progress record")
	}
	return record, nil
}
