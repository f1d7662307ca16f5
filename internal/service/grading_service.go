package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type solutionRepository interface {
	Create(ctx context.Context, solution *models.Solution) error
	FindByID(ctx context.Context, id string) (*models.Solution, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SolutionDetail, error)
	ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.SolutionDetail, error)
	Grade(ctx context.Context, id string, score int, gradedBy string, gradedAt time.Time) error
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type progressRecomputer interface {
	Recompute(ctx context.Context, studentID, courseID string) (*models.ProgressRecord, error)
}

// SubmitSolutionRequest carries a student's answer to an assignment.
type SubmitSolutionRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	Comment      string `json:"comment"`
}

// GradeSolutionRequest carries a score for one specific solution.
type GradeSolutionRequest struct {
	Score int `json:"score"`
}

// GradingService runs the submission and scoring pipeline. Every submission
// is an independent record; grading targets a solution id and feeds the
// progress aggregate of the solution's (student, course) pair.
type GradingService struct {
	solutions   solutionRepository
	assignments assignmentReader
	progress    progressRecomputer
	audit       auditRecorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradingService constructs GradingService.
func NewGradingService(solutions solutionRepository, assignments assignmentReader, progress progressRecomputer, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *GradingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingService{solutions: solutions, assignments: assignments, progress: progress, audit: audit, validator: validate, logger: logger}
}

// SubmitSolution records a new ungraded solution. Resubmission is always
// allowed; a prior graded solution is never overwritten.
func (s *GradingService) SubmitSolution(ctx context.Context, actor models.Actor, req SubmitSolutionRequest) (*models.Solution, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid solution payload")
	}
	if _, err := s.assignments.FindByID(ctx, req.AssignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}

	solution := &models.Solution{
		AssignmentID: req.AssignmentID,
		StudentID:    actor.ID,
		Comment:      req.Comment,
		Status:       models.SolutionStatusSubmitted,
	}
	if err := s.solutions.Create(ctx, solution); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit solution")
	}
	return solution, nil
}

// GradeSolution writes a score in [0,100] and marks the solution GRADED.
// Re-grading overwrites the previous score; last write wins. Grading is the
// event that moves the assignment into the student's completed work units,
// so the progress aggregate is recomputed afterwards.
func (s *GradingService) GradeSolution(ctx context.Context, actor models.Actor, solutionID string, req GradeSolutionRequest) (*models.Solution, error) {
	if req.Score < 0 || req.Score > 100 {
		return nil, appErrors.Clone(appErrors.ErrInvalidScore, "score must be between 0 and 100")
	}
	solution, err := s.solutions.FindByID(ctx, solutionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "solution not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load solution")
	}

	gradedAt := time.Now().UTC()
	if err := s.solutions.Grade(ctx, solutionID, req.Score, actor.ID, gradedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade solution")
	}

	assignment, err := s.assignments.FindByID(ctx, solution.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if _, err := s.progress.Recompute(ctx, solution.StudentID, assignment.CourseID); err != nil {
		return nil, err
	}

	if s.audit != nil {
		actorID := actor.ID
		payload, _ := json.Marshal(map[string]interface{}{"score": req.Score, "student_id": solution.StudentID})
		s.audit.Record(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionSolutionGrade,
			Resource:   "solution",
			ResourceID: &solutionID,
			NewValues:  payload,
		})
	}

	score := req.Score
	solution.Score = &score
	solution.Status = models.SolutionStatusGraded
	solution.GradedBy = &actor.ID
	solution.GradedAt = &gradedAt
	return solution, nil
}

// ListByAssignment returns the grading queue for one assignment.
func (s *GradingService) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SolutionDetail, error) {
	if _, err := s.assignments.FindByID(ctx, assignmentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	solutions, err := s.solutions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list solutions")
	}
	return solutions, nil
}

// ListByStudentAndCourse returns a student's submissions across one course.
func (s *GradingService) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.SolutionDetail, error) {
	solutions, err := s.solutions.ListByStudentAndCourse(ctx, studentID, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list solutions")
	}
	return solutions, nil
}
