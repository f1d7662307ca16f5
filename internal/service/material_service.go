package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type materialRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error)
	FindByID(ctx context.Context, id string) (*models.CourseMaterial, error)
	Create(ctx context.Context, material *models.CourseMaterial) error
}

// CreateMaterialRequest appends one unit of content to a course. The
// position is assigned at the end of the existing sequence.
type CreateMaterialRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Body     string `json:"body"`
}

// MaterialService manages course content units. Insertion order defines the
// step sequence the stepper screen walks through.
type MaterialService struct {
	repo      materialRepository
	courses   courseReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaterialService constructs MaterialService.
func NewMaterialService(repo materialRepository, courses courseReader, validate *validator.Validate, logger *zap.Logger) *MaterialService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialService{repo: repo, courses: courses, validator: validate, logger: logger}
}

// ListByCourse returns the step sequence of a course.
func (s *MaterialService) ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	materials, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}
	return materials, nil
}

// Get returns one material.
func (s *MaterialService) Get(ctx context.Context, id string) (*models.CourseMaterial, error) {
	material, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	return material, nil
}

// Create appends a material to the course sequence.
func (s *MaterialService) Create(ctx context.Context, req CreateMaterialRequest) (*models.CourseMaterial, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid material payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	material := &models.CourseMaterial{CourseID: req.CourseID, Name: req.Name, Body: req.Body}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create material")
	}
	return material, nil
}
