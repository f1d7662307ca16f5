package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	"github.com/campusflow/lms-api/internal/repository"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type groupRepository interface {
	ListByCourse(ctx context.Context, courseID string) ([]models.GroupUsage, error)
	FindByID(ctx context.Context, id string) (*models.Group, error)
	FindUsageByID(ctx context.Context, id string) (*models.GroupUsage, error)
	Create(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id string) error
}

type groupRequestRepository interface {
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	AssignGroup(ctx context.Context, id, groupID string) error
	ClearGroup(ctx context.Context, id string) error
	ListGroupMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
}

// CreateGroupRequest describes a new capacity-bounded cohort.
type CreateGroupRequest struct {
	CourseID string `json:"course_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Capacity int    `json:"capacity" validate:"required,gt=0"`
}

// GroupService arbitrates group membership. Occupancy is always derived from
// the live request set at decision time, never from a cached count, so
// withdrawals and rejections free seats without any invalidation step.
type GroupService struct {
	repo      groupRepository
	requests  groupRequestRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGroupService constructs GroupService.
func NewGroupService(repo groupRepository, requests groupRequestRepository, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GroupService{repo: repo, requests: requests, validator: validate, logger: logger}
}

// ListGroups returns a course's groups with derived occupancy.
func (s *GroupService) ListGroups(ctx context.Context, courseID string) ([]models.GroupUsage, error) {
	groups, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

// CapacityRemaining returns the free seats of a group, derived live.
func (s *GroupService) CapacityRemaining(ctx context.Context, groupID string) (int, error) {
	usage, err := s.loadUsage(ctx, groupID)
	if err != nil {
		return 0, err
	}
	return usage.Remaining(), nil
}

// TryAssign binds a request to a group. The capacity check happens inside
// the assigning write, so a concurrent assign to the last seat fails rather
// than overshooting.
func (s *GroupService) TryAssign(ctx context.Context, requestID, groupID string) (*models.EnrollmentRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	group, err := s.repo.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	if group.CourseID != request.CourseID {
		return nil, appErrors.Clone(appErrors.ErrGroupCourseMismatch, "group belongs to a different course")
	}

	if err := s.requests.AssignGroup(ctx, requestID, groupID); err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) {
			return nil, appErrors.Clone(appErrors.ErrGroupFull, "group has no remaining capacity")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign group")
	}
	request.GroupID = &group.ID
	return request, nil
}

// RemoveFromGroup clears the binding. Calling it for an unbound request is a
// no-op.
func (s *GroupService) RemoveFromGroup(ctx context.Context, requestID string) error {
	if err := s.requests.ClearGroup(ctx, requestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove from group")
	}
	return nil
}

// ListMembers returns the active roster of a group.
func (s *GroupService) ListMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	if _, err := s.loadUsage(ctx, groupID); err != nil {
		return nil, err
	}
	members, err := s.requests.ListGroupMembers(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list group members")
	}
	return members, nil
}

// Create adds a group to a course.
func (s *GroupService) Create(ctx context.Context, req CreateGroupRequest) (*models.GroupUsage, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	group := &models.Group{CourseID: req.CourseID, Name: req.Name, Capacity: req.Capacity}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}
	return &models.GroupUsage{Group: *group}, nil
}

// Delete removes a group, detaching any bound requests first.
func (s *GroupService) Delete(ctx context.Context, groupID string) error {
	if _, err := s.loadUsage(ctx, groupID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, groupID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	return nil
}

func (s *GroupService) loadUsage(ctx context.Context, groupID string) (*models.GroupUsage, error) {
	usage, err := s.repo.FindUsageByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return usage, nil
}
