package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	"github.com/campusflow/lms-api/internal/repository"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type requestRepository interface {
	List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error)
	FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error)
	ExistsOpen(ctx context.Context, studentID, courseID string) (bool, error)
	Create(ctx context.Context, request *models.EnrollmentRequest) error
	UpdateStatus(ctx context.Context, id string, status models.RequestStatus, processedAt *time.Time, processedBy *string) error
	UpdateComment(ctx context.Context, id string, comment *string) error
	ApplyEdit(ctx context.Context, id string, edit repository.RequestEdit) error
	Delete(ctx context.Context, id string) error
	ListCoursesByStudent(ctx context.Context, studentID string) ([]models.CourseSummary, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type groupReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
}

type groupAllocator interface {
	TryAssign(ctx context.Context, requestID, groupID string) (*models.EnrollmentRequest, error)
	RemoveFromGroup(ctx context.Context, requestID string) error
}

type draftStore interface {
	Save(ctx context.Context, actorID string, draft models.RequestDraft) error
	Find(ctx context.Context, actorID, requestID string) (*models.RequestDraft, error)
	ListByActor(ctx context.Context, actorID string) ([]models.RequestDraft, error)
	Delete(ctx context.Context, actorID, requestID string) error
	DeleteForRequest(ctx context.Context, requestID string) error
}

type requestStatusValidator interface {
	ValidateRequestStatus(ctx context.Context, name string) error
}

type auditRecorder interface {
	Record(ctx context.Context, log *models.AuditLog)
}

// requestTransitions is the lifecycle graph. Review may be skipped: staff can
// approve or reject straight from SUBMITTED. Withdrawal is the student-side
// exit from any non-terminal state.
var requestTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.RequestStatusSubmitted:   {models.RequestStatusUnderReview, models.RequestStatusApproved, models.RequestStatusRejected, models.RequestStatusWithdrawn},
	models.RequestStatusUnderReview: {models.RequestStatusApproved, models.RequestStatusRejected, models.RequestStatusWithdrawn},
	models.RequestStatusApproved:    {models.RequestStatusWithdrawn},
	models.RequestStatusRejected:    {},
	models.RequestStatusWithdrawn:   {},
}

func canTransition(from, to models.RequestStatus) bool {
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func groupAssignable(status models.RequestStatus) bool {
	return status == models.RequestStatusUnderReview || status == models.RequestStatusApproved
}

// CreateRequestRequest describes a student's application to a course.
type CreateRequestRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	StudentID string `json:"student_id"`
}

// StageDraftRequest accumulates proposed edits for one request. Nil fields
// leave the previously staged value untouched.
type StageDraftRequest struct {
	Status      *string `json:"status"`
	GroupID     *string `json:"group_id"`
	RemoveGroup bool    `json:"remove_group"`
	Comment     *string `json:"comment"`
}

// RequestService owns the enrollment request lifecycle: creation, status
// transitions, group binding and the draft overlay used by the admin screen.
type RequestService struct {
	repo      requestRepository
	courses   courseReader
	groups    groupReader
	allocator groupAllocator
	drafts    draftStore
	catalog   requestStatusValidator
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService constructs RequestService.
func NewRequestService(repo requestRepository, courses courseReader, groups groupReader, allocator groupAllocator, drafts draftStore, catalog requestStatusValidator, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{repo: repo, courses: courses, groups: groups, allocator: allocator, drafts: drafts, catalog: catalog, audit: audit, validator: validate, logger: logger}
}

// List returns enrollment requests with pagination metadata.
func (s *RequestService) List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one request with display names.
func (s *RequestService) Get(ctx context.Context, id string) (*models.RequestDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return detail, nil
}

// Create registers a new enrollment request in SUBMITTED state. At most one
// non-terminal request may exist per (student, course) pair.
func (s *RequestService) Create(ctx context.Context, actor models.Actor, req CreateRequestRequest) (*models.RequestDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	studentID := req.StudentID
	if studentID == "" {
		studentID = actor.ID
	}
	if !actor.IsStaff() && studentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only apply for themselves")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	exists, err := s.repo.ExistsOpen(ctx, studentID, req.CourseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate request")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, "an open enrollment request already exists for this course")
	}

	request := &models.EnrollmentRequest{StudentID: studentID, CourseID: req.CourseID, Status: models.RequestStatusSubmitted}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}
	return s.Get(ctx, request.ID)
}

// SetStatus applies a lifecycle transition. Leaving SUBMITTED or
// UNDER_REVIEW stamps the processing audit fields.
func (s *RequestService) SetStatus(ctx context.Context, actor models.Actor, id, newStatus string) (*models.RequestDetail, error) {
	if err := s.catalog.ValidateRequestStatus(ctx, newStatus); err != nil {
		return nil, err
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	target := models.RequestStatus(newStatus)
	if !canTransition(request.Status, target) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot change status from %s to %s", request.Status, target))
	}

	processedAt, processedBy := processingStamp(request.Status, actor)
	if err := s.repo.UpdateStatus(ctx, id, target, processedAt, processedBy); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update request status")
	}
	if target.Terminal() {
		s.discardRequestDrafts(ctx, id)
	}

	s.recordChange(ctx, actor, models.AuditActionRequestUpdate, id, map[string]interface{}{"status": string(target)})
	return s.Get(ctx, id)
}

// Withdraw is the student-initiated terminal transition.
func (s *RequestService) Withdraw(ctx context.Context, actor models.Actor, id string) (*models.RequestDetail, error) {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && request.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the applicant may withdraw this request")
	}
	return s.SetStatus(ctx, actor, id, string(models.RequestStatusWithdrawn))
}

// AssignGroup binds a request to a group. Pre-approval provisional
// assignment is allowed while the request is under review; capacity and
// course ownership checks are delegated to the allocator.
func (s *RequestService) AssignGroup(ctx context.Context, actor models.Actor, id, groupID string) (*models.RequestDetail, error) {
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !groupAssignable(request.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "group assignment requires the request to be under review or approved")
	}
	if _, err := s.allocator.TryAssign(ctx, id, groupID); err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, models.AuditActionGroupAssign, id, map[string]interface{}{"group_id": groupID})
	return s.Get(ctx, id)
}

// RemoveFromGroup clears the group binding. Idempotent.
func (s *RequestService) RemoveFromGroup(ctx context.Context, actor models.Actor, id string) (*models.RequestDetail, error) {
	if _, err := s.loadRequest(ctx, id); err != nil {
		return nil, err
	}
	if err := s.allocator.RemoveFromGroup(ctx, id); err != nil {
		return nil, err
	}
	s.recordChange(ctx, actor, models.AuditActionGroupAssign, id, map[string]interface{}{"group_id": nil})
	return s.Get(ctx, id)
}

// SetComment replaces the staff annotation. Legal in every state.
func (s *RequestService) SetComment(ctx context.Context, actor models.Actor, id string, comment *string) (*models.RequestDetail, error) {
	if _, err := s.loadRequest(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateComment(ctx, id, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update comment")
	}
	s.recordChange(ctx, actor, models.AuditActionRequestUpdate, id, map[string]interface{}{"comment": comment})
	return s.Get(ctx, id)
}

// Delete is the terminal staff action: it removes the request and detaches
// the student's progress for that course.
func (s *RequestService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if _, err := s.loadRequest(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}
	s.discardRequestDrafts(ctx, id)
	s.recordChange(ctx, actor, models.AuditActionRequestDelete, id, nil)
	return nil
}

// ListCoursesByStudent returns the courses a student is approved for.
func (s *RequestService) ListCoursesByStudent(ctx context.Context, studentID string) ([]models.CourseSummary, error) {
	courses, err := s.repo.ListCoursesByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student courses")
	}
	return courses, nil
}

// StageDraft merges proposed field changes into the actor's draft for one
// request. Nothing is applied until CommitDraft.
func (s *RequestService) StageDraft(ctx context.Context, actor models.Actor, requestID string, req StageDraftRequest) (*models.RequestDraft, error) {
	if req.Status == nil && req.GroupID == nil && !req.RemoveGroup && req.Comment == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "draft stages no changes")
	}
	if req.GroupID != nil && req.RemoveGroup {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot both assign and remove a group")
	}
	request, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status.Terminal() {
		s.discardRequestDrafts(ctx, requestID)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already reached a terminal state")
	}
	if req.Status != nil {
		if err := s.catalog.ValidateRequestStatus(ctx, *req.Status); err != nil {
			return nil, err
		}
	}

	draft, err := s.drafts.Find(ctx, actor.ID, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft")
	}
	if draft == nil {
		draft = &models.RequestDraft{RequestID: requestID}
	}
	if req.Status != nil {
		staged := models.RequestStatus(*req.Status)
		draft.Status = &staged
	}
	if req.GroupID != nil {
		draft.GroupID = req.GroupID
		draft.RemoveGroup = false
	}
	if req.RemoveGroup {
		draft.RemoveGroup = true
		draft.GroupID = nil
	}
	if req.Comment != nil {
		draft.Comment = req.Comment
	}
	draft.StagedAt = time.Now().UTC()

	if err := s.drafts.Save(ctx, actor.ID, *draft); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save draft")
	}
	return draft, nil
}

// Drafts lists everything the actor has staged.
func (s *RequestService) Drafts(ctx context.Context, actor models.Actor) ([]models.RequestDraft, error) {
	drafts, err := s.drafts.ListByActor(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list drafts")
	}
	return drafts, nil
}

// DiscardDraft drops the actor's staged changes for one request.
func (s *RequestService) DiscardDraft(ctx context.Context, actor models.Actor, requestID string) error {
	if err := s.drafts.Delete(ctx, actor.ID, requestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard draft")
	}
	return nil
}

// CommitDraft validates all staged fields together and applies them as one
// atomic operation. The draft is discarded on success, and also when the
// underlying request was deleted or reached a terminal state in the
// meantime; validation failures keep the draft so the caller can correct it.
func (s *RequestService) CommitDraft(ctx context.Context, actor models.Actor, requestID string) (*models.RequestDetail, error) {
	draft, err := s.drafts.Find(ctx, actor.ID, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load draft")
	}
	if draft == nil || draft.Empty() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no draft staged for this request")
	}

	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.discardRequestDrafts(ctx, requestID)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request was deleted; draft discarded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Status.Terminal() && (draft.Status != nil || draft.GroupID != nil || draft.RemoveGroup) {
		s.discardRequestDrafts(ctx, requestID)
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request reached a terminal state; staged changes discarded")
	}

	edit := repository.RequestEdit{Comment: draft.Comment, RemoveGroup: draft.RemoveGroup}
	effectiveStatus := request.Status
	if draft.Status != nil {
		if !canTransition(request.Status, *draft.Status) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot change status from %s to %s", request.Status, *draft.Status))
		}
		effectiveStatus = *draft.Status
		edit.Status = draft.Status
		edit.ProcessedAt, edit.ProcessedBy = processingStamp(request.Status, actor)
	}
	if draft.GroupID != nil {
		// The two fields are staged independently but validated together:
		// a staged group only commits alongside an assignable status.
		if !groupAssignable(effectiveStatus) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "group assignment requires the request to be under review or approved")
		}
		group, err := s.groups.FindByID(ctx, *draft.GroupID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
		}
		if group.CourseID != request.CourseID {
			return nil, appErrors.Clone(appErrors.ErrGroupCourseMismatch, "group belongs to a different course")
		}
		edit.GroupID = draft.GroupID
	}

	if err := s.repo.ApplyEdit(ctx, requestID, edit); err != nil {
		if errors.Is(err, repository.ErrCapacityExceeded) {
			return nil, appErrors.Clone(appErrors.ErrGroupFull, "group has no remaining capacity")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit draft")
	}

	if err := s.drafts.Delete(ctx, actor.ID, requestID); err != nil {
		s.logger.Warn("failed to drop committed draft", zap.String("request_id", requestID), zap.Error(err))
	}
	if effectiveStatus.Terminal() {
		s.discardRequestDrafts(ctx, requestID)
	}
	s.recordChange(ctx, actor, models.AuditActionRequestUpdate, requestID, map[string]interface{}{"draft": draft})
	return s.Get(ctx, requestID)
}

func (s *RequestService) loadRequest(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	request, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) discardRequestDrafts(ctx context.Context, requestID string) {
	if err := s.drafts.DeleteForRequest(ctx, requestID); err != nil {
		s.logger.Warn("failed to discard request drafts", zap.String("request_id", requestID), zap.Error(err))
	}
}

func (s *RequestService) recordChange(ctx context.Context, actor models.Actor, action, requestID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var values []byte
	if payload != nil {
		values, _ = json.Marshal(payload)
	}
	actorID := actor.ID
	s.audit.Record(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "enrollment_request",
		ResourceID: &requestID,
		NewValues:  values,
	})
}

// processingStamp returns the processed-at/by fields for a transition out of
// a pre-decision state, nil otherwise.
func processingStamp(from models.RequestStatus, actor models.Actor) (*time.Time, *string) {
	if from != models.RequestStatusSubmitted && from != models.RequestStatusUnderReview {
		return nil, nil
	}
	now := time.Now().UTC()
	actorID := actor.ID
	return &now, &actorID
}
