package service

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/lms-api/internal/models"
	"github.com/campusflow/lms-api/internal/repository"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
)

type mockRequestRepo struct {
	requests     map[string]models.EnrollmentRequest
	existsOpen   bool
	capacityFull bool
	applied      []repository.RequestEdit
	deleted      []string
}

func (m *mockRequestRepo) List(ctx context.Context, filter models.RequestFilter) ([]models.RequestDetail, int, error) {
	var list []models.RequestDetail
	for _, r := range m.requests {
		list = append(list, models.RequestDetail{EnrollmentRequest: r})
	}
	return list, len(list), nil
}

func (m *mockRequestRepo) FindByID(ctx context.Context, id string) (*models.EnrollmentRequest, error) {
	if r, ok := m.requests[id]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRequestRepo) FindDetailByID(ctx context.Context, id string) (*models.RequestDetail, error) {
	if r, ok := m.requests[id]; ok {
		return &models.RequestDetail{EnrollmentRequest: r}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRequestRepo) ExistsOpen(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.existsOpen, nil
}

func (m *mockRequestRepo) Create(ctx context.Context, request *models.EnrollmentRequest) error {
	if m.requests == nil {
		m.requests = make(map[string]models.EnrollmentRequest)
	}
	if request.ID == "" {
		request.ID = fmt.Sprintf("req-%d", len(m.requests)+1)
	}
	m.requests[request.ID] = *request
	return nil
}

func (m *mockRequestRepo) UpdateStatus(ctx context.Context, id string, status models.RequestStatus, processedAt *time.Time, processedBy *string) error {
	r := m.requests[id]
	r.Status = status
	if processedAt != nil {
		r.ProcessedAt = processedAt
		r.ProcessedBy = processedBy
	}
	m.requests[id] = r
	return nil
}

func (m *mockRequestRepo) UpdateComment(ctx context.Context, id string, comment *string) error {
	r := m.requests[id]
	r.Comment = comment
	m.requests[id] = r
	return nil
}

func (m *mockRequestRepo) ApplyEdit(ctx context.Context, id string, edit repository.RequestEdit) error {
	if edit.GroupID != nil && m.capacityFull {
		return repository.ErrCapacityExceeded
	}
	r, ok := m.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	if edit.Status != nil {
		r.Status = *edit.Status
		r.ProcessedAt = edit.ProcessedAt
		r.ProcessedBy = edit.ProcessedBy
	}
	if edit.GroupID != nil {
		r.GroupID = edit.GroupID
	}
	if edit.RemoveGroup {
		r.GroupID = nil
	}
	if edit.Comment != nil {
		r.Comment = edit.Comment
	}
	m.requests[id] = r
	m.applied = append(m.applied, edit)
	return nil
}

func (m *mockRequestRepo) Delete(ctx context.Context, id string) error {
	delete(m.requests, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRequestRepo) ListCoursesByStudent(ctx context.Context, studentID string) ([]models.CourseSummary, error) {
	return []models.CourseSummary{{ID: "c1", Name: "Go Fundamentals"}}, nil
}

type mockCourseReader struct {
	courses map[string]models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

type mockGroupReader struct {
	groups map[string]models.Group
}

func (m *mockGroupReader) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if g, ok := m.groups[id]; ok {
		return &g, nil
	}
	return nil, sql.ErrNoRows
}

type mockAllocator struct {
	assigned []string
	removed  []string
	fail     error
}

func (m *mockAllocator) TryAssign(ctx context.Context, requestID, groupID string) (*models.EnrollmentRequest, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	m.assigned = append(m.assigned, requestID+":"+groupID)
	return &models.EnrollmentRequest{ID: requestID, GroupID: &groupID}, nil
}

func (m *mockAllocator) RemoveFromGroup(ctx context.Context, requestID string) error {
	m.removed = append(m.removed, requestID)
	return nil
}

type memDraftStore struct {
	drafts map[string]models.RequestDraft
}

func draftKey(actorID, requestID string) string { return actorID + "|" + requestID }

func (m *memDraftStore) Save(ctx context.Context, actorID string, draft models.RequestDraft) error {
	if m.drafts == nil {
		m.drafts = make(map[string]models.RequestDraft)
	}
	m.drafts[draftKey(actorID, draft.RequestID)] = draft
	return nil
}

func (m *memDraftStore) Find(ctx context.Context, actorID, requestID string) (*models.RequestDraft, error) {
	if d, ok := m.drafts[draftKey(actorID, requestID)]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *memDraftStore) ListByActor(ctx context.Context, actorID string) ([]models.RequestDraft, error) {
	var list []models.RequestDraft
	for key, d := range m.drafts {
		if strings.HasPrefix(key, actorID+"|") {
			list = append(list, d)
		}
	}
	return list, nil
}

func (m *memDraftStore) Delete(ctx context.Context, actorID, requestID string) error {
	delete(m.drafts, draftKey(actorID, requestID))
	return nil
}

func (m *memDraftStore) DeleteForRequest(ctx context.Context, requestID string) error {
	for key := range m.drafts {
		if strings.HasSuffix(key, "|"+requestID) {
			delete(m.drafts, key)
		}
	}
	return nil
}

type mockStatusCatalog struct{}

func (m *mockStatusCatalog) ValidateRequestStatus(ctx context.Context, name string) error {
	switch models.RequestStatus(name) {
	case models.RequestStatusSubmitted, models.RequestStatusUnderReview, models.RequestStatusApproved,
		models.RequestStatusRejected, models.RequestStatusWithdrawn:
		return nil
	}
	return appErrors.Clone(appErrors.ErrValidation, "unknown request status")
}

func (m *mockStatusCatalog) ValidateLearningStatus(ctx context.Context, name string) error {
	switch models.LearningStatus(name) {
	case models.LearningStatusInProgress, models.LearningStatusCompleted, models.LearningStatusExpelled:
		return nil
	}
	return appErrors.Clone(appErrors.ErrValidation, "unknown learning status")
}

type captureAudit struct {
	logs []*models.AuditLog
}

func (c *captureAudit) Record(ctx context.Context, log *models.AuditLog) {
	c.logs = append(c.logs, log)
}

func newRequestService(repo *mockRequestRepo, drafts *memDraftStore, allocator *mockAllocator, groups map[string]models.Group) *RequestService {
	courses := &mockCourseReader{courses: map[string]models.Course{"c1": {ID: "c1", Name: "Go Fundamentals"}}}
	if allocator == nil {
		allocator = &mockAllocator{}
	}
	if drafts == nil {
		drafts = &memDraftStore{}
	}
	return NewRequestService(repo, courses, &mockGroupReader{groups: groups}, allocator, drafts, &mockStatusCatalog{}, &captureAudit{}, nil, nil)
}

var staff = models.Actor{ID: "admin-1", Role: models.RoleAdmin}

func TestRequestServiceCreate(t *testing.T) {
	repo := &mockRequestRepo{}
	svc := newRequestService(repo, nil, nil, nil)

	detail, err := svc.Create(context.Background(), models.Actor{ID: "s1", Role: models.RoleStudent}, CreateRequestRequest{CourseID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusSubmitted, detail.Status)
	assert.Equal(t, "s1", detail.StudentID)
}

func TestRequestServiceCreateDuplicate(t *testing.T) {
	repo := &mockRequestRepo{existsOpen: true}
	svc := newRequestService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), models.Actor{ID: "s1", Role: models.RoleStudent}, CreateRequestRequest{CourseID: "c1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateRequest.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCreateForOtherStudent(t *testing.T) {
	repo := &mockRequestRepo{}
	svc := newRequestService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), models.Actor{ID: "s1", Role: models.RoleStudent}, CreateRequestRequest{CourseID: "c1", StudentID: "s2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceSetStatusStampsProcessing(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusSubmitted},
	}}
	svc := newRequestService(repo, nil, nil, nil)

	detail, err := svc.SetStatus(context.Background(), staff, "r1", string(models.RequestStatusApproved))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, detail.Status)
	require.NotNil(t, detail.ProcessedAt)
	require.NotNil(t, detail.ProcessedBy)
	assert.Equal(t, "admin-1", *detail.ProcessedBy)
}

func TestRequestServiceSetStatusFromTerminal(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusRejected},
	}}
	svc := newRequestService(repo, nil, nil, nil)

	_, err := svc.SetStatus(context.Background(), staff, "r1", string(models.RequestStatusApproved))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceSetStatusUnknownName(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusSubmitted},
	}}
	svc := newRequestService(repo, nil, nil, nil)

	_, err := svc.SetStatus(context.Background(), staff, "r1", "ON_HOLD")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

// TestRequestServiceTransitionSequences feeds the lifecycle random status
// sequences and checks every accepted transition against the reference
// graph, including that terminal states absorb.
func TestRequestServiceTransitionSequences(t *testing.T) {
	statuses := []models.RequestStatus{
		models.RequestStatusSubmitted,
		models.RequestStatusUnderReview,
		models.RequestStatusApproved,
		models.RequestStatusRejected,
		models.RequestStatusWithdrawn,
	}
	allowed := map[models.RequestStatus]map[models.RequestStatus]bool{
		models.RequestStatusSubmitted:   {models.RequestStatusUnderReview: true, models.RequestStatusApproved: true, models.RequestStatusRejected: true, models.RequestStatusWithdrawn: true},
		models.RequestStatusUnderReview: {models.RequestStatusApproved: true, models.RequestStatusRejected: true, models.RequestStatusWithdrawn: true},
		models.RequestStatusApproved:    {models.RequestStatusWithdrawn: true},
		models.RequestStatusRejected:    {},
		models.RequestStatusWithdrawn:   {},
	}

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 50; run++ {
		repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
			"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusSubmitted},
		}}
		svc := newRequestService(repo, nil, nil, nil)
		current := models.RequestStatusSubmitted

		for step := 0; step < 10; step++ {
			target := statuses[rng.Intn(len(statuses))]
			_, err := svc.SetStatus(context.Background(), staff, "r1", string(target))
			if allowed[current][target] {
				require.NoError(t, err, "run %d step %d: %s -> %s", run, step, current, target)
				current = target
			} else {
				require.Error(t, err, "run %d step %d: %s -> %s", run, step, current, target)
				assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
			}
			assert.Equal(t, current, repo.requests["r1"].Status)
		}
	}
}

func TestRequestServiceWithdrawByStranger(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusApproved},
	}}
	svc := newRequestService(repo, nil, nil, nil)

	_, err := svc.Withdraw(context.Background(), models.Actor{ID: "s2", Role: models.RoleStudent}, "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	detail, err := svc.Withdraw(context.Background(), models.Actor{ID: "s1", Role: models.RoleStudent}, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusWithdrawn, detail.Status)
}

func TestRequestServiceAssignGroupRequiresReviewOrApproval(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusSubmitted},
	}}
	allocator := &mockAllocator{}
	svc := newRequestService(repo, nil, allocator, nil)

	_, err := svc.AssignGroup(context.Background(), staff, "r1", "g1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, allocator.assigned)
}

func TestRequestServiceAssignGroupUnderReview(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusUnderReview},
	}}
	allocator := &mockAllocator{}
	svc := newRequestService(repo, nil, allocator, nil)

	_, err := svc.AssignGroup(context.Background(), staff, "r1", "g1")
	require.NoError(t, err)
	assert.Contains(t, allocator.assigned, "r1:g1")
}

func TestRequestServiceStageDraftMerges(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusSubmitted},
	}}
	drafts := &memDraftStore{}
	svc := newRequestService(repo, drafts, nil, nil)

	status := string(models.RequestStatusApproved)
	draft, err := svc.StageDraft(context.Background(), staff, "r1", StageDraftRequest{Status: &status})
	require.NoError(t, err)
	require.NotNil(t, draft.Status)

	comment := "looks good"
	draft, err = svc.StageDraft(context.Background(), staff, "r1", StageDraftRequest{Comment: &comment})
	require.NoError(t, err)
	require.NotNil(t, draft.Status, "earlier staged status survives the merge")
	require.NotNil(t, draft.Comment)
	assert.Equal(t, "looks good", *draft.Comment)
}

func TestRequestServiceStageDraftRejectsNoChanges(t *testing.T) {
	svc := newRequestService(&mockRequestRepo{}, nil, nil, nil)

	_, err := svc.StageDraft(context.Background(), staff, "r1", StageDraftRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceStageDraftRejectsAssignAndRemove(t *testing.T) {
	svc := newRequestService(&mockRequestRepo{}, nil, nil, nil)

	group := "g1"
	_, err := svc.StageDraft(context.Background(), staff, "r1", StageDraftRequest{GroupID: &group, RemoveGroup: true})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceStageDraftTerminalDiscards(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusWithdrawn},
	}}
	drafts := &memDraftStore{drafts: map[string]models.RequestDraft{
		draftKey("admin-1", "r1"): {RequestID: "r1", RemoveGroup: true},
	}}
	svc := newRequestService(repo, drafts, nil, nil)

	comment := "too late"
	_, err := svc.StageDraft(context.Background(), staff, "r1", StageDraftRequest{Comment: &comment})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, drafts.drafts)
}

func TestRequestServiceCommitDraftNothingStaged(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusSubmitted},
	}}
	svc := newRequestService(repo, nil, nil, nil)

	_, err := svc.CommitDraft(context.Background(), staff, "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestRequestServiceCommitDraftRequestDeleted(t *testing.T) {
	drafts := &memDraftStore{drafts: map[string]models.RequestDraft{
		draftKey("admin-1", "gone"): {RequestID: "gone", RemoveGroup: true},
	}}
	svc := newRequestService(&mockRequestRepo{}, drafts, nil, nil)

	_, err := svc.CommitDraft(context.Background(), staff, "gone")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, drafts.drafts, "stale draft is discarded")
}

func TestRequestServiceCommitDraftTerminalRace(t *testing.T) {
	status := models.RequestStatusApproved
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusWithdrawn},
	}}
	drafts := &memDraftStore{drafts: map[string]models.RequestDraft{
		draftKey("admin-1", "r1"): {RequestID: "r1", Status: &status},
	}}
	svc := newRequestService(repo, drafts, nil, nil)

	_, err := svc.CommitDraft(context.Background(), staff, "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.Empty(t, drafts.drafts)
}

func TestRequestServiceCommitDraftCourseMismatchKeepsDraft(t *testing.T) {
	group := "g2"
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusUnderReview},
	}}
	drafts := &memDraftStore{drafts: map[string]models.RequestDraft{
		draftKey("admin-1", "r1"): {RequestID: "r1", GroupID: &group},
	}}
	groups := map[string]models.Group{"g2": {ID: "g2", CourseID: "other-course", Capacity: 10}}
	svc := newRequestService(repo, drafts, nil, groups)

	_, err := svc.CommitDraft(context.Background(), staff, "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGroupCourseMismatch.Code, appErrors.FromError(err).Code)
	assert.Len(t, drafts.drafts, 1, "validation failure keeps the draft for correction")
}

func TestRequestServiceCommitDraftGroupFullKeepsDraft(t *testing.T) {
	group := "g1"
	repo := &mockRequestRepo{
		requests: map[string]models.EnrollmentRequest{
			"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusUnderReview},
		},
		capacityFull: true,
	}
	drafts := &memDraftStore{drafts: map[string]models.RequestDraft{
		draftKey("admin-1", "r1"): {RequestID: "r1", GroupID: &group},
	}}
	groups := map[string]models.Group{"g1": {ID: "g1", CourseID: "c1", Capacity: 1}}
	svc := newRequestService(repo, drafts, nil, groups)

	_, err := svc.CommitDraft(context.Background(), staff, "r1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrGroupFull.Code, appErrors.FromError(err).Code)
	assert.Len(t, drafts.drafts, 1)
}

func TestRequestServiceCommitDraftAppliesAtomically(t *testing.T) {
	status := string(models.RequestStatusApproved)
	group := "g1"
	comment := "welcome"
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusUnderReview},
	}}
	drafts := &memDraftStore{}
	groups := map[string]models.Group{"g1": {ID: "g1", CourseID: "c1", Capacity: 10}}
	svc := newRequestService(repo, drafts, nil, groups)

	_, err := svc.StageDraft(context.Background(), staff, "r1", StageDraftRequest{Status: &status, GroupID: &group, Comment: &comment})
	require.NoError(t, err)

	detail, err := svc.CommitDraft(context.Background(), staff, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, detail.Status)
	require.NotNil(t, detail.GroupID)
	assert.Equal(t, "g1", *detail.GroupID)
	require.NotNil(t, detail.Comment)
	assert.Equal(t, "welcome", *detail.Comment)
	require.NotNil(t, detail.ProcessedAt)
	assert.Len(t, repo.applied, 1, "all staged fields land in one edit")
	assert.Empty(t, drafts.drafts, "committed draft is dropped")
}

func TestRequestServiceDeleteDiscardsDrafts(t *testing.T) {
	repo := &mockRequestRepo{requests: map[string]models.EnrollmentRequest{
		"r1": {ID: "r1", StudentID: "s1", CourseID: "c1", Status: models.RequestStatusSubmitted},
	}}
	drafts := &memDraftStore{drafts: map[string]models.RequestDraft{
		draftKey("admin-1", "r1"):   {RequestID: "r1", RemoveGroup: true},
		draftKey("teacher-2", "r1"): {RequestID: "r1", RemoveGroup: true},
	}}
	svc := newRequestService(repo, drafts, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), staff, "r1"))
	assert.Contains(t, repo.deleted, "r1")
	assert.Empty(t, drafts.drafts, "every actor's draft for the request is dropped")
}
