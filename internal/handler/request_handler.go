package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/lms-api/internal/models"
	"github.com/campusflow/lms-api/internal/service"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/response"
)

// RequestHandler exposes the enrollment request lifecycle to the admin and
// student screens.
type RequestHandler struct {
	requests *service.RequestService
}

// NewRequestHandler constructs RequestHandler.
func NewRequestHandler(requests *service.RequestService) *RequestHandler {
	return &RequestHandler{requests: requests}
}

func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

// List godoc
// @Summary List enrollment requests
// @Tags Requests
// @Produce json
// @Param courseId query string false "Filter by course"
// @Param studentId query string false "Filter by student"
// @Param groupId query string false "Filter by group"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	var filter models.RequestFilter
	filter.CourseID = c.Query("courseId")
	filter.StudentID = c.Query("studentId")
	filter.GroupID = c.Query("groupId")
	filter.Status = models.RequestStatus(c.Query("status"))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	requests, pagination, err := h.requests.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get one enrollment request
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Create godoc
// @Summary Apply to a course
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body service.CreateRequestRequest true "Application"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus godoc
// @Summary Apply a lifecycle transition
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body setStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/status [put]
func (h *RequestHandler) SetStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.SetStatus(c.Request.Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Withdraw godoc
// @Summary Withdraw an application
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/withdraw [post]
func (h *RequestHandler) Withdraw(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	request, err := h.requests.Withdraw(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

type assignGroupRequest struct {
	GroupID string `json:"group_id" binding:"required"`
}

// AssignGroup godoc
// @Summary Bind the request to a group
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body assignGroupRequest true "Group"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/group [put]
func (h *RequestHandler) AssignGroup(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req assignGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.AssignGroup(c.Request.Context(), actor, c.Param("id"), req.GroupID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// RemoveGroup godoc
// @Summary Clear the group binding
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/group [delete]
func (h *RequestHandler) RemoveGroup(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	request, err := h.requests.RemoveFromGroup(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

type setCommentRequest struct {
	Comment *string `json:"comment"`
}

// SetComment godoc
// @Summary Replace the staff annotation
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body setCommentRequest true "Comment"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/comment [put]
func (h *RequestHandler) SetComment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req setCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.SetComment(c.Request.Context(), actor, c.Param("id"), req.Comment)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Delete godoc
// @Summary Delete a request and detach its progress
// @Tags Requests
// @Param id path string true "Request ID"
// @Success 204 "deleted"
// @Router /requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.requests.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StageDraft godoc
// @Summary Stage proposed edits without applying them
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.StageDraftRequest true "Staged fields"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/draft [put]
func (h *RequestHandler) StageDraft(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.StageDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	draft, err := h.requests.StageDraft(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Drafts godoc
// @Summary List the caller's staged drafts
// @Tags Requests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /requests/drafts [get]
func (h *RequestHandler) Drafts(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	drafts, err := h.requests.Drafts(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drafts, nil)
}

// CommitDraft godoc
// @Summary Validate and atomically apply the staged edits
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/draft/commit [post]
func (h *RequestHandler) CommitDraft(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	request, err := h.requests.CommitDraft(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// DiscardDraft godoc
// @Summary Drop the staged edits
// @Tags Requests
// @Param id path string true "Request ID"
// @Success 204 "discarded"
// @Router /requests/{id}/draft [delete]
func (h *RequestHandler) DiscardDraft(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.requests.DiscardDraft(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentCourses godoc
// @Summary Courses the student is approved for
// @Tags Requests
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/courses [get]
func (h *RequestHandler) StudentCourses(c *gin.Context) {
	courses, err := h.requests.ListCoursesByStudent(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}
