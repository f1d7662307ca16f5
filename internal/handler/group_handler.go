package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/lms-api/internal/service"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/response"
)

// GroupHandler exposes group management for the course-management screen.
type GroupHandler struct {
	groups *service.GroupService
}

// NewGroupHandler constructs GroupHandler.
func NewGroupHandler(groups *service.GroupService) *GroupHandler {
	return &GroupHandler{groups: groups}
}

// ListByCourse godoc
// @Summary Groups of a course with derived occupancy
// @Tags Groups
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/groups [get]
func (h *GroupHandler) ListByCourse(c *gin.Context) {
	groups, err := h.groups.ListGroups(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// Capacity godoc
// @Summary Remaining capacity of a group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/capacity [get]
func (h *GroupHandler) Capacity(c *gin.Context) {
	remaining, err := h.groups.CapacityRemaining(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"remaining": remaining}, nil)
}

// Members godoc
// @Summary Active roster of a group
// @Tags Groups
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id}/members [get]
func (h *GroupHandler) Members(c *gin.Context) {
	members, err := h.groups.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, members, nil)
}

// Create godoc
// @Summary Create a group
// @Tags Groups
// @Accept json
// @Produce json
// @Param payload body service.CreateGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /groups [post]
func (h *GroupHandler) Create(c *gin.Context) {
	var req service.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// Delete godoc
// @Summary Delete a group, detaching bound requests
// @Tags Groups
// @Param id path string true "Group ID"
// @Success 204 "deleted"
// @Router /groups/{id} [delete]
func (h *GroupHandler) Delete(c *gin.Context) {
	if err := h.groups.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
