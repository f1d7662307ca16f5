package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/lms-api/internal/service"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/response"
)

type markStepRequest struct {
	StepIndex int `json:"step_index" binding:"required,gt=0"`
}

type setLearningStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ProgressHandler exposes per-student progress aggregates.
type ProgressHandler struct {
	progress *service.ProgressService
}

// NewProgressHandler constructs ProgressHandler.
func NewProgressHandler(progress *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progress: progress}
}

// Get godoc
// @Summary Progress of one student within a course
// @Tags Progress
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/courses/{courseId}/progress [get]
func (h *ProgressHandler) Get(c *gin.Context) {
	record, err := h.progress.GetProgress(c.Request.Context(), c.Param("studentId"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// MarkStep godoc
// @Summary Mark a course material step completed
// @Tags Progress
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Param payload body markStepRequest true "Step payload"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/courses/{courseId}/progress/steps [post]
func (h *ProgressHandler) MarkStep(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req markStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.progress.MarkStepCompleted(c.Request.Context(), actor, c.Param("studentId"), c.Param("courseId"), req.StepIndex)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// SetLearningStatus godoc
// @Summary Override the learning status of a progress record
// @Tags Progress
// @Accept json
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Param payload body setLearningStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/courses/{courseId}/progress/status [put]
func (h *ProgressHandler) SetLearningStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req setLearningStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.progress.SetLearningStatus(c.Request.Context(), actor, c.Param("studentId"), c.Param("courseId"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
