package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/lms-api/internal/service"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/response"
)

// SolutionHandler exposes the submission and grading pipeline.
type SolutionHandler struct {
	grading *service.GradingService
}

// NewSolutionHandler constructs SolutionHandler.
func NewSolutionHandler(grading *service.GradingService) *SolutionHandler {
	return &SolutionHandler{grading: grading}
}

// Submit godoc
// @Summary Submit a solution for an assignment
// @Tags Solutions
// @Accept json
// @Produce json
// @Param payload body service.SubmitSolutionRequest true "Solution payload"
// @Success 201 {object} response.Envelope
// @Router /solutions [post]
func (h *SolutionHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.SubmitSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	solution, err := h.grading.SubmitSolution(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, solution)
}

// Grade godoc
// @Summary Score a submitted solution
// @Tags Solutions
// @Accept json
// @Produce json
// @Param id path string true "Solution ID"
// @Param payload body service.GradeSolutionRequest true "Score payload"
// @Success 200 {object} response.Envelope
// @Router /solutions/{id}/grade [put]
func (h *SolutionHandler) Grade(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req service.GradeSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	solution, err := h.grading.GradeSolution(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, solution, nil)
}

// ListByAssignment godoc
// @Summary Solutions submitted for an assignment
// @Tags Solutions
// @Produce json
// @Param id path string true "Assignment ID"
// @Success 200 {object} response.Envelope
// @Router /assignments/{id}/solutions [get]
func (h *SolutionHandler) ListByAssignment(c *gin.Context) {
	solutions, err := h.grading.ListByAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, solutions, nil)
}

// ListByStudentAndCourse godoc
// @Summary Solutions of one student within a course
// @Tags Solutions
// @Produce json
// @Param studentId path string true "Student ID"
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/courses/{courseId}/solutions [get]
func (h *SolutionHandler) ListByStudentAndCourse(c *gin.Context) {
	solutions, err := h.grading.ListByStudentAndCourse(c.Request.Context(), c.Param("studentId"), c.Param("courseId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, solutions, nil)
}
