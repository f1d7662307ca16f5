package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/lms-api/internal/service"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/response"
)

// MaterialHandler exposes the course content sequence.
type MaterialHandler struct {
	materials *service.MaterialService
}

// NewMaterialHandler constructs MaterialHandler.
func NewMaterialHandler(materials *service.MaterialService) *MaterialHandler {
	return &MaterialHandler{materials: materials}
}

// ListByCourse godoc
// @Summary Materials of a course in step order
// @Tags Materials
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/materials [get]
func (h *MaterialHandler) ListByCourse(c *gin.Context) {
	materials, err := h.materials.ListByCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, materials, nil)
}

// Get godoc
// @Summary Get one material
// @Tags Materials
// @Produce json
// @Param id path string true "Material ID"
// @Success 200 {object} response.Envelope
// @Router /materials/{id} [get]
func (h *MaterialHandler) Get(c *gin.Context) {
	material, err := h.materials.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, material, nil)
}

// Create godoc
// @Summary Append a material to the course sequence
// @Tags Materials
// @Accept json
// @Produce json
// @Param payload body service.CreateMaterialRequest true "Material payload"
// @Success 201 {object} response.Envelope
// @Router /materials [post]
func (h *MaterialHandler) Create(c *gin.Context) {
	var req service.CreateMaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	material, err := h.materials.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}
