package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/lms-api/internal/middleware"
	"github.com/campusflow/lms-api/internal/service"
	"github.com/campusflow/lms-api/pkg/response"
)

// CatalogHandler exposes the status reference data.
type CatalogHandler struct {
	catalog *service.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Catalog godoc
// @Summary Ordered request and learning status lists
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog/statuses [get]
func (h *CatalogHandler) Catalog(c *gin.Context) {
	catalog, hit, err := h.catalog.CatalogWithSource(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, catalog, nil, middleware.ExtractMeta(c))
}

// Invalidate godoc
// @Summary Drop the cached status catalog
// @Tags Catalog
// @Success 204 "invalidated"
// @Router /catalog/statuses/cache [delete]
func (h *CatalogHandler) Invalidate(c *gin.Context) {
	if err := h.catalog.Invalidate(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
