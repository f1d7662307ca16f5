package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/lms-api/internal/service"
	"github.com/campusflow/lms-api/pkg/response"
)

// ReportHandler serves group progress reports in JSON, CSV and PDF form.
type ReportHandler struct {
	reports *service.ReportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// GroupProgress godoc
// @Summary Progress report for a study group
// @Tags Reports
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /reports/groups/{id}/progress [get]
func (h *ReportHandler) GroupProgress(c *gin.Context) {
	report, err := h.reports.GroupProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ExportCSV godoc
// @Summary Export a group progress report as CSV
// @Tags Reports
// @Produce text/csv
// @Param id path string true "Group ID"
// @Success 200 {file} binary
// @Router /reports/groups/{id}/progress.csv [get]
func (h *ReportHandler) ExportCSV(c *gin.Context) {
	data, filename, err := h.reports.ExportCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// ExportPDF godoc
// @Summary Export a group progress report as PDF
// @Tags Reports
// @Produce application/pdf
// @Param id path string true "Group ID"
// @Success 200 {file} binary
// @Router /reports/groups/{id}/progress.pdf [get]
func (h *ReportHandler) ExportPDF(c *gin.Context) {
	data, filename, err := h.reports.ExportPDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
