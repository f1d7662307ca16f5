package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/export"
)

type groupProgressReader interface {
	ListByGroup(ctx context.Context, groupID string) ([]models.StudentProgressRow, error)
}

type groupUsageReader interface {
	FindUsageByID(ctx context.Context, id string) (*models.GroupUsage, error)
}

// GroupProgressReport is the roster of one group with per-student progress.
type GroupProgressReport struct {
	Group    models.GroupUsage           `json:"group"`
	Students []models.StudentProgressRow `json:"students"`
}

// ReportService builds group progress reports for the course-management
// screen and renders them as CSV or PDF.
type ReportService struct {
	progress groupProgressReader
	groups   groupUsageReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(progress groupProgressReader, groups groupUsageReader, csv *export.CSVExporter, pdf *export.PDFExporter, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{progress: progress, groups: groups, csv: csv, pdf: pdf, logger: logger}
}

// GroupProgress returns the roster with derived progress for one group.
func (s *ReportService) GroupProgress(ctx context.Context, groupID string) (*GroupProgressReport, error) {
	usage, err := s.groups.FindUsageByID(ctx, groupID)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
	}
	students, err := s.progress.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group progress")
	}
	return &GroupProgressReport{Group: *usage, Students: students}, nil
}

// ExportCSV renders the group progress report as CSV bytes.
func (s *ReportService) ExportCSV(ctx context.Context, groupID string) ([]byte, string, error) {
	report, err := s.GroupProgress(ctx, groupID)
	if err != nil {
		return nil, "", err
	}
	payload, err := s.csv.Render(reportDataset(report))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
	}
	return payload, reportFilename(report, "csv"), nil
}

// ExportPDF renders the group progress report as a tabular PDF.
func (s *ReportService) ExportPDF(ctx context.Context, groupID string) ([]byte, string, error) {
	report, err := s.GroupProgress(ctx, groupID)
	if err != nil {
		return nil, "", err
	}
	title := fmt.Sprintf("Group progress - %s", report.Group.Name)
	payload, err := s.pdf.Render(reportDataset(report), title)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
	}
	return payload, reportFilename(report, "pdf"), nil
}

func reportDataset(report *GroupProgressReport) export.Dataset {
	headers := []string{"Student", "Percent", "Learning status", "Graduated"}
	rows := make([]map[string]string, 0, len(report.Students))
	for _, student := range report.Students {
		graduated := ""
		if student.GraduationDate != nil {
			graduated = student.GraduationDate.Format("2006-01-02")
		}
		rows = append(rows, map[string]string{
			"Student":         student.StudentName,
			"Percent":         strconv.Itoa(student.Percent),
			"Learning status": string(student.LearningStatus),
			"Graduated":       graduated,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func reportFilename(report *GroupProgressReport, ext string) string {
	return fmt.Sprintf("group-progress-%s.%s", report.Group.ID, ext)
}
