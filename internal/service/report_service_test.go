package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/lms-api/internal/models"
	appErrors "github.com/campusflow/lms-api/pkg/errors"
	"github.com/campusflow/lms-api/pkg/export"
)

type fakeRosterReader struct {
	rows []models.StudentProgressRow
}

func (f *fakeRosterReader) ListByGroup(ctx context.Context, groupID string) ([]models.StudentProgressRow, error) {
	return f.rows, nil
}

type fakeUsageReader struct {
	usage *models.GroupUsage
}

func (f *fakeUsageReader) FindUsageByID(ctx context.Context, id string) (*models.GroupUsage, error) {
	if f.usage == nil {
		return nil, sql.ErrNoRows
	}
	return f.usage, nil
}

func newReportService(rows []models.StudentProgressRow, usage *models.GroupUsage) *ReportService {
	return NewReportService(&fakeRosterReader{rows: rows}, &fakeUsageReader{usage: usage}, export.NewCSVExporter(), export.NewPDFExporter(), nil)
}

func testRoster() ([]models.StudentProgressRow, *models.GroupUsage) {
	graduated := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	rows := []models.StudentProgressRow{
		{StudentID: "s1", StudentName: "Ada Wong", Percent: 100, LearningStatus: models.LearningStatusCompleted, GraduationDate: &graduated},
		{StudentID: "s2", StudentName: "Ben Okri", Percent: 40, LearningStatus: models.LearningStatusInProgress},
	}
	usage := &models.GroupUsage{Group: models.Group{ID: "g1", CourseID: "c1", Name: "A-1", Capacity: 20}, ActiveCount: 2}
	return rows, usage
}

func TestReportServiceGroupProgress(t *testing.T) {
	rows, usage := testRoster()
	svc := newReportService(rows, usage)

	report, err := svc.GroupProgress(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "A-1", report.Group.Name)
	assert.Len(t, report.Students, 2)
}

func TestReportServiceGroupNotFound(t *testing.T) {
	svc := newReportService(nil, nil)

	_, err := svc.GroupProgress(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportServiceExportCSV(t *testing.T) {
	rows, usage := testRoster()
	svc := newReportService(rows, usage)

	payload, filename, err := svc.ExportCSV(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "group-progress-g1.csv", filename)

	content := string(payload)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Student")
	assert.Contains(t, content, "Ada Wong")
	assert.Contains(t, content, "2025-06-30")
	assert.Contains(t, content, "IN_PROGRESS")
}

func TestReportServiceExportPDF(t *testing.T) {
	rows, usage := testRoster()
	svc := newReportService(rows, usage)

	payload, filename, err := svc.ExportPDF(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, "group-progress-g1.pdf", filename)
	require.NotEmpty(t, payload)
	assert.Equal(t, "%PDF", string(payload[:4]))
}
