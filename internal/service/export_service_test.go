package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/pkg/storage"
)

type exportReportReaderStub struct {
	report *models.UsageReport
}

func (s *exportReportReaderStub) GetByID(ctx context.Context, id string) (*models.UsageReport, error) {
	return s.report, nil
}

func completedDailyReport() *models.UsageReport {
	return &models.UsageReport{
		ID:          "report-1",
		Kind:        models.ReportKindDaily,
		PeriodStart: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2023, 1, 10, 23, 59, 59, 0, time.UTC),
		Status:      models.UsageReportCompleted,
		Statistics: models.UsageStatistics{
			Total:            10,
			Verified:         6,
			Pending:          3,
			Rejected:         1,
			VerificationRate: 60,
		},
		Breakdown: models.ClassroomBreakdown{
			{ClassroomID: "room-a", Total: 7, Verified: 5, Pending: 2},
			{ClassroomID: "room-b", Total: 3, Verified: 1, Pending: 1, Rejected: 1},
		},
	}
}

func newTestExportService(t *testing.T) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(
		&exportReportReaderStub{report: completedDailyReport()},
		files,
		signer,
		ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour},
		nil,
	)
}

func TestExportGenerateCSV(t *testing.T) {
	svc := newTestExportService(t)
	job := &models.ExportJob{ID: "job-1", ReportID: "report-1", Format: models.ExportFormatCSV}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ExportFormatCSV, result.Format)
	require.Contains(t, result.URL, "/api/v1/exports/download?token=")
	require.True(t, result.ExpiresAt.After(time.Now()))

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	payload, err := io.ReadAll(file)
	require.NoError(t, err)
	body := string(payload)
	require.True(t, strings.HasPrefix(body, "Scope,Classroom,Total,Verified,Pending,Rejected,Verification Rate"))
	require.Contains(t, body, "ALL,,10,6,3,1,60%")
	require.Contains(t, body, "CLASSROOM,room-a,7,5,2,0,")
}

func TestExportGeneratePDF(t *testing.T) {
	svc := newTestExportService(t)
	job := &models.ExportJob{ID: "job-2", ReportID: "report-1", Format: models.ExportFormatPDF}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))

	file, err := svc.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()
	header := make([]byte, 5)
	_, err = io.ReadFull(file, header)
	require.NoError(t, err)
	require.Equal(t, "%PDF-", string(header))
}

func TestExportGenerateRejectsUnknownFormat(t *testing.T) {
	svc := newTestExportService(t)
	job := &models.ExportJob{ID: "job-3", ReportID: "report-1", Format: models.ExportFormat("xlsx")}

	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
}

func TestExportTokenRoundTrip(t *testing.T) {
	svc := newTestExportService(t)
	job := &models.ExportJob{ID: "job-4", ReportID: "report-1", Format: models.ExportFormatCSV}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)

	jobID, relPath, expiresAt, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	require.Equal(t, "job-4", jobID)
	require.Equal(t, result.RelativePath, relPath)
	require.WithinDuration(t, result.ExpiresAt, expiresAt, time.Second)

	_, _, _, err = svc.ParseToken(result.Token+"zz", false)
	require.Error(t, err)
}
