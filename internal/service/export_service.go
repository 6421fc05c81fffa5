package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/pkg/export"
	"github.com/noah-isme/classtrack-api/pkg/storage"
)

type exportReportReader interface {
	GetByID(ctx context.Context, id string) (*models.UsageReport, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders completed usage reports to CSV or PDF and persists
// the files with signed download URLs.
type ExportService struct {
	reports exportReportReader
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(reports exportReportReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		reports: reports,
		storage: files,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the report referenced by the job and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	report, err := s.reports.GetByID(ctx, job.ReportID)
	if err != nil {
		return nil, fmt.Errorf("load report for export: %w", err)
	}
	dataset, title := buildReportDataset(report)

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("usage_%s_%s_%s.%s",
		strings.ToLower(string(report.Kind)),
		report.PeriodStart.Format("20060102"),
		time.Now().UTC().Format("150405"),
		job.Format,
	)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/download?token=%s", prefix, token),
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to the configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// buildReportDataset flattens a report into one summary row followed by one
// row per classroom slice.
func buildReportDataset(report *models.UsageReport) (export.Dataset, string) {
	headers := []string{"Scope", "Classroom", "Total", "Verified", "Pending", "Rejected", "Verification Rate"}
	rows := []map[string]string{{
		"Scope":             "ALL",
		"Classroom":         "",
		"Total":             fmt.Sprintf("%d", report.Statistics.Total),
		"Verified":          fmt.Sprintf("%d", report.Statistics.Verified),
		"Pending":           fmt.Sprintf("%d", report.Statistics.Pending),
		"Rejected":          fmt.Sprintf("%d", report.Statistics.Rejected),
		"Verification Rate": fmt.Sprintf("%d%%", report.Statistics.VerificationRate),
	}}
	for _, slice := range report.Breakdown {
		rows = append(rows, map[string]string{
			"Scope":             "CLASSROOM",
			"Classroom":         slice.ClassroomID,
			"Total":             fmt.Sprintf("%d", slice.Total),
			"Verified":          fmt.Sprintf("%d", slice.Verified),
			"Pending":           fmt.Sprintf("%d", slice.Pending),
			"Rejected":          fmt.Sprintf("%d", slice.Rejected),
			"Verification Rate": "",
		})
	}
	title := fmt.Sprintf("%s usage report %s - %s",
		string(report.Kind),
		report.PeriodStart.Format("2006-01-02"),
		report.PeriodEnd.Format("2006-01-02"),
	)
	return export.Dataset{Headers: headers, Rows: rows}, title
}
