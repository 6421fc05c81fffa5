package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/classtrack-api/internal/models"
)

const reportColumns = "id, kind, period_start, period_end, source_refs, statistics, breakdown, status, generated_by, created_at"

// ErrDuplicateReport is returned when a completed report already covers the
// exact period being created.
var ErrDuplicateReport = errors.New("report already exists for period")

// ReportRepository handles persistence for usage reports. Reports are
// append-only: there is no update path, matching their immutability once
// completed.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a report. The usage_reports table carries a unique index on
// (kind, period_start, period_end) for completed rows, so two racing passes
// cannot both persist a report for the same period; the loser sees
// ErrDuplicateReport.
func (r *ReportRepository) Create(ctx context.Context, report *models.UsageReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	if report.SourceRefs == nil {
		report.SourceRefs = pq.StringArray{}
	}
	query := `INSERT INTO usage_reports (id, kind, period_start, period_end, source_refs, statistics, breakdown, status, generated_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (kind, period_start, period_end) WHERE status = 'COMPLETED' DO NOTHING
RETURNING id`
	var insertedID string
	err := r.db.QueryRowxContext(ctx, query, report.ID, report.Kind, report.PeriodStart, report.PeriodEnd, report.SourceRefs, report.Statistics, report.Breakdown, report.Status, report.GeneratedBy, report.CreatedAt).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDuplicateReport
		}
		return fmt.Errorf("create usage report: %w", err)
	}
	return nil
}

// GetByID fetches a single report.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.UsageReport, error) {
	var report models.UsageReport
	query := fmt.Sprintf("SELECT %s FROM usage_reports WHERE id = $1", reportColumns)
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, fmt.Errorf("get usage report: %w", err)
	}
	return &report, nil
}

// List returns reports matching the filter with the total count.
func (r *ReportRepository) List(ctx context.Context, filter models.UsageReportFilter) ([]models.UsageReport, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if filter.Kind != nil && filter.Kind.Valid() {
		where = append(where, fmt.Sprintf("kind = $%d", len(args)+1))
		args = append(args, *filter.Kind)
	}
	if filter.From != nil {
		where = append(where, fmt.Sprintf("period_start >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, fmt.Sprintf("period_end <= $%d", len(args)+1))
		args = append(args, *filter.To)
	}
	whereClause := strings.Join(where, " AND ")
	_, size, offset := clampPage(filter.Page, filter.PageSize)

	query := fmt.Sprintf("SELECT %s FROM usage_reports WHERE %s ORDER BY period_start DESC LIMIT %d OFFSET %d", reportColumns, whereClause, size, offset)
	var reports []models.UsageReport
	if err := r.db.SelectContext(ctx, &reports, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list usage reports: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM usage_reports WHERE %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count usage reports: %w", err)
	}
	return reports, total, nil
}

// FindCompletedInRange returns completed reports of the given kind whose
// whole period falls inside [from, to]. Weekly and monthly rollups read
// their children through this query.
func (r *ReportRepository) FindCompletedInRange(ctx context.Context, kind models.ReportKind, from, to time.Time) ([]models.UsageReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM usage_reports
WHERE kind = $1 AND status = 'COMPLETED' AND period_start >= $2 AND period_end <= $3
ORDER BY period_start ASC`, reportColumns)
	var reports []models.UsageReport
	if err := r.db.SelectContext(ctx, &reports, query, kind, from, to); err != nil {
		return nil, fmt.Errorf("find completed reports: %w", err)
	}
	return reports, nil
}

// ExistsCompletedForPeriod reports whether a completed report already covers
// the exact period. Aggregation uses it as a precondition so re-runs skip
// instead of duplicating.
func (r *ReportRepository) ExistsCompletedForPeriod(ctx context.Context, kind models.ReportKind, start, end time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM usage_reports WHERE kind = $1 AND status = 'COMPLETED' AND period_start = $2 AND period_end = $3)`
	if err := r.db.GetContext(ctx, &exists, query, kind, start, end); err != nil {
		return false, fmt.Errorf("probe usage report period: %w", err)
	}
	return exists, nil
}
