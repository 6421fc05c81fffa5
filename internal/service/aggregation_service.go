package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

type aggregationEntryStore interface {
	FindUnarchived(ctx context.Context, from, to time.Time) ([]models.TimeEntry, error)
	MarkArchived(ctx context.Context, ids []string) (int64, error)
}

type aggregationReportStore interface {
	Create(ctx context.Context, report *models.UsageReport) error
	FindCompletedInRange(ctx context.Context, kind models.ReportKind, from, to time.Time) ([]models.UsageReport, error)
	ExistsCompletedForPeriod(ctx context.Context, kind models.ReportKind, start, end time.Time) (bool, error)
}

// AggregationService rolls time entries up into immutable usage reports.
//
// Daily reports are computed from raw unarchived entries; weekly and monthly
// reports are rollups that sum previously produced reports field-by-field and
// never re-scan raw entries. All counts are exact integers; the verification
// rate is the only derived value and is recomputed from the summed counts at
// every level, rounded half-up to a whole percentage.
type AggregationService struct {
	entries aggregationEntryStore
	reports aggregationReportStore
	logger  *zap.Logger
	loc     *time.Location
}

// NewAggregationService constructs the service. loc fixes the calendar used
// for day, week, and month boundaries.
func NewAggregationService(entries aggregationEntryStore, reports aggregationReportStore, loc *time.Location, logger *zap.Logger) *AggregationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AggregationService{entries: entries, reports: reports, logger: logger, loc: loc}
}

// Daily aggregates all unarchived entries for the given calendar date.
//
// It returns ErrAggregationSkipped both when no unarchived entries exist for
// the date and when a completed daily report already covers it, so re-running
// an already-archived date never produces a duplicate.
func (s *AggregationService) Daily(ctx context.Context, day time.Time, generatedBy string) (*models.UsageReport, error) {
	start, end := s.dayBounds(day)

	exists, err := s.reports.ExistsCompletedForPeriod(ctx, models.ReportKindDaily, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAggregationFailed.Code, appErrors.ErrAggregationFailed.Status, "failed to check existing daily report")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAggregationSkipped, "daily report already exists for "+start.Format("2006-01-02"))
	}

	entries, err := s.entries.FindUnarchived(ctx, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAggregationFailed.Code, appErrors.ErrAggregationFailed.Status, "failed to query unarchived entries")
	}
	if len(entries) == 0 {
		return nil, appErrors.Clone(appErrors.ErrAggregationSkipped, "no unarchived entries for "+start.Format("2006-01-02"))
	}

	stats := models.UsageStatistics{Total: len(entries)}
	byRoom := map[string]*models.ClassroomUsage{}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
		slice, ok := byRoom[entry.ClassroomID]
		if !ok {
			slice = &models.ClassroomUsage{ClassroomID: entry.ClassroomID}
			byRoom[entry.ClassroomID] = slice
		}
		slice.Total++
		switch entry.Status {
		case models.TimeEntryVerified:
			stats.Verified++
			slice.Verified++
		case models.TimeEntryRejected:
			stats.Rejected++
			slice.Rejected++
		default:
			stats.Pending++
			slice.Pending++
		}
	}
	stats.VerificationRate = rateOf(stats.Verified, stats.Total)

	report := &models.UsageReport{
		Kind:        models.ReportKindDaily,
		PeriodStart: start,
		PeriodEnd:   end,
		SourceRefs:  ids,
		Statistics:  stats,
		Breakdown:   sortedBreakdown(byRoom),
		Status:      models.UsageReportCompleted,
		GeneratedBy: generatedBy,
	}
	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}

	// The query above and this mark are separate operations. An entry
	// appended between them for the same date is picked up by the next pass
	// for that date range.
	if _, err := s.entries.MarkArchived(ctx, ids); err != nil {
		s.logger.Error("failed to mark entries archived", zap.String("report_id", report.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrAggregationFailed.Code, appErrors.ErrAggregationFailed.Status, "report persisted but entries not marked archived")
	}
	return report, nil
}

// Weekly rolls the daily reports of the ISO week ending on weekEnding
// (a Sunday) into one weekly report.
func (s *AggregationService) Weekly(ctx context.Context, weekEnding time.Time, generatedBy string) (*models.UsageReport, error) {
	endDay, end := s.dayBounds(weekEnding)
	start := endDay.AddDate(0, 0, -6)

	if endDay.Weekday() != time.Sunday {
		return nil, appErrors.Clone(appErrors.ErrAggregationSkipped, "week ending "+endDay.Format("2006-01-02")+" is not a Sunday")
	}
	return s.rollup(ctx, models.ReportKindWeekly, models.ReportKindDaily, start, end, nil, generatedBy)
}

// Monthly rolls the calendar month containing day into one monthly report.
// Its children are the weekly reports fully inside the month plus any daily
// reports from weeks that straddle the month boundary.
func (s *AggregationService) Monthly(ctx context.Context, day time.Time, generatedBy string) (*models.UsageReport, error) {
	local := day.In(s.loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 1, 0).Add(-time.Millisecond)

	weeklies, err := s.reports.FindCompletedInRange(ctx, models.ReportKindWeekly, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAggregationFailed.Code, appErrors.ErrAggregationFailed.Status, "failed to collect weekly reports")
	}
	return s.rollup(ctx, models.ReportKindMonthly, models.ReportKindDaily, start, end, weeklies, generatedBy)
}

// rollup sums child reports into a new report of the given kind covering
// [start, end]. extraParents, when set, are coarser children (weeklies inside
// a month) that take precedence: finer children whose period they cover are
// excluded to avoid double counting.
func (s *AggregationService) rollup(ctx context.Context, kind, childKind models.ReportKind, start, end time.Time, extraParents []models.UsageReport, generatedBy string) (*models.UsageReport, error) {
	exists, err := s.reports.ExistsCompletedForPeriod(ctx, kind, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAggregationFailed.Code, appErrors.ErrAggregationFailed.Status, "failed to check existing report")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrAggregationSkipped, string(kind)+" report already exists for period starting "+start.Format("2006-01-02"))
	}

	children, err := s.reports.FindCompletedInRange(ctx, childKind, start, end)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAggregationFailed.Code, appErrors.ErrAggregationFailed.Status, "failed to collect child reports")
	}
	all := make([]models.UsageReport, 0, len(extraParents)+len(children))
	all = append(all, extraParents...)
	for _, child := range children {
		if !coveredByAny(child, extraParents) {
			all = append(all, child)
		}
	}
	if len(all) == 0 {
		return nil, appErrors.Clone(appErrors.ErrAggregationSkipped, "no completed reports to roll up for period starting "+start.Format("2006-01-02"))
	}

	stats := models.UsageStatistics{}
	byRoom := map[string]*models.ClassroomUsage{}
	ids := make([]string, 0, len(all))
	for _, child := range all {
		ids = append(ids, child.ID)
		stats.Total += child.Statistics.Total
		stats.Verified += child.Statistics.Verified
		stats.Pending += child.Statistics.Pending
		stats.Rejected += child.Statistics.Rejected
		for _, slice := range child.Breakdown {
			merged, ok := byRoom[slice.ClassroomID]
			if !ok {
				merged = &models.ClassroomUsage{ClassroomID: slice.ClassroomID}
				byRoom[slice.ClassroomID] = merged
			}
			merged.Total += slice.Total
			merged.Verified += slice.Verified
			merged.Pending += slice.Pending
			merged.Rejected += slice.Rejected
		}
	}
	stats.VerificationRate = rateOf(stats.Verified, stats.Total)

	report := &models.UsageReport{
		Kind:        kind,
		PeriodStart: start,
		PeriodEnd:   end,
		SourceRefs:  ids,
		Statistics:  stats,
		Breakdown:   sortedBreakdown(byRoom),
		Status:      models.UsageReportCompleted,
		GeneratedBy: generatedBy,
	}
	if err := s.persist(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *AggregationService) persist(ctx context.Context, report *models.UsageReport) error {
	if err := s.reports.Create(ctx, report); err != nil {
		if errors.Is(err, repository.ErrDuplicateReport) {
			return appErrors.Clone(appErrors.ErrAggregationSkipped, string(report.Kind)+" report already exists for period starting "+report.PeriodStart.Format("2006-01-02"))
		}
		return appErrors.Wrap(err, appErrors.ErrAggregationFailed.Code, appErrors.ErrAggregationFailed.Status, "failed to persist report")
	}
	s.logger.Info("report generated",
		zap.String("report_id", report.ID),
		zap.String("kind", string(report.Kind)),
		zap.Time("period_start", report.PeriodStart),
		zap.Int("total", report.Statistics.Total),
	)
	return nil
}

// dayBounds returns the inclusive [00:00:00.000, 23:59:59.999] range of the
// calendar date containing t in the service timezone.
func (s *AggregationService) dayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1).Add(-time.Millisecond)
}

func coveredByAny(child models.UsageReport, parents []models.UsageReport) bool {
	for _, parent := range parents {
		if !child.PeriodStart.Before(parent.PeriodStart) && !child.PeriodEnd.After(parent.PeriodEnd) {
			return true
		}
	}
	return false
}

// rateOf computes verified/total as a whole percentage, rounded half-up.
// Integer arithmetic only, so there is no floating drift.
func rateOf(verified, total int) int {
	if total == 0 {
		return 0
	}
	return (verified*200 + total) / (2 * total)
}

func sortedBreakdown(byRoom map[string]*models.ClassroomUsage) models.ClassroomBreakdown {
	breakdown := make(models.ClassroomBreakdown, 0, len(byRoom))
	for _, slice := range byRoom {
		breakdown = append(breakdown, *slice)
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].ClassroomID < breakdown[j].ClassroomID })
	return breakdown
}
