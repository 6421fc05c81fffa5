package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

type fakeEntryStore struct {
	entries   []models.TimeEntry
	markedIDs []string
	findErr   error
	markErr   error
}

func (f *fakeEntryStore) FindUnarchived(ctx context.Context, from, to time.Time) ([]models.TimeEntry, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []models.TimeEntry
	for _, e := range f.entries {
		if e.Archived {
			continue
		}
		if e.OccurredOn.Before(from) || e.OccurredOn.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEntryStore) MarkArchived(ctx context.Context, ids []string) (int64, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	marked := int64(0)
	for i := range f.entries {
		for _, id := range ids {
			if f.entries[i].ID == id && !f.entries[i].Archived {
				f.entries[i].Archived = true
				marked++
			}
		}
	}
	f.markedIDs = append(f.markedIDs, ids...)
	return marked, nil
}

type fakeReportStore struct {
	reports   []models.UsageReport
	createErr error
}

func (f *fakeReportStore) Create(ctx context.Context, report *models.UsageReport) error {
	if f.createErr != nil {
		return f.createErr
	}
	for _, r := range f.reports {
		if r.Kind == report.Kind && r.Status == models.UsageReportCompleted &&
			r.PeriodStart.Equal(report.PeriodStart) && r.PeriodEnd.Equal(report.PeriodEnd) {
			return repository.ErrDuplicateReport
		}
	}
	if report.ID == "" {
		report.ID = fmt.Sprintf("report-%d", len(f.reports)+1)
	}
	f.reports = append(f.reports, *report)
	return nil
}

func (f *fakeReportStore) FindCompletedInRange(ctx context.Context, kind models.ReportKind, from, to time.Time) ([]models.UsageReport, error) {
	var out []models.UsageReport
	for _, r := range f.reports {
		if r.Kind != kind || r.Status != models.UsageReportCompleted {
			continue
		}
		if r.PeriodStart.Before(from) || r.PeriodEnd.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeReportStore) ExistsCompletedForPeriod(ctx context.Context, kind models.ReportKind, start, end time.Time) (bool, error) {
	for _, r := range f.reports {
		if r.Kind == kind && r.Status == models.UsageReportCompleted &&
			r.PeriodStart.Equal(start) && r.PeriodEnd.Equal(end) {
			return true, nil
		}
	}
	return false, nil
}

func dayEntry(id, room string, day time.Time, status models.TimeEntryStatus) models.TimeEntry {
	return models.TimeEntry{
		ID:          id,
		Version:     1,
		UserID:      "user-1",
		ClassroomID: room,
		OccurredOn:  day,
		TimeIn:      day.Add(8 * time.Hour),
		Status:      status,
	}
}

func dailyReport(id string, day time.Time, stats models.UsageStatistics, breakdown models.ClassroomBreakdown) models.UsageReport {
	return models.UsageReport{
		ID:          id,
		Kind:        models.ReportKindDaily,
		PeriodStart: day,
		PeriodEnd:   day.AddDate(0, 0, 1).Add(-time.Millisecond),
		Statistics:  stats,
		Breakdown:   breakdown,
		Status:      models.UsageReportCompleted,
		GeneratedBy: "scheduler",
	}
}

func requireSkipped(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, appErrors.ErrAggregationSkipped.Code, appErrors.FromError(err).Code)
}

func TestDailyAggregation(t *testing.T) {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	entries := &fakeEntryStore{}
	for i := 0; i < 6; i++ {
		entries.entries = append(entries.entries, dayEntry(fmt.Sprintf("v%d", i), "room-a", day, models.TimeEntryVerified))
	}
	for i := 0; i < 3; i++ {
		entries.entries = append(entries.entries, dayEntry(fmt.Sprintf("p%d", i), "room-b", day, models.TimeEntryPending))
	}
	entries.entries = append(entries.entries, dayEntry("r0", "room-b", day, models.TimeEntryRejected))

	reports := &fakeReportStore{}
	svc := NewAggregationService(entries, reports, time.UTC, nil)

	report, err := svc.Daily(context.Background(), day, "scheduler")
	require.NoError(t, err)

	require.Equal(t, models.ReportKindDaily, report.Kind)
	require.Equal(t, models.UsageReportCompleted, report.Status)
	require.True(t, report.PeriodStart.Equal(day))
	require.True(t, report.PeriodEnd.Equal(day.Add(24*time.Hour-time.Millisecond)))

	require.Equal(t, 10, report.Statistics.Total)
	require.Equal(t, 6, report.Statistics.Verified)
	require.Equal(t, 3, report.Statistics.Pending)
	require.Equal(t, 1, report.Statistics.Rejected)
	require.Equal(t, 60, report.Statistics.VerificationRate)

	require.Len(t, report.SourceRefs, 10)
	require.Len(t, report.Breakdown, 2)
	require.Equal(t, "room-a", report.Breakdown[0].ClassroomID)
	require.Equal(t, 6, report.Breakdown[0].Verified)
	require.Equal(t, "room-b", report.Breakdown[1].ClassroomID)
	require.Equal(t, 4, report.Breakdown[1].Total)

	for _, e := range entries.entries {
		require.True(t, e.Archived, "entry %s should be archived", e.ID)
	}
}

func TestDailyAggregationSpringForwardDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-03-08 is a 23 hour day in this zone; the window must still end at
	// 23:59:59.999 local instead of spilling into the next date.
	shortDay := time.Date(2026, 3, 8, 0, 0, 0, 0, loc)
	nextDay := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	entries := &fakeEntryStore{entries: []models.TimeEntry{
		dayEntry("e-mar8", "room-a", shortDay, models.TimeEntryVerified),
		dayEntry("e-mar9", "room-a", nextDay, models.TimeEntryVerified),
	}}
	reports := &fakeReportStore{}
	svc := NewAggregationService(entries, reports, loc, nil)

	report, err := svc.Daily(context.Background(), shortDay, "scheduler")
	require.NoError(t, err)

	require.Equal(t, 1, report.Statistics.Total)
	require.Equal(t, []string{"e-mar8"}, entries.markedIDs)
	require.True(t, report.PeriodEnd.Before(nextDay))
	require.True(t, report.PeriodEnd.Equal(nextDay.Add(-time.Millisecond)))

	nextReport, err := svc.Daily(context.Background(), nextDay, "scheduler")
	require.NoError(t, err)
	require.Equal(t, 1, nextReport.Statistics.Total)
}

func TestDailyAggregationNoEntries(t *testing.T) {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	svc := NewAggregationService(&fakeEntryStore{}, &fakeReportStore{}, time.UTC, nil)

	_, err := svc.Daily(context.Background(), day, "scheduler")
	requireSkipped(t, err)
}

func TestDailyAggregationRerunSkips(t *testing.T) {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	entries := &fakeEntryStore{entries: []models.TimeEntry{dayEntry("e1", "room-a", day, models.TimeEntryVerified)}}
	reports := &fakeReportStore{}
	svc := NewAggregationService(entries, reports, time.UTC, nil)

	_, err := svc.Daily(context.Background(), day, "scheduler")
	require.NoError(t, err)

	_, err = svc.Daily(context.Background(), day, "scheduler")
	requireSkipped(t, err)
	require.Len(t, reports.reports, 1)
}

func TestDailyAggregationDuplicateAtPersist(t *testing.T) {
	// Simulates losing the insert race: the precondition probe saw nothing,
	// but the conditional insert hits an existing completed row.
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	entries := &fakeEntryStore{entries: []models.TimeEntry{dayEntry("e1", "room-a", day, models.TimeEntryVerified)}}
	reports := &fakeReportStore{createErr: repository.ErrDuplicateReport}
	svc := NewAggregationService(entries, reports, time.UTC, nil)

	_, err := svc.Daily(context.Background(), day, "scheduler")
	requireSkipped(t, err)
	require.Empty(t, entries.markedIDs)
}

func TestDailyAggregationMarkFailure(t *testing.T) {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	entries := &fakeEntryStore{
		entries: []models.TimeEntry{dayEntry("e1", "room-a", day, models.TimeEntryVerified)},
		markErr: fmt.Errorf("connection reset"),
	}
	reports := &fakeReportStore{}
	svc := NewAggregationService(entries, reports, time.UTC, nil)

	_, err := svc.Daily(context.Background(), day, "scheduler")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrAggregationFailed.Code, appErrors.FromError(err).Code)
	// The report itself was persisted before the mark failed.
	require.Len(t, reports.reports, 1)
}

func TestWeeklyRejectsNonSunday(t *testing.T) {
	monday := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	svc := NewAggregationService(&fakeEntryStore{}, &fakeReportStore{}, time.UTC, nil)

	_, err := svc.Weekly(context.Background(), monday, "scheduler")
	requireSkipped(t, err)
}

func TestWeeklySumsDailies(t *testing.T) {
	// Week Monday 2023-01-02 through Sunday 2023-01-08.
	reports := &fakeReportStore{}
	for i := 0; i < 7; i++ {
		day := time.Date(2023, 1, 2+i, 0, 0, 0, 0, time.UTC)
		reports.reports = append(reports.reports, dailyReport(
			fmt.Sprintf("daily-%d", i),
			day,
			models.UsageStatistics{Total: 8, Verified: 1, Pending: 6, Rejected: 1, VerificationRate: 13},
			models.ClassroomBreakdown{{ClassroomID: "room-a", Total: 8, Verified: 1, Pending: 6, Rejected: 1}},
		))
	}
	svc := NewAggregationService(&fakeEntryStore{}, reports, time.UTC, nil)

	sunday := time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC)
	report, err := svc.Weekly(context.Background(), sunday, "scheduler")
	require.NoError(t, err)

	require.Equal(t, models.ReportKindWeekly, report.Kind)
	require.True(t, report.PeriodStart.Equal(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 56, report.Statistics.Total)
	require.Equal(t, 7, report.Statistics.Verified)
	require.Equal(t, 42, report.Statistics.Pending)
	require.Equal(t, 7, report.Statistics.Rejected)
	// 7/56 = 12.5%, rounded half-up.
	require.Equal(t, 13, report.Statistics.VerificationRate)
	require.Len(t, report.SourceRefs, 7)
	require.Len(t, report.Breakdown, 1)
	require.Equal(t, 56, report.Breakdown[0].Total)
}

func TestWeeklyNoChildrenSkips(t *testing.T) {
	svc := NewAggregationService(&fakeEntryStore{}, &fakeReportStore{}, time.UTC, nil)
	sunday := time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC)

	_, err := svc.Weekly(context.Background(), sunday, "scheduler")
	requireSkipped(t, err)
}

func TestMonthlyExcludesDailiesCoveredByWeeklies(t *testing.T) {
	// January 2023: the week Jan 2-8 is fully inside the month and produced a
	// weekly report. Jan 1 (Sunday of the straddling December week) and Jan 30
	// only exist as dailies. The daily for Jan 2 is covered by the weekly and
	// must not be double counted.
	reports := &fakeReportStore{}

	jan2 := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	weekly := models.UsageReport{
		ID:          "weekly-1",
		Kind:        models.ReportKindWeekly,
		PeriodStart: jan2,
		PeriodEnd:   time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC).Add(24*time.Hour - time.Millisecond),
		Statistics:  models.UsageStatistics{Total: 70, Verified: 35, Pending: 30, Rejected: 5, VerificationRate: 50},
		Breakdown:   models.ClassroomBreakdown{{ClassroomID: "room-a", Total: 70, Verified: 35, Pending: 30, Rejected: 5}},
		Status:      models.UsageReportCompleted,
	}
	reports.reports = append(reports.reports, weekly)

	reports.reports = append(reports.reports, dailyReport("daily-jan2", jan2,
		models.UsageStatistics{Total: 10, Verified: 5, Pending: 5},
		models.ClassroomBreakdown{{ClassroomID: "room-a", Total: 10, Verified: 5, Pending: 5}},
	))
	reports.reports = append(reports.reports, dailyReport("daily-jan1", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		models.UsageStatistics{Total: 4, Verified: 4, VerificationRate: 100},
		models.ClassroomBreakdown{{ClassroomID: "room-b", Total: 4, Verified: 4}},
	))
	reports.reports = append(reports.reports, dailyReport("daily-jan30", time.Date(2023, 1, 30, 0, 0, 0, 0, time.UTC),
		models.UsageStatistics{Total: 6, Verified: 3, Pending: 3, VerificationRate: 50},
		models.ClassroomBreakdown{{ClassroomID: "room-a", Total: 6, Verified: 3, Pending: 3}},
	))

	svc := NewAggregationService(&fakeEntryStore{}, reports, time.UTC, nil)

	report, err := svc.Monthly(context.Background(), time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC), "scheduler")
	require.NoError(t, err)

	require.Equal(t, models.ReportKindMonthly, report.Kind)
	// weekly (70) + jan1 (4) + jan30 (6); jan2 daily excluded.
	require.Equal(t, 80, report.Statistics.Total)
	require.Equal(t, 42, report.Statistics.Verified)
	require.ElementsMatch(t, []string{"weekly-1", "daily-jan1", "daily-jan30"}, []string(report.SourceRefs))
	// 42/80 = 52.5%, rounded half-up.
	require.Equal(t, 53, report.Statistics.VerificationRate)

	require.Len(t, report.Breakdown, 2)
	require.Equal(t, "room-a", report.Breakdown[0].ClassroomID)
	require.Equal(t, 76, report.Breakdown[0].Total)
	require.Equal(t, "room-b", report.Breakdown[1].ClassroomID)
}

func TestMonthlyRerunSkips(t *testing.T) {
	reports := &fakeReportStore{}
	reports.reports = append(reports.reports, dailyReport("daily-1", time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC),
		models.UsageStatistics{Total: 2, Verified: 2, VerificationRate: 100},
		models.ClassroomBreakdown{{ClassroomID: "room-a", Total: 2, Verified: 2}},
	))
	svc := NewAggregationService(&fakeEntryStore{}, reports, time.UTC, nil)

	_, err := svc.Monthly(context.Background(), time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), "scheduler")
	require.NoError(t, err)

	_, err = svc.Monthly(context.Background(), time.Date(2023, 1, 20, 0, 0, 0, 0, time.UTC), "scheduler")
	requireSkipped(t, err)
}

func TestRateOfRoundsHalfUp(t *testing.T) {
	cases := []struct {
		verified, total, want int
	}{
		{0, 0, 0},
		{6, 10, 60},
		{1, 8, 13},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{5, 1000, 1},
		{1000, 1000, 100},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, rateOf(tc.verified, tc.total), "rateOf(%d, %d)", tc.verified, tc.total)
	}
}
