package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classtrack-api/internal/models"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

// fakeClock advances only when the test says so. After hands out a channel
// the test fires explicitly, so no test ever sleeps.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.waits = append(c.waits, ch)
	return ch
}

// fire advances the clock and releases the oldest pending wait.
func (c *fakeClock) fire(advance time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(advance)
	var ch chan time.Time
	if len(c.waits) > 0 {
		ch = c.waits[0]
		c.waits = c.waits[1:]
	}
	now := c.now
	c.mu.Unlock()
	if ch != nil {
		ch <- now
	}
}

func (c *fakeClock) pendingWaits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waits)
}

type fakeAggregator struct {
	mu       sync.Mutex
	daily    []time.Time
	weekly   []time.Time
	monthly  []time.Time
	dailyErr error
	block    chan struct{}
}

func (f *fakeAggregator) Daily(ctx context.Context, day time.Time, generatedBy string) (*models.UsageReport, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.daily = append(f.daily, day)
	if f.dailyErr != nil {
		return nil, f.dailyErr
	}
	return &models.UsageReport{ID: fmt.Sprintf("daily-%d", len(f.daily)), Kind: models.ReportKindDaily}, nil
}

func (f *fakeAggregator) Weekly(ctx context.Context, weekEnding time.Time, generatedBy string) (*models.UsageReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weekly = append(f.weekly, weekEnding)
	return &models.UsageReport{ID: "weekly-1", Kind: models.ReportKindWeekly}, nil
}

func (f *fakeAggregator) Monthly(ctx context.Context, day time.Time, generatedBy string) (*models.UsageReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monthly = append(f.monthly, day)
	return &models.UsageReport{ID: "monthly-1", Kind: models.ReportKindMonthly}, nil
}

type recordedPass struct {
	granularity string
	outcome     string
}

type fakeArchivalMetrics struct {
	mu     sync.Mutex
	passes []recordedPass
}

func (m *fakeArchivalMetrics) ObserveArchivalPass(granularity, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes = append(m.passes, recordedPass{granularity, outcome})
}

func TestRunMidweekOnlyDaily(t *testing.T) {
	agg := &fakeAggregator{}
	sched := NewArchivalScheduler(agg, nil, newFakeClock(time.Now()), time.UTC, 2, nil)

	// Wednesday, mid-month.
	target := time.Date(2023, 1, 11, 0, 0, 0, 0, time.UTC)
	result, err := sched.Run(context.Background(), target, "manual")
	require.NoError(t, err)

	require.Equal(t, OutcomeCompleted, result.Daily.Outcome)
	require.Equal(t, OutcomeNotDue, result.Weekly.Outcome)
	require.Equal(t, OutcomeNotDue, result.Monthly.Outcome)
	require.Len(t, agg.daily, 1)
	require.Empty(t, agg.weekly)
	require.Empty(t, agg.monthly)
}

func TestRunSundayTriggersWeekly(t *testing.T) {
	agg := &fakeAggregator{}
	sched := NewArchivalScheduler(agg, nil, newFakeClock(time.Now()), time.UTC, 2, nil)

	sunday := time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC)
	result, err := sched.Run(context.Background(), sunday, "manual")
	require.NoError(t, err)

	require.Equal(t, OutcomeCompleted, result.Weekly.Outcome)
	require.Equal(t, OutcomeNotDue, result.Monthly.Outcome)
	require.Len(t, agg.weekly, 1)
}

func TestRunMonthEndTriggersMonthly(t *testing.T) {
	agg := &fakeAggregator{}
	sched := NewArchivalScheduler(agg, nil, newFakeClock(time.Now()), time.UTC, 2, nil)

	// 2023-01-31 is a Tuesday, so weekly stays not_due.
	lastOfMonth := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	result, err := sched.Run(context.Background(), lastOfMonth, "manual")
	require.NoError(t, err)

	require.Equal(t, OutcomeNotDue, result.Weekly.Outcome)
	require.Equal(t, OutcomeCompleted, result.Monthly.Outcome)
	require.Len(t, agg.monthly, 1)
}

func TestRunDailyFailureDoesNotBlockSiblings(t *testing.T) {
	agg := &fakeAggregator{dailyErr: appErrors.Clone(appErrors.ErrAggregationFailed, "storage down")}
	metrics := &fakeArchivalMetrics{}
	sched := NewArchivalScheduler(agg, metrics, newFakeClock(time.Now()), time.UTC, 2, nil)

	sunday := time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC)
	result, err := sched.Run(context.Background(), sunday, "manual")
	require.NoError(t, err)

	require.Equal(t, OutcomeFailed, result.Daily.Outcome)
	require.Equal(t, "storage down", result.Daily.Detail)
	require.Equal(t, OutcomeCompleted, result.Weekly.Outcome)

	require.Equal(t, []recordedPass{
		{"daily", "failed"},
		{"weekly", "completed"},
	}, metrics.passes)
}

func TestRunSkipOutcome(t *testing.T) {
	agg := &fakeAggregator{dailyErr: appErrors.Clone(appErrors.ErrAggregationSkipped, "no unarchived entries")}
	sched := NewArchivalScheduler(agg, nil, newFakeClock(time.Now()), time.UTC, 2, nil)

	target := time.Date(2023, 1, 11, 0, 0, 0, 0, time.UTC)
	result, err := sched.Run(context.Background(), target, "manual")
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, result.Daily.Outcome)
	require.Equal(t, "no unarchived entries", result.Daily.Detail)
}

func TestRunRejectsConcurrentPass(t *testing.T) {
	agg := &fakeAggregator{block: make(chan struct{})}
	sched := NewArchivalScheduler(agg, nil, newFakeClock(time.Now()), time.UTC, 2, nil)

	target := time.Date(2023, 1, 11, 0, 0, 0, 0, time.UTC)
	done := make(chan error, 1)
	go func() {
		_, err := sched.Run(context.Background(), target, "manual")
		done <- err
	}()

	// Wait until the first pass is inside the aggregator.
	require.Eventually(t, func() bool {
		return sched.running.Load()
	}, time.Second, time.Millisecond)

	_, err := sched.Run(context.Background(), target, "manual")
	require.ErrorIs(t, err, appErrors.ErrAggregationRunning)

	close(agg.block)
	require.NoError(t, <-done)

	// The flag clears once the pass finishes, so the next trigger succeeds.
	agg.block = nil
	_, err = sched.Run(context.Background(), target.AddDate(0, 0, 1), "manual")
	require.NoError(t, err)
}

func TestSchedulerLoopTargetsYesterday(t *testing.T) {
	agg := &fakeAggregator{}
	// Start just before the fire hour so the first wait is short but nonzero.
	clock := newFakeClock(time.Date(2023, 1, 11, 1, 0, 0, 0, time.UTC))
	sched := NewArchivalScheduler(agg, nil, clock, time.UTC, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	// Loop registers its first wait.
	require.Eventually(t, func() bool {
		return clock.pendingWaits() == 1
	}, time.Second, time.Millisecond)

	// Fire at 02:00 on Jan 11; the pass must target Jan 10.
	clock.fire(time.Hour)
	require.Eventually(t, func() bool {
		agg.mu.Lock()
		defer agg.mu.Unlock()
		return len(agg.daily) == 1
	}, time.Second, time.Millisecond)

	agg.mu.Lock()
	target := agg.daily[0]
	agg.mu.Unlock()
	require.Equal(t, "2023-01-10", target.Format("2006-01-02"))

	// Next wait is registered for the following day.
	require.Eventually(t, func() bool {
		return clock.pendingWaits() == 1
	}, time.Second, time.Millisecond)

	cancel()
	clock.fire(24 * time.Hour)
	sched.Wait()
}

func TestUntilNextFire(t *testing.T) {
	clock := newFakeClock(time.Date(2023, 1, 11, 1, 0, 0, 0, time.UTC))
	sched := NewArchivalScheduler(&fakeAggregator{}, nil, clock, time.UTC, 2, nil)
	require.Equal(t, time.Hour, sched.untilNextFire())

	// At exactly the fire hour the next fire is tomorrow.
	clock.now = time.Date(2023, 1, 11, 2, 0, 0, 0, time.UTC)
	require.Equal(t, 24*time.Hour, sched.untilNextFire())
}
