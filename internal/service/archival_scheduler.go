package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/classtrack-api/internal/models"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

// Clock abstracts wall-clock access so scheduler tests can advance simulated
// time instead of sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

type aggregator interface {
	Daily(ctx context.Context, day time.Time, generatedBy string) (*models.UsageReport, error)
	Weekly(ctx context.Context, weekEnding time.Time, generatedBy string) (*models.UsageReport, error)
	Monthly(ctx context.Context, day time.Time, generatedBy string) (*models.UsageReport, error)
}

type archivalMetrics interface {
	ObserveArchivalPass(granularity string, outcome string, duration time.Duration)
}

// GranularityOutcome is the per-level result of one archival pass.
type GranularityOutcome string

const (
	OutcomeCompleted GranularityOutcome = "completed"
	OutcomeSkipped   GranularityOutcome = "skipped"
	OutcomeFailed    GranularityOutcome = "failed"
	OutcomeNotDue    GranularityOutcome = "not_due"
)

// GranularityResult reports what happened at one aggregation level.
type GranularityResult struct {
	Outcome  GranularityOutcome `json:"outcome"`
	ReportID string             `json:"report_id,omitempty"`
	Detail   string             `json:"detail,omitempty"`
}

// PassResult summarises one full archival pass.
type PassResult struct {
	TargetDate string            `json:"target_date"`
	Daily      GranularityResult `json:"daily"`
	Weekly     GranularityResult `json:"weekly"`
	Monthly    GranularityResult `json:"monthly"`
}

// ArchivalScheduler drives the aggregation engine on a fixed daily cadence.
//
// Each fire targets "yesterday" in the configured timezone: the daily report
// first, then the weekly rollup when the target is a Sunday, then the monthly
// rollup when the day after the target opens a new month. The three levels
// are isolated: a failure in one is logged and recorded but never blocks the
// others or crashes the scheduler.
//
// Passes are serialized with an atomic flag. A manual trigger racing the
// scheduled run (or another manual run) is rejected with
// ErrAggregationRunning instead of overlapping it.
type ArchivalScheduler struct {
	agg      aggregator
	metrics  archivalMetrics
	logger   *zap.Logger
	clock    Clock
	loc      *time.Location
	fireHour int

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewArchivalScheduler constructs the scheduler. fireHour is the local hour
// of day (0-23) at which the daily pass fires.
func NewArchivalScheduler(agg aggregator, metrics archivalMetrics, clock Clock, loc *time.Location, fireHour int, logger *zap.Logger) *ArchivalScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	if fireHour < 0 || fireHour > 23 {
		fireHour = 2
	}
	return &ArchivalScheduler{agg: agg, metrics: metrics, logger: logger, clock: clock, loc: loc, fireHour: fireHour}
}

// Start boots the timer loop. It returns immediately; the loop exits when
// ctx is cancelled.
func (s *ArchivalScheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			wait := s.untilNextFire()
			s.logger.Info("archival scheduler sleeping", zap.Duration("until_next_fire", wait))
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(wait):
			}
			target := s.clock.Now().In(s.loc).AddDate(0, 0, -1)
			result, err := s.Run(ctx, target, "scheduler")
			if err != nil {
				// Only an in-flight manual pass can get here; the next fire
				// retries nothing, it just processes its own target date.
				s.logger.Warn("scheduled archival pass not started", zap.Error(err))
				continue
			}
			s.logger.Info("scheduled archival pass finished",
				zap.String("target_date", result.TargetDate),
				zap.String("daily", string(result.Daily.Outcome)),
				zap.String("weekly", string(result.Weekly.Outcome)),
				zap.String("monthly", string(result.Monthly.Outcome)),
			)
		}
	}()
}

// Wait blocks until the timer loop has exited.
func (s *ArchivalScheduler) Wait() {
	s.wg.Wait()
}

// Run executes one full archival pass for the given target date. It is the
// entry point for both the timer loop and the operator's manual trigger.
func (s *ArchivalScheduler) Run(ctx context.Context, target time.Time, generatedBy string) (*PassResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, appErrors.ErrAggregationRunning
	}
	defer s.running.Store(false)

	target = target.In(s.loc)
	result := &PassResult{
		TargetDate: target.Format("2006-01-02"),
		Weekly:     GranularityResult{Outcome: OutcomeNotDue},
		Monthly:    GranularityResult{Outcome: OutcomeNotDue},
	}

	result.Daily = s.runLevel(ctx, "daily", func() (*models.UsageReport, error) {
		return s.agg.Daily(ctx, target, generatedBy)
	})

	if target.Weekday() == time.Sunday {
		result.Weekly = s.runLevel(ctx, "weekly", func() (*models.UsageReport, error) {
			return s.agg.Weekly(ctx, target, generatedBy)
		})
	}

	if target.AddDate(0, 0, 1).Day() == 1 {
		result.Monthly = s.runLevel(ctx, "monthly", func() (*models.UsageReport, error) {
			return s.agg.Monthly(ctx, target, generatedBy)
		})
	}

	return result, nil
}

// runLevel executes one aggregation level, translating its outcome and
// swallowing failures so sibling levels still run.
func (s *ArchivalScheduler) runLevel(ctx context.Context, granularity string, fn func() (*models.UsageReport, error)) GranularityResult {
	start := s.clock.Now()
	report, err := fn()
	outcome := GranularityResult{Outcome: OutcomeCompleted}
	switch {
	case err == nil:
		outcome.ReportID = report.ID
	case isSkip(err):
		outcome = GranularityResult{Outcome: OutcomeSkipped, Detail: appErrors.FromError(err).Message}
	default:
		s.logger.Error("aggregation level failed", zap.String("granularity", granularity), zap.Error(err))
		outcome = GranularityResult{Outcome: OutcomeFailed, Detail: appErrors.FromError(err).Message}
	}
	if s.metrics != nil {
		s.metrics.ObserveArchivalPass(granularity, string(outcome.Outcome), s.clock.Now().Sub(start))
	}
	return outcome
}

// untilNextFire computes the wait until the next occurrence of fireHour in
// the scheduler timezone.
func (s *ArchivalScheduler) untilNextFire() time.Duration {
	now := s.clock.Now().In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.fireHour, 0, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

func isSkip(err error) bool {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code == appErrors.ErrAggregationSkipped.Code
	}
	return false
}
