package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/classtrack-api/internal/dto"
	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

type timeEntryStore interface {
	Append(ctx context.Context, entry *models.TimeEntry) error
	GetByID(ctx context.Context, id string) (*models.TimeEntry, error)
	List(ctx context.Context, filter models.TimeEntryFilter) ([]models.TimeEntry, int, error)
	SetStatus(ctx context.Context, id string, expectedVersion int64, status models.TimeEntryStatus) (*models.TimeEntry, error)
	SetTimeOut(ctx context.Context, id string, expectedVersion int64, timeOut time.Time) (*models.TimeEntry, error)
}

type classroomRef interface {
	GetByID(ctx context.Context, id string) (*models.Classroom, error)
}

type userRef interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// TimeEntryService manages classroom usage records. Entries are append-only
// facts; after creation only the review status and the checkout timestamp
// change, both through the versioned write discipline.
type TimeEntryService struct {
	repo       timeEntryStore
	classrooms classroomRef
	users      userRef
	validator  *validator.Validate
	location   *time.Location
	logger     *zap.Logger
}

// NewTimeEntryService constructs a time entry service. The location sets the
// calendar day an entry lands on, which is what the archival pass groups by.
func NewTimeEntryService(repo timeEntryStore, classrooms classroomRef, users userRef, location *time.Location, logger *zap.Logger) *TimeEntryService {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimeEntryService{
		repo:       repo,
		classrooms: classrooms,
		users:      users,
		validator:  validator.New(),
		location:   location,
		logger:     logger,
	}
}

// Create records a time-in event against a classroom.
func (s *TimeEntryService) Create(ctx context.Context, req dto.CreateTimeEntryRequest) (*models.TimeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if _, err := s.classrooms.GetByID(ctx, req.ClassroomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "classroom does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify classroom")
	}
	if _, err := s.users.GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "user does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify user")
	}

	timeIn := req.TimeIn.In(s.location)
	entry := &models.TimeEntry{
		UserID:      req.UserID,
		ClassroomID: req.ClassroomID,
		OccurredOn:  dayOf(timeIn),
		TimeIn:      timeIn,
		Status:      models.TimeEntryPending,
		Notes:       req.Notes,
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record time entry")
	}
	s.logger.Sugar().Infow("time entry recorded",
		"entry_id", entry.ID,
		"classroom_id", entry.ClassroomID,
		"occurred_on", entry.OccurredOn.Format("2006-01-02"),
	)
	return entry, nil
}

// Get loads a single entry.
func (s *TimeEntryService) Get(ctx context.Context, id string) (*models.TimeEntry, error) {
	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load time entry")
	}
	return entry, nil
}

// List returns entries matching the filter with pagination metadata.
func (s *TimeEntryService) List(ctx context.Context, filter models.TimeEntryFilter) ([]models.TimeEntry, *models.Pagination, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid status filter")
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list time entries")
	}
	return entries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// SetStatus moves an entry through review. The write only lands when the
// caller's expected version matches the stored one.
func (s *TimeEntryService) SetStatus(ctx context.Context, id string, req dto.SetTimeEntryStatusRequest) (*models.TimeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	status := models.TimeEntryStatus(req.Status)
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid status %q", req.Status))
	}
	entry, err := s.repo.SetStatus(ctx, id, req.ExpectedVersion, status)
	if err != nil {
		return nil, s.mapWriteError(err, "failed to update time entry status")
	}
	s.logger.Sugar().Infow("time entry status updated",
		"entry_id", entry.ID,
		"status", entry.Status,
		"version", entry.Version,
	)
	return entry, nil
}

// Checkout records the time-out timestamp on an open entry.
func (s *TimeEntryService) Checkout(ctx context.Context, id string, req dto.CheckoutTimeEntryRequest) (*models.TimeEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	timeOut := req.TimeOut.In(s.location)
	if !timeOut.After(current.TimeIn) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "time_out must be after time_in")
	}
	entry, err := s.repo.SetTimeOut(ctx, id, req.ExpectedVersion, timeOut)
	if err != nil {
		return nil, s.mapWriteError(err, "failed to check out time entry")
	}
	return entry, nil
}

func (s *TimeEntryService) mapWriteError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return appErrors.Conflict("time entry")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.ErrNotFound
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// dayOf truncates a timestamp to midnight in its own location.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
