package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

type classroomStore interface {
	Create(ctx context.Context, room *models.Classroom) error
	GetByID(ctx context.Context, id string) (*models.Classroom, error)
	List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, int, error)
	Update(ctx context.Context, id string, expectedVersion int64, patch models.ClassroomPatch) (*models.Classroom, error)
	Delete(ctx context.Context, id string, expectedVersion int64) error
}

// ClassroomService orchestrates versioned classroom CRUD.
type ClassroomService struct {
	repo   classroomStore
	logger *zap.Logger
}

// NewClassroomService constructs the service.
func NewClassroomService(repo classroomStore, logger *zap.Logger) *ClassroomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassroomService{repo: repo, logger: logger}
}

// Create validates and persists a new classroom at version 1.
func (s *ClassroomService) Create(ctx context.Context, room *models.Classroom) (*models.Classroom, error) {
	if strings.TrimSpace(room.Name) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name is required")
	}
	if strings.TrimSpace(room.Location) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "location is required")
	}
	if room.Capacity < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity must not be negative")
	}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create classroom")
	}
	return room, nil
}

// Get returns a classroom by id.
func (s *ClassroomService) Get(ctx context.Context, id string) (*models.Classroom, error) {
	room, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}
	return room, nil
}

// List returns classrooms with pagination metadata.
func (s *ClassroomService) List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, *models.Pagination, error) {
	rooms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classrooms")
	}
	return rooms, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update applies a partial payload under the compare-and-swap discipline.
// The patch type only carries caller-editable fields, so system fields
// arriving in the request body are dropped before they reach the store.
func (s *ClassroomService) Update(ctx context.Context, id string, expectedVersion int64, patch models.ClassroomPatch) (*models.Classroom, error) {
	if expectedVersion < 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expected_version must be at least 1")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name must not be empty")
	}
	if patch.Capacity != nil && *patch.Capacity < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "capacity must not be negative")
	}
	room, err := s.repo.Update(ctx, id, expectedVersion, patch)
	if err != nil {
		return nil, s.mapWriteError(err, "failed to update classroom")
	}
	return room, nil
}

// Delete removes a classroom, rejecting stale versions like any other write.
func (s *ClassroomService) Delete(ctx context.Context, id string, expectedVersion int64) error {
	if expectedVersion < 1 {
		return appErrors.Clone(appErrors.ErrValidation, "expected_version must be at least 1")
	}
	if err := s.repo.Delete(ctx, id, expectedVersion); err != nil {
		return s.mapWriteError(err, "failed to delete classroom")
	}
	return nil
}

func (s *ClassroomService) mapWriteError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return appErrors.Conflict("classroom")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.ErrNotFound
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}
