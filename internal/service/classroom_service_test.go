package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
)

type classroomStoreStub struct {
	createErr error
	updateErr error
	deleteErr error
	getErr    error
	room      *models.Classroom
	created   *models.Classroom
	lastPatch models.ClassroomPatch
}

func (s *classroomStoreStub) Create(ctx context.Context, room *models.Classroom) error {
	if s.createErr != nil {
		return s.createErr
	}
	room.ID = "room-1"
	room.Version = 1
	s.created = room
	return nil
}

func (s *classroomStoreStub) GetByID(ctx context.Context, id string) (*models.Classroom, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.room, nil
}

func (s *classroomStoreStub) List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, int, error) {
	return []models.Classroom{*s.room}, 1, nil
}

func (s *classroomStoreStub) Update(ctx context.Context, id string, expectedVersion int64, patch models.ClassroomPatch) (*models.Classroom, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	s.lastPatch = patch
	updated := *s.room
	updated.Version = expectedVersion + 1
	return &updated, nil
}

func (s *classroomStoreStub) Delete(ctx context.Context, id string, expectedVersion int64) error {
	return s.deleteErr
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestClassroomCreateStartsAtVersionOne(t *testing.T) {
	store := &classroomStoreStub{}
	svc := NewClassroomService(store, nil)

	room, err := svc.Create(context.Background(), &models.Classroom{Name: "Lab 1", Location: "Building A", Capacity: 30})
	require.NoError(t, err)
	require.Equal(t, int64(1), room.Version)
	require.NotEmpty(t, room.ID)
}

func TestClassroomCreateValidation(t *testing.T) {
	svc := NewClassroomService(&classroomStoreStub{}, nil)

	_, err := svc.Create(context.Background(), &models.Classroom{Location: "Building A"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), &models.Classroom{Name: "Lab", Location: "B", Capacity: -1})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassroomUpdateBumpsVersion(t *testing.T) {
	store := &classroomStoreStub{room: &models.Classroom{ID: "room-1", Version: 3, Name: "Lab 1", Location: "A"}}
	svc := NewClassroomService(store, nil)

	room, err := svc.Update(context.Background(), "room-1", 3, models.ClassroomPatch{Name: strPtr("Lab 2")})
	require.NoError(t, err)
	require.Equal(t, int64(4), room.Version)
}

func TestClassroomUpdateVersionConflict(t *testing.T) {
	store := &classroomStoreStub{updateErr: repository.ErrVersionConflict}
	svc := NewClassroomService(store, nil)

	_, err := svc.Update(context.Background(), "room-1", 2, models.ClassroomPatch{Name: strPtr("Lab 2")})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	require.Equal(t, 409, appErr.Status)
}

func TestClassroomUpdateNotFound(t *testing.T) {
	store := &classroomStoreStub{updateErr: sql.ErrNoRows}
	svc := NewClassroomService(store, nil)

	_, err := svc.Update(context.Background(), "missing", 1, models.ClassroomPatch{Name: strPtr("Lab")})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestClassroomUpdateValidation(t *testing.T) {
	svc := NewClassroomService(&classroomStoreStub{}, nil)

	_, err := svc.Update(context.Background(), "room-1", 0, models.ClassroomPatch{})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), "room-1", 1, models.ClassroomPatch{Name: strPtr("  ")})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Update(context.Background(), "room-1", 1, models.ClassroomPatch{Capacity: intPtr(-5)})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassroomDeleteConflictVsNotFound(t *testing.T) {
	svc := NewClassroomService(&classroomStoreStub{deleteErr: repository.ErrVersionConflict}, nil)
	err := svc.Delete(context.Background(), "room-1", 1)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	svc = NewClassroomService(&classroomStoreStub{deleteErr: sql.ErrNoRows}, nil)
	err = svc.Delete(context.Background(), "room-1", 1)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
