package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/classtrack-api/internal/dto"
	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/repository"
	"github.com/noah-isme/classtrack-api/internal/service"
)

type classroomStoreMock struct {
	room      *models.Classroom
	updateErr error
	deleteErr error
}

func (m *classroomStoreMock) Create(ctx context.Context, room *models.Classroom) error {
	room.ID = "room-1"
	room.Version = 1
	m.room = room
	return nil
}

func (m *classroomStoreMock) GetByID(ctx context.Context, id string) (*models.Classroom, error) {
	return m.room, nil
}

func (m *classroomStoreMock) List(ctx context.Context, filter models.ClassroomFilter) ([]models.Classroom, int, error) {
	return []models.Classroom{*m.room}, 1, nil
}

func (m *classroomStoreMock) Update(ctx context.Context, id string, expectedVersion int64, patch models.ClassroomPatch) (*models.Classroom, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	updated := *m.room
	updated.Version = expectedVersion + 1
	return &updated, nil
}

func (m *classroomStoreMock) Delete(ctx context.Context, id string, expectedVersion int64) error {
	return m.deleteErr
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestClassroomHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &classroomStoreMock{}
	handler := NewClassroomHandler(service.NewClassroomService(store, nil))

	payload, _ := json.Marshal(dto.CreateClassroomRequest{
		Name:     "Lab 3",
		Location: "Building B",
		Capacity: 32,
	})
	c, w := newGinContext(http.MethodPost, "/classrooms", payload)

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.Classroom `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "room-1", envelope.Data.ID)
	require.Equal(t, int64(1), envelope.Data.Version)
	require.True(t, envelope.Data.Active)
}

func TestClassroomHandlerCreateInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewClassroomHandler(service.NewClassroomService(&classroomStoreMock{}, nil))

	c, w := newGinContext(http.MethodPost, "/classrooms", []byte("{not json"))

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassroomHandlerUpdateVersionConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &classroomStoreMock{
		room:      &models.Classroom{ID: "room-1", Version: 3, Name: "Lab 3", Location: "Building B"},
		updateErr: repository.ErrVersionConflict,
	}
	handler := NewClassroomHandler(service.NewClassroomService(store, nil))

	name := "Lab 3 renamed"
	payload, _ := json.Marshal(dto.UpdateClassroomRequest{ExpectedVersion: 2, Name: &name})
	c, w := newGinContext(http.MethodPatch, "/classrooms/room-1", payload)
	c.Params = gin.Params{{Key: "id", Value: "room-1"}}

	handler.Update(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestClassroomHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &classroomStoreMock{room: &models.Classroom{ID: "room-1", Version: 2}}
	handler := NewClassroomHandler(service.NewClassroomService(store, nil))

	payload, _ := json.Marshal(dto.DeleteRequest{ExpectedVersion: 2})
	c, w := newGinContext(http.MethodDelete, "/classrooms/room-1", payload)
	c.Params = gin.Params{{Key: "id", Value: "room-1"}}

	handler.Delete(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "room-1", envelope.Data["id"])
	require.Equal(t, true, envelope.Data["deleted"])
}
