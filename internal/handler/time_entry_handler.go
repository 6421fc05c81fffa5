package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classtrack-api/internal/dto"
	"github.com/noah-isme/classtrack-api/internal/models"
	"github.com/noah-isme/classtrack-api/internal/service"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
	"github.com/noah-isme/classtrack-api/pkg/response"
)

// TimeEntryHandler handles classroom usage record endpoints.
type TimeEntryHandler struct {
	service *service.TimeEntryService
}

// NewTimeEntryHandler creates a new time entry handler.
func NewTimeEntryHandler(svc *service.TimeEntryService) *TimeEntryHandler {
	return &TimeEntryHandler{service: svc}
}

// Create godoc
// @Summary Record time entry
// @Description Record a time-in event against a classroom
// @Tags TimeEntries
// @Accept json
// @Produce json
// @Param payload body dto.CreateTimeEntryRequest true "Time entry payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /time-entries [post]
func (h *TimeEntryHandler) Create(c *gin.Context) {
	var req dto.CreateTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}

	entry, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}

// Get godoc
// @Summary Get time entry
// @Tags TimeEntries
// @Produce json
// @Param id path string true "Entry ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /time-entries/{id} [get]
func (h *TimeEntryHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entry, nil)
}

// List godoc
// @Summary List time entries
// @Description List usage records with pagination and filtering
// @Tags TimeEntries
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param user_id query string false "User filter"
// @Param classroom_id query string false "Classroom filter"
// @Param status query string false "Status filter"
// @Param archived query bool false "Archived filter"
// @Param date_from query string false "Start date (YYYY-MM-DD)"
// @Param date_to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /time-entries [get]
func (h *TimeEntryHandler) List(c *gin.Context) {
	var filter models.TimeEntryFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}
	filter.UserID = c.Query("user_id")
	filter.ClassroomID = c.Query("classroom_id")
	if status := c.Query("status"); status != "" {
		s := models.TimeEntryStatus(status)
		filter.Status = &s
	}
	if archived := c.Query("archived"); archived != "" {
		if val, err := strconv.ParseBool(archived); err == nil {
			filter.Archived = &val
		}
	}
	if from := c.Query("date_from"); from != "" {
		if ts, err := time.Parse("2006-01-02", from); err == nil {
			filter.DateFrom = &ts
		}
	}
	if to := c.Query("date_to"); to != "" {
		if ts, err := time.Parse("2006-01-02", to); err == nil {
			filter.DateTo = &ts
		}
	}

	entries, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, pagination)
}

// SetStatus godoc
// @Summary Review time entry
// @Description Verify or reject an entry; the payload must carry the version the caller read
// @Tags TimeEntries
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.SetTimeEntryStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /time-entries/{id}/status [patch]
func (h *TimeEntryHandler) SetStatus(c *gin.Context) {
	var req dto.SetTimeEntryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}

	entry, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entry, nil)
}

// Checkout godoc
// @Summary Check out of classroom
// @Description Close an open entry by recording its time-out timestamp
// @Tags TimeEntries
// @Accept json
// @Produce json
// @Param id path string true "Entry ID"
// @Param payload body dto.CheckoutTimeEntryRequest true "Checkout payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /time-entries/{id}/checkout [patch]
func (h *TimeEntryHandler) Checkout(c *gin.Context) {
	var req dto.CheckoutTimeEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}

	entry, err := h.service.Checkout(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entry, nil)
}
