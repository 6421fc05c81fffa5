package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/classtrack-api/internal/dto"
	"github.com/noah-isme/classtrack-api/internal/service"
	appErrors "github.com/noah-isme/classtrack-api/pkg/errors"
	"github.com/noah-isme/classtrack-api/pkg/response"
)

// ArchiveHandler exposes the manual trigger for the archival pipeline.
type ArchiveHandler struct {
	scheduler *service.ArchivalScheduler
	location  *time.Location
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(scheduler *service.ArchivalScheduler, location *time.Location) *ArchiveHandler {
	if location == nil {
		location = time.UTC
	}
	return &ArchiveHandler{scheduler: scheduler, location: location}
}

// Run godoc
// @Summary Run archival pass
// @Description Trigger an aggregation pass for a target date (defaults to yesterday). Rejected with 409 when a pass is already in flight.
// @Tags Archival
// @Accept json
// @Produce json
// @Param payload body dto.RunArchivalRequest false "Optional target date"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /archival/run [post]
func (h *ArchiveHandler) Run(c *gin.Context) {
	var req dto.RunArchivalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
			return
		}
	}

	target := time.Now().In(h.location).AddDate(0, 0, -1)
	if req.Date != "" {
		parsed, err := time.ParseInLocation("2006-01-02", req.Date, h.location)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		target = parsed
	}

	generatedBy := "manual"
	if claims := claimsFromContext(c); claims != nil {
		generatedBy = "manual:" + claims.UserID
	}

	result, err := h.scheduler.Run(c.Request.Context(), target, generatedBy)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}
