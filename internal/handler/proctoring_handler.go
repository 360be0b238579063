package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// ProctoringHandler exposes integrity event logging to students and the
// resulting logs to reviewers.
type ProctoringHandler struct {
	proctoringService *service.ProctoringService
	log               zerolog.Logger
}

// NewProctoringHandler creates a new ProctoringHandler.
func NewProctoringHandler(proctoringService *service.ProctoringService, log zerolog.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		proctoringService: proctoringService,
		log:               log.With().Str("component", "proctoring_handler").Logger(),
	}
}

// LogEvent godoc
// POST /api/v1/student/attempts/:attempt_id/events
// Best effort: once the payload is valid, a failed write still answers 202
// so the client never retries into a loop.
func (h *ProctoringHandler) LogEvent(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.LogEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ev := h.proctoringService.LogEvent(c.Request.Context(), attemptID, claims.UserID, &req)
	response.Success(c, http.StatusAccepted, gin.H{"logged": ev != nil})
}

// Heartbeat godoc
// POST /api/v1/student/attempts/:attempt_id/heartbeat
func (h *ProctoringHandler) Heartbeat(c *gin.Context) {
	h.touch(c, h.proctoringService.Heartbeat)
}

// ConnectionLost godoc
// POST /api/v1/student/attempts/:attempt_id/connection/lost
func (h *ProctoringHandler) ConnectionLost(c *gin.Context) {
	h.touch(c, h.proctoringService.ConnectionLost)
}

// ConnectionRestored godoc
// POST /api/v1/student/attempts/:attempt_id/connection/restored
func (h *ProctoringHandler) ConnectionRestored(c *gin.Context) {
	h.touch(c, h.proctoringService.ConnectionRestored)
}

func (h *ProctoringHandler) touch(c *gin.Context, fn func(ctx context.Context, attemptID uuid.UUID, userID int) bool) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}
	logged := fn(c.Request.Context(), attemptID, claims.UserID)
	response.Success(c, http.StatusOK, gin.H{"logged": logged})
}

// GetSessionStats godoc
// GET /api/v1/staff/attempts/:attempt_id/proctoring
func (h *ProctoringHandler) GetSessionStats(c *gin.Context) {
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	stats, err := h.proctoringService.GetSessionStats(c.Request.Context(), attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ListEvents godoc
// GET /api/v1/staff/attempts/:attempt_id/proctoring/events?page=1&per_page=100
func (h *ProctoringHandler) ListEvents(c *gin.Context) {
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	events, err := h.proctoringService.ListEvents(c.Request.Context(), attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if events == nil {
		events = []model.ProctoringEvent{}
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "100"))
	items, pagination := pageOf(events, page, perPage)
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"events": items}, pagination)
}

// pageOf slices items to the requested 1-based page. Out of range values
// fall back to page 1 and a per_page between 1 and 500.
func pageOf[T any](items []T, page, perPage int) ([]T, *response.Pagination) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 100
	}
	total := len(items)
	start := min((page-1)*perPage, total)
	end := min(start+perPage, total)

	return items[start:end], &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: (total + perPage - 1) / perPage,
	}
}
