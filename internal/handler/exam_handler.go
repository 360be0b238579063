package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// ExamHandler exposes the cached exam definitions to staff.
type ExamHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		examService: examService,
		log:         log.With().Str("component", "exam_handler").Logger(),
	}
}

// GetExam godoc
// GET /api/v1/staff/exams/:exam_id
// Returns the full definition, answer keys included, as the engine sees it.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// RefreshExamCache godoc
// POST /api/v1/staff/exams/:exam_id/cache/refresh
// Drops the cached definition and reloads it from the database. Authoring
// tools call this after editing an exam.
func (h *ExamHandler) RefreshExamCache(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.examService.Invalidate(ctx, examID); err != nil {
		failService(c, h.log, err)
		return
	}
	exam, err := h.examService.GetExam(ctx, examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	h.log.Info().Str("exam_id", examID.String()).Msg("Exam cache refreshed")
	response.Success(c, http.StatusOK, gin.H{
		"exam_id":        exam.ID,
		"status":         exam.Status,
		"question_count": len(exam.Questions),
	})
}
