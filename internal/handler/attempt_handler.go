package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// AttemptHandler handles the student side of an attempt: start, answer,
// progress, submit and the published result.
type AttemptHandler struct {
	attemptService *service.AttemptService
	answerService  *service.AnswerService
	resultService  *service.ResultService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(
	attemptService *service.AttemptService,
	answerService *service.AnswerService,
	resultService *service.ResultService,
	log zerolog.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		answerService:  answerService,
		resultService:  resultService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// parseID reads a UUID path parameter, failing the request when malformed.
func parseID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// bindOptional binds a JSON body when one is present. An empty body leaves
// dst at its zero value.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		if fields := validator.Struct(dst); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return false
		}
		return true
	}
	if fields := validator.Bind(c, dst); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return false
	}
	return true
}

func requireClaims(c *gin.Context) *service.Claims {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return claims
}

// StartAttempt godoc
// POST /api/v1/student/exams/:exam_id/attempts
// Opens a new attempt, or returns the open one (200) when it already exists.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if !bindOptional(c, &req) {
		return
	}

	res, err := h.attemptService.Start(c.Request.Context(), examID, claims.UserID, service.StartInput{
		AccessCode: req.AccessCode,
		IPAddress:  c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	response.Success(c, status, res)
}

// GetSession godoc
// GET /api/v1/student/attempts/:attempt_id
// Returns the attempt with its questions, saved answers and remaining time.
// Covers page reloads.
func (h *AttemptHandler) GetSession(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	view, err := h.attemptService.GetSession(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// ResumeAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/resume
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ResumeAttemptRequest
	if !bindOptional(c, &req) {
		return
	}

	attempt, err := h.attemptService.Resume(c.Request.Context(), attemptID, claims.UserID, req.ResumeToken)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// PauseAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/pause
func (h *AttemptHandler) PauseAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.Pause(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// SaveAnswer godoc
// PUT /api/v1/student/attempts/:attempt_id/answers/:question_id
// Idempotent per question: repeated saves overwrite the same answer.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}
	questionID, ok := parseID(c, "question_id")
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.answerService.SaveAnswer(c.Request.Context(), attemptID, questionID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// UpdateProgress godoc
// PATCH /api/v1/student/attempts/:attempt_id/progress
// Records position and elapsed time; auto-submits when no time is left.
func (h *AttemptHandler) UpdateProgress(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.UpdateProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.attemptService.UpdateProgress(c.Request.Context(), attemptID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// SubmitAttempt godoc
// POST /api/v1/student/attempts/:attempt_id/submit
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	out, err := h.attemptService.Submit(c.Request.Context(), attemptID, claims.UserID, model.SubmitReasonManual)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, submittedData(out))
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
// Returns the student's own result once it has been published.
func (h *AttemptHandler) GetResult(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	res, err := h.resultService.GetStudentResult(c.Request.Context(), attemptID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}
