package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// ReviewHandler holds the staff-only operations on attempts and results:
// intervention, manual grading and publication.
type ReviewHandler struct {
	attemptService *service.AttemptService
	resultService  *service.ResultService
	log            zerolog.Logger
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(attemptService *service.AttemptService, resultService *service.ResultService, log zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		attemptService: attemptService,
		resultService:  resultService,
		log:            log.With().Str("component", "review_handler").Logger(),
	}
}

// TerminateAttempt godoc
// POST /api/v1/staff/attempts/:attempt_id/terminate
func (h *ReviewHandler) TerminateAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.TerminateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.attemptService.Terminate(c.Request.Context(), attemptID, claims.UserID, req.Reason)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	h.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("actor_id", claims.UserID).
		Msg("Attempt terminated by staff")
	response.Success(c, http.StatusOK, out)
}

// FlagAttempt godoc
// POST /api/v1/staff/attempts/:attempt_id/flag
// Marks the attempt for review without ending it.
func (h *ReviewHandler) FlagAttempt(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.TerminateAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Flag(c.Request.Context(), attemptID, claims.UserID, req.Reason)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GradeAnswer godoc
// PUT /api/v1/staff/answers/:answer_id/grade
func (h *ReviewHandler) GradeAnswer(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	answerID, ok := parseID(c, "answer_id")
	if !ok {
		return
	}

	var req model.GradeAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := h.resultService.GradeAnswer(c.Request.Context(), answerID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, out)
}

// RecomputeResult godoc
// POST /api/v1/staff/attempts/:attempt_id/result/recompute
func (h *ReviewHandler) RecomputeResult(c *gin.Context) {
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	res, err := h.resultService.Recompute(c.Request.Context(), attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// GetResult godoc
// GET /api/v1/staff/attempts/:attempt_id/result
// Staff see results whether or not they are published.
func (h *ReviewHandler) GetResult(c *gin.Context) {
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	res, err := h.resultService.GetResult(c.Request.Context(), attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// PublishResults godoc
// POST /api/v1/staff/results/publish
// Already published results are skipped; the count covers newly published ones.
func (h *ReviewHandler) PublishResults(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}

	var req model.PublishResultsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	n, err := h.resultService.Publish(c.Request.Context(), req.AttemptIDs, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"published": n})
}
