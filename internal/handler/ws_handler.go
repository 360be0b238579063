package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

const disconnectTimeout = 5 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler carries a running attempt over one WebSocket: answers, progress,
// heartbeats, proctoring events and the final submit.
type WSHandler struct {
	rdb               *redis.Client
	attemptService    *service.AttemptService
	answerService     *service.AnswerService
	proctoringService *service.ProctoringService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	rdb *redis.Client,
	attemptService *service.AttemptService,
	answerService *service.AnswerService,
	proctoringService *service.ProctoringService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		rdb:               rdb,
		attemptService:    attemptService,
		answerService:     answerService,
		proctoringService: proctoringService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// wsConn is the per-connection state shared by the action handlers.
type wsConn struct {
	conn      *websocket.Conn
	attemptID uuid.UUID
	userID    int
	log       zerolog.Logger
	finished  bool
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// The attempt must be in progress; the first message is the session view.
// Closing the socket without submitting records a connection loss.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := requireClaims(c)
	if claims == nil {
		return
	}
	attemptID, ok := parseID(c, "attempt_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	view, err := h.attemptService.GetSession(ctx, attemptID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if view.Attempt.Status != model.AttemptStatusInProgress {
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotActive)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s := &wsConn{
		conn:      conn,
		attemptID: attemptID,
		userID:    claims.UserID,
		log: h.log.With().
			Int("user_id", claims.UserID).
			Str("attempt_id", attemptID.String()).
			Logger(),
	}
	s.log.Info().Msg("Student connected")

	h.proctoringService.ConnectionRestored(ctx, attemptID, claims.UserID)
	defer func() {
		if s.finished {
			return
		}
		// The request context dies with the socket; record the loss anyway.
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
		defer cancel()
		h.proctoringService.ConnectionLost(dctx, attemptID, claims.UserID)
	}()

	ws.WriteJSON(conn, ws.EventSession, "", view)

	for !s.finished {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, s, &msg)
		case ws.ActionProgress:
			h.handleProgress(ctx, s, &msg)
		case ws.ActionHeartbeat:
			logged := h.proctoringService.Heartbeat(ctx, attemptID, claims.UserID)
			ws.WriteJSON(conn, ws.EventAccepted, msg.RequestID, gin.H{"logged": logged})
		case ws.ActionEvent:
			h.handleEvent(ctx, s, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, s, &msg)
		case ws.ActionPing:
			ws.WriteJSON(conn, ws.EventPong, msg.RequestID, nil)
		default:
			s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, msg.RequestID, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		}
	}
	s.log.Info().Msg("Attempt finished, closing stream")
}

func (h *WSHandler) handleAutosave(ctx context.Context, s *wsConn, msg *ws.RequestPayload) {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil || msg.Answer == nil {
		ws.WriteError(s.conn, msg.RequestID, string(response.ErrInvalidPayload), "question_id and answer are required")
		return
	}
	if !validPayload(s, msg.RequestID, msg.Answer) {
		return
	}

	answer, err := h.answerService.SaveAnswer(ctx, s.attemptID, questionID, s.userID, msg.Answer)
	if err != nil {
		h.writeServiceError(s, msg.RequestID, err)
		return
	}
	ws.WriteJSON(s.conn, ws.EventSaved, msg.RequestID, answer)
}

func (h *WSHandler) handleProgress(ctx context.Context, s *wsConn, msg *ws.RequestPayload) {
	if msg.Progress == nil {
		ws.WriteError(s.conn, msg.RequestID, string(response.ErrInvalidPayload), "progress is required")
		return
	}
	if !validPayload(s, msg.RequestID, msg.Progress) {
		return
	}

	out, err := h.attemptService.UpdateProgress(ctx, s.attemptID, s.userID, msg.Progress)
	if err != nil {
		h.writeServiceError(s, msg.RequestID, err)
		return
	}
	if out.Attempt.Status.IsTerminal() {
		s.finished = true
		ws.WriteJSON(s.conn, ws.EventSubmitted, msg.RequestID, submittedData(out))
		return
	}
	ws.WriteJSON(s.conn, ws.EventProgress, msg.RequestID, out)
}

// handleEvent queues the event for the proctoring worker so a burst of
// client reports never blocks the socket. Without Redis it is logged inline.
func (h *WSHandler) handleEvent(ctx context.Context, s *wsConn, msg *ws.RequestPayload) {
	if msg.Event == nil {
		ws.WriteError(s.conn, msg.RequestID, string(response.ErrInvalidPayload), "event is required")
		return
	}
	if !validPayload(s, msg.RequestID, msg.Event) {
		return
	}

	if h.rdb != nil {
		payload, err := json.Marshal(model.QueuedEvent{
			AttemptID:  s.attemptID,
			UserID:     s.userID,
			Event:      *msg.Event,
			ReceivedAt: time.Now().UTC(),
		})
		if err == nil {
			err = h.rdb.RPush(ctx, config.WorkerKey.ProctoringEventsQueue, payload).Err()
		}
		if err == nil {
			ws.WriteJSON(s.conn, ws.EventAccepted, msg.RequestID, gin.H{"queued": true})
			return
		}
		s.log.Warn().Err(err).Msg("Failed to queue proctoring event, logging inline")
	}

	ev := h.proctoringService.LogEvent(ctx, s.attemptID, s.userID, msg.Event)
	ws.WriteJSON(s.conn, ws.EventAccepted, msg.RequestID, gin.H{"logged": ev != nil})
}

func (h *WSHandler) handleSubmit(ctx context.Context, s *wsConn, msg *ws.RequestPayload) {
	out, err := h.attemptService.Submit(ctx, s.attemptID, s.userID, model.SubmitReasonManual)
	if err != nil {
		h.writeServiceError(s, msg.RequestID, err)
		return
	}
	s.finished = true
	s.log.Info().Str("status", string(out.Attempt.Status)).Msg("Attempt submitted over WebSocket")
	ws.WriteJSON(s.conn, ws.EventSubmitted, msg.RequestID, submittedData(out))
}

func (h *WSHandler) writeServiceError(s *wsConn, requestID string, err error) {
	f, message, ok := describe(err)
	if !ok {
		s.log.Error().Err(err).Msg("WebSocket action failed")
	}
	// Once the attempt is over there is nothing left to stream.
	if errors.Is(err, service.ErrAttemptExpired) || errors.Is(err, service.ErrAlreadySubmitted) ||
		errors.Is(err, service.ErrAttemptNotActive) {
		s.finished = true
	}
	ws.WriteError(s.conn, requestID, string(f.code), message)
}

func validPayload(s *wsConn, requestID string, v any) bool {
	fields := validator.Struct(v)
	if fields == nil {
		return true
	}
	ws.WriteTyped(s.conn, ws.ErrorResponse{
		Event:     ws.EventError,
		RequestID: requestID,
		Code:      string(response.ErrValidation),
		Error:     formatFields(fields),
	})
	return false
}

// formatFields flattens validation messages into one line, sorted by field.
func formatFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}

// submittedData hides marks from the student until results are published.
func submittedData(out *service.SubmitResult) gin.H {
	return gin.H{
		"attempt":      out.Attempt,
		"result_ready": out.Result != nil,
	}
}
