package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // a slow board query must not stall the stream
)

// MonitorHandler streams live attempt activity for one exam over SSE.
type MonitorHandler struct {
	rdb            *redis.Client
	examService    *service.ExamService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	examService *service.ExamService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		examService:    examService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/staff/exams/:exam_id/monitor
// Sends a snapshot, then forwards every monitor event published for the exam.
// While students are active the full board is re-sent every refreshInterval.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	if _, err := h.examService.GetExam(reqCtx, examID); err != nil {
		failService(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	hasStudents := h.sendSnapshot(c, reqCtx, examID, "snapshot")

	var ch <-chan *redis.Message
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
		defer pubsub.Close()
		ch = pubsub.Channel()
	}

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	l := h.log.With().Str("exam_id", examID.String()).Logger()
	l.Info().Msg("Reviewer attached to live monitor")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			l.Info().Msg("Reviewer detached from live monitor")
			return

		case msg, open := <-ch:
			if !open {
				return
			}
			// Events are already JSON; forward them untouched.
			writeSSEData(c, []byte(msg.Payload))
			hasStudents = true

		case <-refreshTicker.C:
			if !hasStudents {
				continue
			}
			h.sendSnapshot(c, reqCtx, examID, "refresh")

		case <-keepAliveTicker.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// sendSnapshot writes the full board and reports whether anyone has joined.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, examID uuid.UUID, typ string) bool {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.Snapshot(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to build monitor snapshot")
		return false
	}

	c.SSEvent("message", gin.H{"type": typ, "data": snap})
	c.Writer.Flush()
	return snap.TotalJoined > 0
}

func writeSSEData(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
