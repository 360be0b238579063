package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const (
	pollTimeout  = time.Second // BLPOP timeouts below one second are rounded up by Redis
	drainTimeout = 5 * time.Second
	// maxEventAge drops queued events that waited too long to describe the
	// attempt they were reported for.
	maxEventAge = 10 * time.Minute
)

// EventLogger records one client-reported proctoring event.
type EventLogger interface {
	LogEvent(ctx context.Context, attemptID uuid.UUID, userID int, req *model.LogEventRequest) *model.ProctoringEvent
}

// ProctoringWorker consumes proctoring_events_queue, filled by the WebSocket
// stream, and writes each event through the proctoring service.
type ProctoringWorker struct {
	rdb    *redis.Client
	events EventLogger
	now    func() time.Time
	log    zerolog.Logger
}

// NewProctoringWorker creates a new ProctoringWorker.
func NewProctoringWorker(rdb *redis.Client, events EventLogger, log zerolog.Logger) *ProctoringWorker {
	return &ProctoringWorker{
		rdb:    rdb,
		events: events,
		now:    time.Now,
		log:    log.With().Str("component", "proctoring_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ProctoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			w.drain(dctx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ProctoringWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, pollTimeout, config.WorkerKey.ProctoringEventsQueue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
		time.Sleep(3 * time.Second)
		return
	}
	if len(result) < 2 {
		return
	}
	w.handle(ctx, result[1])
}

// handle decodes and records one queued event. Malformed or stale entries
// cannot be retried and are dropped.
func (w *ProctoringWorker) handle(ctx context.Context, raw string) bool {
	var qe model.QueuedEvent
	if err := json.Unmarshal([]byte(raw), &qe); err != nil {
		w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed event")
		return false
	}

	l := w.log.With().
		Str("attempt_id", qe.AttemptID.String()).
		Str("event_type", qe.Event.EventType).
		Logger()

	if age := w.now().Sub(qe.ReceivedAt); age > maxEventAge {
		l.Warn().Dur("age", age).Msg("Discarding stale event")
		return false
	}

	if w.events.LogEvent(ctx, qe.AttemptID, qe.UserID, &qe.Event) == nil {
		l.Debug().Msg("Event not recorded")
		return false
	}
	return true
}

// drain records whatever is still queued before shutdown.
func (w *ProctoringWorker) drain(ctx context.Context) {
	drained := 0
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.ProctoringEventsQueue).Result()
		if err != nil {
			break
		}
		if w.handle(ctx, raw) {
			drained++
		}
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining events")
	}
}
