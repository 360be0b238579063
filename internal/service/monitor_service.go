package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"golang.org/x/sync/errgroup"
)

// Monitor event types pushed to reviewers.
const (
	MonitorAttemptStarted    = "attempt_started"
	MonitorAttemptResumed    = "attempt_resumed"
	MonitorAttemptPaused     = "attempt_paused"
	MonitorAttemptSubmitted  = "attempt_submitted"
	MonitorAttemptExpired    = "attempt_expired"
	MonitorAttemptTerminated = "attempt_terminated"
	MonitorAttemptFlagged    = "attempt_flagged"
	MonitorProctoringEvent   = "proctoring_event"
	MonitorConnection        = "connection"
)

// MonitorEvent is one message on an exam's live monitor channel.
type MonitorEvent struct {
	Type      string              `json:"type"`
	AttemptID uuid.UUID           `json:"attempt_id"`
	UserID    int                 `json:"user_id,omitempty"`
	Status    model.AttemptStatus `json:"status,omitempty"`
	EventType string              `json:"event_type,omitempty"`
	Severity  model.Severity      `json:"severity,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	At        time.Time           `json:"at"`
}

// MonitorSnapshot is the full board sent when a reviewer attaches.
type MonitorSnapshot struct {
	ExamID         uuid.UUID                `json:"exam_id"`
	Attempts       []repository.LiveAttempt `json:"attempts"`
	SeverityCounts map[model.Severity]int   `json:"severity_counts"`
	TotalJoined    int                      `json:"total_joined"`
	InProgress     int                      `json:"in_progress"`
	Finished       int                      `json:"finished"`
	Flagged        int                      `json:"flagged"`
}

// MonitorService publishes live attempt activity and builds monitor snapshots.
// All methods are safe on a nil receiver, which disables monitoring.
type MonitorService struct {
	repo *repository.MonitorRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(repo *repository.MonitorRepository, rdb *redis.Client, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "monitor_service").Logger(),
	}
}

// Publish pushes an event to the exam's channel. Failures are logged only.
func (s *MonitorService) Publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent) {
	if s == nil || s.rdb == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), payload).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to publish monitor event")
	}
}

// Snapshot reads the board and the severity totals concurrently.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	snap := &MonitorSnapshot{ExamID: examID, SeverityCounts: map[model.Severity]int{}}
	if s == nil || s.repo == nil {
		return snap, nil
	}

	var severity map[model.Severity]int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Attempts, err = s.repo.ListLiveAttempts(gctx, examID)
		return err
	})
	g.Go(func() error {
		var err error
		severity, err = s.repo.CountEventsBySeverity(gctx, examID)
		if err != nil {
			// Severity totals are decoration; the board still renders without them.
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to count proctoring events")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if severity != nil {
		snap.SeverityCounts = severity
	}
	if snap.Attempts == nil {
		snap.Attempts = []repository.LiveAttempt{}
	}
	snap.TotalJoined = len(snap.Attempts)
	for _, a := range snap.Attempts {
		switch {
		case a.Status.IsOpen():
			snap.InProgress++
		case a.Status.IsTerminal():
			snap.Finished++
		}
		if a.IsFlagged {
			snap.Flagged++
		}
	}
	return snap, nil
}
