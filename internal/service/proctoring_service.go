package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"golang.org/x/sync/errgroup"
)

// TabSwitchFlagReason is recorded when an attempt crosses the tab-switch limit.
const TabSwitchFlagReason = "Exceeded maximum allowed tab switches"

// ProctoringService tracks liveness and violations of monitored attempts.
// Student-facing calls are best-effort: they log failures and report them as
// a nil event or false, never as an error.
type ProctoringService struct {
	store   repository.Store
	exams   ExamProvider
	monitor *MonitorService
	log     zerolog.Logger
	now     func() time.Time
}

// NewProctoringService creates a new ProctoringService.
func NewProctoringService(store repository.Store, exams ExamProvider, monitor *MonitorService, log zerolog.Logger) *ProctoringService {
	return &ProctoringService{
		store:   store,
		exams:   exams,
		monitor: monitor,
		log:     log.With().Str("component", "proctoring_service").Logger(),
		now:     time.Now,
	}
}

// SessionStats is the reviewer aggregate of one attempt's proctoring.
type SessionStats struct {
	AttemptID          uuid.UUID                     `json:"attempt_id"`
	SessionStatus      model.ProctoringSessionStatus `json:"session_status"`
	ConnectionStatus   model.ConnectionStatus        `json:"connection_status"`
	LastActivityAt     time.Time                     `json:"last_activity_at"`
	TotalViolations    int                           `json:"total_violations"`
	ViolationSummary   map[string]int                `json:"violation_summary"`
	SeverityBreakdown  map[model.Severity]int        `json:"severity_breakdown"`
	DisconnectionCount int                           `json:"disconnection_count"`
	TabSwitchCount     int                           `json:"tab_switch_count"`
	IsFlagged          bool                          `json:"is_flagged"`
	FlagReason         *string                       `json:"flag_reason,omitempty"`
}

func newSession(attemptID uuid.UUID, now time.Time) *model.ProctoringSession {
	return &model.ProctoringSession{
		ID:               uuid.New(),
		AttemptID:        attemptID,
		Status:           model.ProctoringSessionActive,
		StartedAt:        now,
		LastActivityAt:   now,
		ConnectionStatus: model.ConnectionStable,
		ViolationSummary: map[string]int{},
	}
}

// owned loads the attempt and checks ownership. userID 0 skips the check.
func (s *ProctoringService) owned(ctx context.Context, attemptID uuid.UUID, userID int) (*model.Attempt, bool) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to load attempt")
		}
		return nil, false
	}
	if userID != 0 && a.UserID != userID {
		return nil, false
	}
	return a, true
}

// Heartbeat refreshes liveness and marks the connection stable. It reports
// whether an active session was touched.
func (s *ProctoringService) Heartbeat(ctx context.Context, attemptID uuid.UUID, userID int) bool {
	if _, ok := s.owned(ctx, attemptID, userID); !ok {
		return false
	}
	touched, err := s.store.TouchSession(ctx, attemptID, s.now())
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Heartbeat failed")
		return false
	}
	return touched
}

// ConnectionLost marks the session disconnected and emits a critical event.
func (s *ProctoringService) ConnectionLost(ctx context.Context, attemptID uuid.UUID, userID int) bool {
	return s.toggleConnection(ctx, attemptID, userID, model.ConnectionDisconnected)
}

// ConnectionRestored marks the session stable again and emits an info event.
func (s *ProctoringService) ConnectionRestored(ctx context.Context, attemptID uuid.UUID, userID int) bool {
	return s.toggleConnection(ctx, attemptID, userID, model.ConnectionStable)
}

func (s *ProctoringService) toggleConnection(ctx context.Context, attemptID uuid.UUID, userID int, to model.ConnectionStatus) bool {
	a, ok := s.owned(ctx, attemptID, userID)
	if !ok {
		return false
	}

	eventType := model.EventNetworkReconnect
	if to == model.ConnectionDisconnected {
		eventType = model.EventNetworkDisconnect
	}

	var ev *model.ProctoringEvent
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		sess, err := q.GetSessionForUpdate(ctx, attemptID)
		if err != nil {
			return err
		}
		if sess.Status != model.ProctoringSessionActive {
			return repository.ErrNotFound
		}

		now := s.now()
		sess.LastActivityAt = now
		if sess.ConnectionStatus == to {
			return q.UpdateSession(ctx, sess)
		}

		sess.ConnectionStatus = to
		sess.DisconnectionLog = append(sess.DisconnectionLog, model.DisconnectionEntry{Event: eventType, At: now})
		if to == model.ConnectionDisconnected {
			sess.DisconnectionCount++
		}
		if err := q.UpdateSession(ctx, sess); err != nil {
			return err
		}

		ev = &model.ProctoringEvent{
			ID:         uuid.New(),
			SessionID:  &sess.ID,
			AttemptID:  attemptID,
			EventType:  eventType,
			Severity:   model.DefaultSeverity(eventType),
			DetectedAt: now,
		}
		return recordEvent(ctx, q, ev)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Failed to record connection change")
		}
		return false
	}

	if ev != nil {
		s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
			Type:      MonitorConnection,
			AttemptID: attemptID,
			UserID:    a.UserID,
			EventType: ev.EventType,
			Severity:  ev.Severity,
			At:        ev.DetectedAt,
		})
	}
	return true
}

// LogEvent appends a client-reported event to the attempt's log. It returns
// nil without error when the attempt has no active session or anything fails.
// Tab switches also bump the attempt counter and flag it once the exam's limit
// is reached.
func (s *ProctoringService) LogEvent(ctx context.Context, attemptID uuid.UUID, userID int, req *model.LogEventRequest) *model.ProctoringEvent {
	a, ok := s.owned(ctx, attemptID, userID)
	if !ok {
		return nil
	}
	l := s.log.With().Str("attempt_id", attemptID.String()).Str("event_type", req.EventType).Logger()

	severity := req.Severity
	if !severity.Valid() {
		severity = model.DefaultSeverity(req.EventType)
	}

	ev := &model.ProctoringEvent{
		ID:         uuid.New(),
		AttemptID:  attemptID,
		EventType:  req.EventType,
		Severity:   severity,
		EventData:  req.EventData,
		DetectedAt: s.now(),
	}
	if len(ev.EventData) > 0 && !json.Valid(ev.EventData) {
		ev.EventData = nil
	}

	err := s.store.Tx(ctx, func(q repository.Querier) error {
		sess, err := q.GetSession(ctx, attemptID)
		if err != nil {
			return err
		}
		if sess.Status != model.ProctoringSessionActive {
			return repository.ErrNotFound
		}
		ev.SessionID = &sess.ID
		return recordEvent(ctx, q, ev)
	})
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			l.Warn().Err(err).Msg("Failed to log proctoring event")
		}
		return nil
	}

	if req.EventType == model.EventTabSwitch {
		s.countTabSwitch(ctx, a, l)
	}

	s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
		Type:      MonitorProctoringEvent,
		AttemptID: attemptID,
		UserID:    a.UserID,
		EventType: ev.EventType,
		Severity:  ev.Severity,
		At:        ev.DetectedAt,
	})
	return ev
}

// countTabSwitch runs outside the event transaction as one atomic UPDATE, so
// the event is logged without holding the attempt lock. The UPDATE itself may
// wait briefly for an answer save or submit that holds the row.
func (s *ProctoringService) countTabSwitch(ctx context.Context, a *model.Attempt, l zerolog.Logger) {
	threshold := 0
	if exam, err := s.exams.GetExam(ctx, a.ExamID); err == nil {
		threshold = exam.CheatRules.MaxTabSwitchesAllowed
	} else {
		l.Warn().Err(err).Msg("Failed to load exam for tab-switch threshold")
	}

	count, flagged, err := s.store.IncrementTabSwitch(ctx, a.ID, threshold, TabSwitchFlagReason)
	if err != nil {
		l.Warn().Err(err).Msg("Failed to count tab switch")
		return
	}
	if flagged && !a.IsFlagged {
		l.Info().
			Str("exam_id", a.ExamID.String()).
			Int("user_id", a.UserID).
			Int("tab_switches", count).
			Msg("Attempt flagged for tab switching")
		s.monitor.Publish(ctx, a.ExamID, MonitorEvent{
			Type:      MonitorAttemptFlagged,
			AttemptID: a.ID,
			UserID:    a.UserID,
			Detail:    TabSwitchFlagReason,
			At:        s.now(),
		})
	}
}

// recordEvent inserts an event and counts it toward the session's violations.
func recordEvent(ctx context.Context, q repository.Querier, ev *model.ProctoringEvent) error {
	if err := q.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if ev.SessionID == nil {
		return nil
	}
	if err := q.RecordViolation(ctx, *ev.SessionID, ev.EventType, ev.DetectedAt); err != nil {
		return fmt.Errorf("record violation: %w", err)
	}
	return nil
}

// GetSessionStats gathers the session, its severity breakdown and the
// attempt counters concurrently.
func (s *ProctoringService) GetSessionStats(ctx context.Context, attemptID uuid.UUID) (*SessionStats, error) {
	var (
		sess     *model.ProctoringSession
		severity map[model.Severity]int
		attempt  *model.Attempt
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sess, err = s.store.GetSession(gctx, attemptID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	})
	g.Go(func() error {
		var err error
		severity, err = s.store.CountEventsBySeverity(gctx, attemptID)
		return err
	})
	g.Go(func() error {
		var err error
		attempt, err = getAttempt(gctx, s.store, attemptID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &SessionStats{
		AttemptID:          attemptID,
		SessionStatus:      sess.Status,
		ConnectionStatus:   sess.ConnectionStatus,
		LastActivityAt:     sess.LastActivityAt,
		TotalViolations:    sess.TotalViolations,
		ViolationSummary:   sess.ViolationSummary,
		SeverityBreakdown:  severity,
		DisconnectionCount: sess.DisconnectionCount,
		TabSwitchCount:     attempt.TabSwitchCount,
		IsFlagged:          attempt.IsFlagged,
		FlagReason:         attempt.FlagReason,
	}, nil
}

// ListEvents returns the attempt's event log for reviewers.
func (s *ProctoringService) ListEvents(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringEvent, error) {
	if _, err := getAttempt(ctx, s.store, attemptID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.ProctoringEvent{}
	}
	return events, nil
}
