package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const sessionColumns = `id, attempt_id, status, started_at, ended_at, last_activity_at,
	connection_status, disconnection_count, disconnection_log, total_violations,
	violation_summary, recording_duration_seconds`

func scanSession(row pgx.Row) (*model.ProctoringSession, error) {
	s := &model.ProctoringSession{}
	var logRaw, summaryRaw []byte
	err := row.Scan(&s.ID, &s.AttemptID, &s.Status, &s.StartedAt, &s.EndedAt, &s.LastActivityAt,
		&s.ConnectionStatus, &s.DisconnectionCount, &logRaw, &s.TotalViolations,
		&summaryRaw, &s.RecordingDurationSeconds)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(logRaw) > 0 {
		if err := json.Unmarshal(logRaw, &s.DisconnectionLog); err != nil {
			return nil, fmt.Errorf("decode disconnection log: %w", err)
		}
	}
	s.ViolationSummary = map[string]int{}
	if len(summaryRaw) > 0 {
		if err := json.Unmarshal(summaryRaw, &s.ViolationSummary); err != nil {
			return nil, fmt.Errorf("decode violation summary: %w", err)
		}
	}
	return s, nil
}

// CreateSession inserts the proctoring session of an attempt.
func (r *Queries) CreateSession(ctx context.Context, s *model.ProctoringSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO proctoring_sessions (id, attempt_id, status, started_at, last_activity_at,
		                                  connection_status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.AttemptID, s.Status, s.StartedAt, s.LastActivityAt, s.ConnectionStatus)
	return mapErr(err)
}

// GetSession retrieves the proctoring session of an attempt.
func (r *Queries) GetSession(ctx context.Context, attemptID uuid.UUID) (*model.ProctoringSession, error) {
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM proctoring_sessions WHERE attempt_id = $1`, attemptID))
}

// GetSessionForUpdate locks the proctoring session of an attempt.
func (r *Queries) GetSessionForUpdate(ctx context.Context, attemptID uuid.UUID) (*model.ProctoringSession, error) {
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM proctoring_sessions WHERE attempt_id = $1 FOR UPDATE`, attemptID))
}

// UpdateSession writes the connection fields of a session.
func (r *Queries) UpdateSession(ctx context.Context, s *model.ProctoringSession) error {
	logRaw, err := json.Marshal(s.DisconnectionLog)
	if err != nil {
		return fmt.Errorf("encode disconnection log: %w", err)
	}
	if s.DisconnectionLog == nil {
		logRaw = []byte("[]")
	}
	_, err = r.db.Exec(ctx,
		`UPDATE proctoring_sessions
		 SET status = $2, ended_at = $3, last_activity_at = $4, connection_status = $5,
		     disconnection_count = $6, disconnection_log = $7::jsonb,
		     recording_duration_seconds = $8
		 WHERE id = $1`,
		s.ID, s.Status, s.EndedAt, s.LastActivityAt, s.ConnectionStatus,
		s.DisconnectionCount, logRaw, s.RecordingDurationSeconds)
	return err
}

// TouchSession refreshes the heartbeat of an active session and marks the
// connection stable. It reports false when no active session exists.
func (r *Queries) TouchSession(ctx context.Context, attemptID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE proctoring_sessions SET last_activity_at = $2, connection_status = $4
		 WHERE attempt_id = $1 AND status = $3`,
		attemptID, at, model.ProctoringSessionActive, model.ConnectionStable)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CloseSession completes an active session. Closing twice is a no-op.
func (r *Queries) CloseSession(ctx context.Context, attemptID uuid.UUID, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE proctoring_sessions
		 SET status = $3, ended_at = $2,
		     recording_duration_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($2 - started_at))::int)
		 WHERE attempt_id = $1 AND status = $4`,
		attemptID, at, model.ProctoringSessionCompleted, model.ProctoringSessionActive)
	return err
}

// InsertEvent appends to the immutable event log.
func (r *Queries) InsertEvent(ctx context.Context, e *model.ProctoringEvent) error {
	data := []byte(e.EventData)
	if len(data) == 0 {
		data = []byte("{}")
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO proctoring_events (id, session_id, attempt_id, event_type, severity,
		                                event_data, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		e.ID, e.SessionID, e.AttemptID, e.EventType, e.Severity, data, e.DetectedAt)
	return mapErr(err)
}

// RecordViolation bumps the total and per-type violation counters in one
// statement so concurrent reporters never lose an increment.
func (r *Queries) RecordViolation(ctx context.Context, sessionID uuid.UUID, eventType string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE proctoring_sessions
		 SET total_violations = total_violations + 1,
		     violation_summary = jsonb_set(
		         violation_summary, ARRAY[$2::text],
		         to_jsonb(COALESCE((violation_summary ->> $2)::int, 0) + 1)),
		     last_activity_at = GREATEST(last_activity_at, $3)
		 WHERE id = $1`,
		sessionID, eventType, at)
	return err
}

// ListEvents returns the event log of an attempt in detection order.
func (r *Queries) ListEvents(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, attempt_id, event_type, severity, event_data, detected_at
		 FROM proctoring_events WHERE attempt_id = $1
		 ORDER BY detected_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ProctoringEvent
	for rows.Next() {
		var e model.ProctoringEvent
		var data []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.AttemptID, &e.EventType, &e.Severity, &data, &e.DetectedAt); err != nil {
			return nil, err
		}
		e.EventData = data
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountEventsBySeverity groups the event log of an attempt by severity.
func (r *Queries) CountEventsBySeverity(ctx context.Context, attemptID uuid.UUID) (map[model.Severity]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT severity, COUNT(*) FROM proctoring_events
		 WHERE attempt_id = $1 GROUP BY severity`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Severity]int)
	for rows.Next() {
		var sev model.Severity
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, err
		}
		counts[sev] = n
	}
	return counts, rows.Err()
}
