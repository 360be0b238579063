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

const attemptColumns = `id, exam_id, user_id, attempt_number, status, started_at, expires_at,
	time_remaining_seconds, current_question_index, question_order, questions_answered,
	questions_marked_for_review, tab_switch_count, is_flagged, flag_reason, submitted_at,
	submit_reason, terminated_by, termination_reason, ip_address, user_agent,
	resume_token_hash, created_at, updated_at`

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var order []byte
	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &a.AttemptNumber, &a.Status, &a.StartedAt, &a.ExpiresAt,
		&a.TimeRemainingSeconds, &a.CurrentQuestionIndex, &order, &a.QuestionsAnswered,
		&a.QuestionsMarkedForReview, &a.TabSwitchCount, &a.IsFlagged, &a.FlagReason, &a.SubmittedAt,
		&a.SubmitReason, &a.TerminatedBy, &a.TerminationReason, &a.IPAddress, &a.UserAgent,
		&a.ResumeTokenHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(order) > 0 {
		if err := json.Unmarshal(order, &a.QuestionOrder); err != nil {
			return nil, fmt.Errorf("decode question order: %w", err)
		}
	}
	return a, nil
}

// LockExamUser serializes attempt creation for one (exam, user) pair for the
// rest of the current transaction.
func (r *Queries) LockExamUser(ctx context.Context, examID uuid.UUID, userID int) error {
	_, err := r.db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`,
		examID.String(), userID)
	return err
}

// GetAttempt retrieves an attempt without locking.
func (r *Queries) GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetAttemptForUpdate retrieves an attempt and holds its row lock until the
// transaction ends. Every state transition re-reads status through here.
func (r *Queries) GetAttemptForUpdate(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1 FOR UPDATE`, id))
}

// GetOpenAttempt returns the in_progress or paused attempt of a user on an exam.
func (r *Queries) GetOpenAttempt(ctx context.Context, examID uuid.UUID, userID int) (*model.Attempt, error) {
	return scanAttempt(r.db.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE exam_id = $1 AND user_id = $2 AND status IN ($3, $4)`,
		examID, userID, model.AttemptStatusInProgress, model.AttemptStatusPaused))
}

// CountAttempts returns how many attempts a user has on an exam in total and
// how many of them reached a terminal status.
func (r *Queries) CountAttempts(ctx context.Context, examID uuid.UUID, userID int) (int, int, error) {
	var total, finished int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status NOT IN ($3, $4))
		 FROM attempts WHERE exam_id = $1 AND user_id = $2`,
		examID, userID, model.AttemptStatusInProgress, model.AttemptStatusPaused,
	).Scan(&total, &finished)
	return total, finished, err
}

// CreateAttempt inserts a new attempt. The partial unique index on open
// attempts turns a duplicate start into ErrConflict.
func (r *Queries) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	order, err := json.Marshal(a.QuestionOrder)
	if err != nil {
		return fmt.Errorf("encode question order: %w", err)
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, user_id, attempt_number, status, started_at, expires_at,
		                       time_remaining_seconds, current_question_index, question_order,
		                       ip_address, user_agent, resume_token_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9::jsonb, $10, $11, $12)
		 RETURNING created_at, updated_at`,
		a.ID, a.ExamID, a.UserID, a.AttemptNumber, a.Status, a.StartedAt, a.ExpiresAt,
		a.TimeRemainingSeconds, order, a.IPAddress, a.UserAgent, a.ResumeTokenHash,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return mapErr(err)
}

// UpdateAttempt writes every mutable attempt field.
func (r *Queries) UpdateAttempt(ctx context.Context, a *model.Attempt) error {
	err := r.db.QueryRow(ctx,
		`UPDATE attempts
		 SET status = $2, time_remaining_seconds = $3, current_question_index = $4,
		     questions_answered = $5, questions_marked_for_review = $6, tab_switch_count = $7,
		     is_flagged = $8, flag_reason = $9, submitted_at = $10, submit_reason = $11,
		     terminated_by = $12, termination_reason = $13, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		a.ID, a.Status, a.TimeRemainingSeconds, a.CurrentQuestionIndex,
		a.QuestionsAnswered, a.QuestionsMarkedForReview, a.TabSwitchCount,
		a.IsFlagged, a.FlagReason, a.SubmittedAt, a.SubmitReason,
		a.TerminatedBy, a.TerminationReason,
	).Scan(&a.UpdatedAt)
	return mapErr(err)
}

// UpdateAttemptCounters stores freshly aggregated answer counters.
func (r *Queries) UpdateAttemptCounters(ctx context.Context, id uuid.UUID, answered, marked int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE attempts
		 SET questions_answered = $2, questions_marked_for_review = $3, updated_at = NOW()
		 WHERE id = $1`, id, answered, marked)
	return err
}

// IncrementTabSwitch bumps the tab-switch counter in one statement and flags
// the attempt once the threshold (if positive) is reached.
func (r *Queries) IncrementTabSwitch(ctx context.Context, id uuid.UUID, threshold int, reason string) (int, bool, error) {
	var count int
	var flagged bool
	err := r.db.QueryRow(ctx,
		`UPDATE attempts
		 SET tab_switch_count = tab_switch_count + 1,
		     flag_reason = CASE WHEN $2 > 0 AND tab_switch_count + 1 >= $2 AND NOT is_flagged
		                        THEN $3 ELSE flag_reason END,
		     is_flagged = is_flagged OR ($2 > 0 AND tab_switch_count + 1 >= $2),
		     updated_at = NOW()
		 WHERE id = $1
		 RETURNING tab_switch_count, is_flagged`,
		id, threshold, reason,
	).Scan(&count, &flagged)
	return count, flagged, mapErr(err)
}

// ListExpiredAttemptIDs finds in_progress attempts whose deadline passed.
func (r *Queries) ListExpiredAttemptIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM attempts
		 WHERE status = $1 AND expires_at <= $2
		 ORDER BY expires_at
		 LIMIT $3`, model.AttemptStatusInProgress, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
