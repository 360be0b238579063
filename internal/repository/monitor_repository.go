package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// LiveAttempt is one row of the live monitor board.
type LiveAttempt struct {
	AttemptID         uuid.UUID           `json:"attempt_id"`
	UserID            int                 `json:"user_id"`
	Status            model.AttemptStatus `json:"status"`
	QuestionsAnswered int                 `json:"questions_answered"`
	TabSwitchCount    int                 `json:"tab_switch_count"`
	IsFlagged         bool                `json:"is_flagged"`
	ConnectionStatus  *string             `json:"connection_status,omitempty"`
	TotalViolations   int                 `json:"total_violations"`
}

// MonitorRepository serves the read-heavy queries of the live monitor.
// It reads straight from the pool and never takes locks.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListLiveAttempts returns the latest attempt of every user on an exam along
// with its proctoring counters.
func (r *MonitorRepository) ListLiveAttempts(ctx context.Context, examID uuid.UUID) ([]LiveAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT ON (a.user_id)
		        a.id, a.user_id, a.status, a.questions_answered, a.tab_switch_count, a.is_flagged,
		        ps.connection_status, COALESCE(ps.total_violations, 0)
		 FROM attempts a
		 LEFT JOIN proctoring_sessions ps ON ps.attempt_id = a.id
		 WHERE a.exam_id = $1
		 ORDER BY a.user_id, a.attempt_number DESC`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LiveAttempt
	for rows.Next() {
		var la LiveAttempt
		if err := rows.Scan(&la.AttemptID, &la.UserID, &la.Status, &la.QuestionsAnswered,
			&la.TabSwitchCount, &la.IsFlagged, &la.ConnectionStatus, &la.TotalViolations); err != nil {
			return nil, err
		}
		out = append(out, la)
	}
	return out, rows.Err()
}

// CountEventsBySeverity returns severity totals across all attempts of an exam.
func (r *MonitorRepository) CountEventsBySeverity(ctx context.Context, examID uuid.UUID) (map[model.Severity]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.severity, COUNT(*)
		 FROM proctoring_events e
		 JOIN attempts a ON a.id = e.attempt_id
		 WHERE a.exam_id = $1
		 GROUP BY e.severity`,
		examID,
	)
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
