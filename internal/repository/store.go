package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// Repository errors. Callers compare with errors.Is.
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("record conflicts with an existing row")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Querier lists every data-access operation of the attempt engine.
// Methods named ...ForUpdate take a row lock and only make sense inside Tx.
type Querier interface {
	// Exams (read-only, owned by the authoring system).
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListOpenExamIDs(ctx context.Context) ([]uuid.UUID, error)

	// Attempts.
	LockExamUser(ctx context.Context, examID uuid.UUID, userID int) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetAttemptForUpdate(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetOpenAttempt(ctx context.Context, examID uuid.UUID, userID int) (*model.Attempt, error)
	CountAttempts(ctx context.Context, examID uuid.UUID, userID int) (total, finished int, err error)
	CreateAttempt(ctx context.Context, a *model.Attempt) error
	UpdateAttempt(ctx context.Context, a *model.Attempt) error
	UpdateAttemptCounters(ctx context.Context, id uuid.UUID, answered, marked int) error
	IncrementTabSwitch(ctx context.Context, id uuid.UUID, threshold int, reason string) (count int, flagged bool, err error)
	ListExpiredAttemptIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// Answers.
	CreateAnswers(ctx context.Context, answers []model.Answer) error
	GetAnswer(ctx context.Context, id uuid.UUID) (*model.Answer, error)
	GetAnswerForUpdate(ctx context.Context, attemptID, questionID uuid.UUID) (*model.Answer, error)
	ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	UpdateAnswer(ctx context.Context, a *model.Answer) error
	CountAnswerFlags(ctx context.Context, attemptID uuid.UUID) (answered, marked int, err error)
	UpsertManualGrade(ctx context.Context, g *model.ManualGrade) error

	// Results.
	GetResult(ctx context.Context, attemptID uuid.UUID) (*model.Result, error)
	UpsertResult(ctx context.Context, r *model.Result) error
	PublishResults(ctx context.Context, attemptIDs []uuid.UUID, by int, at time.Time) (int64, error)

	// Proctoring.
	CreateSession(ctx context.Context, s *model.ProctoringSession) error
	GetSession(ctx context.Context, attemptID uuid.UUID) (*model.ProctoringSession, error)
	GetSessionForUpdate(ctx context.Context, attemptID uuid.UUID) (*model.ProctoringSession, error)
	UpdateSession(ctx context.Context, s *model.ProctoringSession) error
	TouchSession(ctx context.Context, attemptID uuid.UUID, at time.Time) (bool, error)
	CloseSession(ctx context.Context, attemptID uuid.UUID, at time.Time) error
	InsertEvent(ctx context.Context, e *model.ProctoringEvent) error
	RecordViolation(ctx context.Context, sessionID uuid.UUID, eventType string, at time.Time) error
	ListEvents(ctx context.Context, attemptID uuid.UUID) ([]model.ProctoringEvent, error)
	CountEventsBySeverity(ctx context.Context, attemptID uuid.UUID) (map[model.Severity]int, error)
}

// Store is a Querier that can also run a function inside one transaction.
type Store interface {
	Querier
	Tx(ctx context.Context, fn func(q Querier) error) error
}

// Queries implements Querier on top of any DBTX.
type Queries struct {
	db DBTX
}

// NewQueries wraps a pool or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// PgStore is the PostgreSQL-backed Store.
type PgStore struct {
	*Queries
	pool *pgxpool.Pool
}

// NewStore creates a PgStore over the given pool.
func NewStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{Queries: NewQueries(pool), pool: pool}
}

// Tx runs fn inside a READ COMMITTED transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *PgStore) Tx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(NewQueries(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// mapErr converts driver errors into repository errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}
