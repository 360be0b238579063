package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// memStore is an in-memory repository.Store. Tx serializes callers and
// restores a snapshot when fn fails, mirroring a rollback.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	exams    map[uuid.UUID]*model.Exam
	attempts map[uuid.UUID]model.Attempt
	answers  map[uuid.UUID]model.Answer
	grades   map[uuid.UUID]model.ManualGrade // by answer id
	results  map[uuid.UUID]model.Result      // by attempt id
	sessions map[uuid.UUID]model.ProctoringSession
	events   []model.ProctoringEvent

	failUpsertResult bool
}

var _ repository.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		exams:    map[uuid.UUID]*model.Exam{},
		attempts: map[uuid.UUID]model.Attempt{},
		answers:  map[uuid.UUID]model.Answer{},
		grades:   map[uuid.UUID]model.ManualGrade{},
		results:  map[uuid.UUID]model.Result{},
		sessions: map[uuid.UUID]model.ProctoringSession{},
	}
}

type memSnapshot struct {
	attempts map[uuid.UUID]model.Attempt
	answers  map[uuid.UUID]model.Answer
	grades   map[uuid.UUID]model.ManualGrade
	results  map[uuid.UUID]model.Result
	sessions map[uuid.UUID]model.ProctoringSession
	events   []model.ProctoringEvent
}

func (m *memStore) Tx(ctx context.Context, fn func(q repository.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := memSnapshot{
		attempts: maps.Clone(m.attempts),
		answers:  maps.Clone(m.answers),
		grades:   maps.Clone(m.grades),
		results:  maps.Clone(m.results),
		sessions: maps.Clone(m.sessions),
		events:   slices.Clone(m.events),
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.attempts, m.answers, m.grades = snap.attempts, snap.answers, snap.grades
		m.results, m.sessions, m.events = snap.results, snap.sessions, snap.events
		m.mu.Unlock()
		return err
	}
	return nil
}

// Exams.

func (m *memStore) GetExam(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	cp.Questions = slices.Clone(e.Questions)
	return &cp, nil
}

func (m *memStore) ListOpenExamIDs(context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, e := range m.exams {
		if e.Status.IsOpen() {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Attempts.

func (m *memStore) LockExamUser(context.Context, uuid.UUID, int) error { return nil }

func (m *memStore) GetAttempt(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.QuestionOrder = slices.Clone(a.QuestionOrder)
	return &a, nil
}

func (m *memStore) GetAttemptForUpdate(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return m.GetAttempt(ctx, id)
}

func (m *memStore) GetOpenAttempt(_ context.Context, examID uuid.UUID, userID int) (*model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.ExamID == examID && a.UserID == userID && a.Status.IsOpen() {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) CountAttempts(_ context.Context, examID uuid.UUID, userID int) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, finished := 0, 0
	for _, a := range m.attempts {
		if a.ExamID == examID && a.UserID == userID {
			total++
			if !a.Status.IsOpen() {
				finished++
			}
		}
	}
	return total, finished, nil
}

func (m *memStore) CreateAttempt(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.attempts {
		if other.ExamID == a.ExamID && other.UserID == a.UserID && other.Status.IsOpen() {
			return fmt.Errorf("%w: attempts_one_open", repository.ErrConflict)
		}
	}
	a.CreatedAt, a.UpdatedAt = a.StartedAt, a.StartedAt
	m.attempts[a.ID] = *a
	return nil
}

func (m *memStore) UpdateAttempt(_ context.Context, a *model.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; !ok {
		return repository.ErrNotFound
	}
	m.attempts[a.ID] = *a
	return nil
}

func (m *memStore) UpdateAttemptCounters(_ context.Context, id uuid.UUID, answered, marked int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.attempts[id]
	a.QuestionsAnswered, a.QuestionsMarkedForReview = answered, marked
	m.attempts[id] = a
	return nil
}

func (m *memStore) IncrementTabSwitch(_ context.Context, id uuid.UUID, threshold int, reason string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return 0, false, repository.ErrNotFound
	}
	a.TabSwitchCount++
	if threshold > 0 && a.TabSwitchCount >= threshold && !a.IsFlagged {
		a.IsFlagged = true
		a.FlagReason = &reason
	}
	m.attempts[id] = a
	return a.TabSwitchCount, a.IsFlagged, nil
}

func (m *memStore) ListExpiredAttemptIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range m.attempts {
		if a.Status == model.AttemptStatusInProgress && !a.ExpiresAt.After(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Answers.

func (m *memStore) CreateAnswers(_ context.Context, answers []model.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range answers {
		m.answers[a.ID] = a
	}
	return nil
}

func (m *memStore) GetAnswer(_ context.Context, id uuid.UUID) (*model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) GetAnswerForUpdate(_ context.Context, attemptID, questionID uuid.UUID) (*model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			return &a, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) ListAnswers(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Answer
	for _, a := range m.answers {
		if a.AttemptID == attemptID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(x, y model.Answer) int { return x.CreatedAt.Compare(y.CreatedAt) })
	return out, nil
}

func (m *memStore) UpdateAnswer(_ context.Context, a *model.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.answers[a.ID]; !ok {
		return repository.ErrNotFound
	}
	m.answers[a.ID] = *a
	return nil
}

func (m *memStore) CountAnswerFlags(_ context.Context, attemptID uuid.UUID) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	answered, marked := 0, 0
	for _, a := range m.answers {
		if a.AttemptID != attemptID {
			continue
		}
		if a.IsAnswered {
			answered++
		}
		if a.IsFlaggedForReview {
			marked++
		}
	}
	return answered, marked, nil
}

func (m *memStore) UpsertManualGrade(_ context.Context, g *model.ManualGrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.grades[g.AnswerID]; ok {
		g.ID = prev.ID
	}
	m.grades[g.AnswerID] = *g
	return nil
}

// Results.

func (m *memStore) GetResult(_ context.Context, attemptID uuid.UUID) (*model.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) UpsertResult(_ context.Context, r *model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpsertResult {
		return fmt.Errorf("upsert result: connection reset")
	}
	if prev, ok := m.results[r.AttemptID]; ok {
		r.ID = prev.ID
		r.IsPublished, r.PublishedAt, r.PublishedBy = prev.IsPublished, prev.PublishedAt, prev.PublishedBy
	}
	m.results[r.AttemptID] = *r
	return nil
}

func (m *memStore) PublishResults(_ context.Context, attemptIDs []uuid.UUID, by int, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range attemptIDs {
		r, ok := m.results[id]
		if !ok || r.IsPublished {
			continue
		}
		r.IsPublished, r.PublishedAt, r.PublishedBy = true, &at, &by
		m.results[id] = r
		n++
	}
	return n, nil
}

// Proctoring.

func (m *memStore) CreateSession(_ context.Context, s *model.ProctoringSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.AttemptID] = *s
	return nil
}

func (m *memStore) GetSession(_ context.Context, attemptID uuid.UUID) (*model.ProctoringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[attemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.ViolationSummary = maps.Clone(s.ViolationSummary)
	s.DisconnectionLog = slices.Clone(s.DisconnectionLog)
	return &s, nil
}

func (m *memStore) GetSessionForUpdate(ctx context.Context, attemptID uuid.UUID) (*model.ProctoringSession, error) {
	return m.GetSession(ctx, attemptID)
}

func (m *memStore) UpdateSession(_ context.Context, s *model.ProctoringSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.sessions[s.AttemptID]
	s.TotalViolations, s.ViolationSummary = prev.TotalViolations, prev.ViolationSummary
	m.sessions[s.AttemptID] = *s
	return nil
}

func (m *memStore) TouchSession(_ context.Context, attemptID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[attemptID]
	if !ok || s.Status != model.ProctoringSessionActive {
		return false, nil
	}
	s.LastActivityAt, s.ConnectionStatus = at, model.ConnectionStable
	m.sessions[attemptID] = s
	return true, nil
}

func (m *memStore) CloseSession(_ context.Context, attemptID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[attemptID]
	if !ok || s.Status != model.ProctoringSessionActive {
		return nil
	}
	s.Status, s.EndedAt = model.ProctoringSessionCompleted, &at
	m.sessions[attemptID] = s
	return nil
}

func (m *memStore) InsertEvent(_ context.Context, e *model.ProctoringEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) RecordViolation(_ context.Context, sessionID uuid.UUID, eventType string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.ID != sessionID {
			continue
		}
		summary := maps.Clone(s.ViolationSummary)
		if summary == nil {
			summary = map[string]int{}
		}
		summary[eventType]++
		s.ViolationSummary = summary
		s.TotalViolations++
		m.sessions[id] = s
	}
	return nil
}

func (m *memStore) ListEvents(_ context.Context, attemptID uuid.UUID) ([]model.ProctoringEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProctoringEvent
	for _, e := range m.events {
		if e.AttemptID == attemptID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) CountEventsBySeverity(_ context.Context, attemptID uuid.UUID) (map[model.Severity]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.Severity]int{}
	for _, e := range m.events {
		if e.AttemptID == attemptID {
			counts[e.Severity]++
		}
	}
	return counts, nil
}
