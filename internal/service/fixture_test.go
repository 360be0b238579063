package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctx        context.Context
	store      *memStore
	clock      *testClock
	exams      *ExamService
	results    *ResultService
	attempts   *AttemptService
	answers    *AnswerService
	proctoring *ProctoringService
}

func newFixture(t *testing.T, cfg AttemptConfig) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := newMemStore()
	clock := &testClock{now: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}

	if cfg.ResumeTokenCost == 0 {
		cfg.ResumeTokenCost = 4
	}

	exams := NewExamService(store, nil, time.Minute, log)
	results := NewResultService(store, exams, log)
	attempts := NewAttemptService(store, exams, results, nil, cfg, log)
	answers := NewAnswerService(store, exams, attempts, log)
	proctoring := NewProctoringService(store, exams, nil, log)
	results.now, attempts.now, answers.now, proctoring.now = clock.Now, clock.Now, clock.Now, clock.Now

	return &fixture{
		ctx:        context.Background(),
		store:      store,
		clock:      clock,
		exams:      exams,
		results:    results,
		attempts:   attempts,
		answers:    answers,
		proctoring: proctoring,
	}
}

func (f *fixture) addExam(e *model.Exam) *model.Exam {
	for i := range e.Questions {
		e.Questions[i].ExamID = e.ID
	}
	f.store.exams[e.ID] = e
	return e
}

func (f *fixture) start(t *testing.T, examID uuid.UUID, userID int) *StartResult {
	t.Helper()
	res, err := f.attempts.Start(f.ctx, examID, userID, StartInput{IPAddress: "10.0.0.1", UserAgent: "test"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return res
}

func (f *fixture) attempt(t *testing.T, id uuid.UUID) model.Attempt {
	t.Helper()
	a, ok := f.store.attempts[id]
	if !ok {
		t.Fatalf("attempt %s not stored", id)
	}
	return a
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func choice(id string, correct bool) model.Option {
	return model.Option{ID: id, Text: "option " + id, IsCorrect: correct}
}

// twoQuestionExam is a single-choice question (5 marks, correct A) and a
// numeric question (5 marks, correct 10, no tolerance). Pass mark 5.
func twoQuestionExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Physics midterm",
		Status:          model.ExamStatusPublished,
		DurationMinutes: 60,
		TotalMarks:      10,
		PassMarks:       5,
		MaxAttempts:     1,
		AllowResume:     true,
		Questions: []model.Question{
			{
				ID:           uuid.New(),
				QuestionText: "Pick A",
				QuestionType: model.QuestionTypeSingleChoice,
				Options:      []model.Option{choice("A", true), choice("B", false)},
				Marks:        5,
				OrderNum:     1,
			},
			{
				ID:            uuid.New(),
				QuestionText:  "Ten?",
				QuestionType:  model.QuestionTypeNumeric,
				CorrectNumber: floatPtr(10),
				Marks:         5,
				OrderNum:      2,
			},
		},
	}
}
