package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// ExamProvider resolves read-only exam definitions.
type ExamProvider interface {
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// ExamService serves exam definitions from Redis, falling back to PostgreSQL.
// Definitions are immutable while attempts run, so a TTL cache is safe.
type ExamService struct {
	db  repository.Querier
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewExamService creates a new ExamService. A nil rdb disables caching.
func NewExamService(db repository.Querier, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ExamService {
	return &ExamService{
		db:  db,
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "exam_service").Logger(),
	}
}

// GetExam returns the exam definition with its questions and grading keys.
func (s *ExamService) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Bytes()
		switch {
		case err == nil:
			var exam model.Exam
			if err := json.Unmarshal(data, &exam); err == nil {
				return &exam, nil
			}
			s.log.Warn().Str("exam_id", id.String()).Msg("Corrupt exam cache entry, reloading")
		case !errors.Is(err, redis.Nil):
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Exam cache read failed")
		}
	}

	exam, err := s.db.GetExam(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if err := s.store(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to cache exam")
	}
	return exam, nil
}

// Invalidate drops the cached definition so the next read hits PostgreSQL.
func (s *ExamService) Invalidate(ctx context.Context, id uuid.UUID) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, config.CacheKey.ExamDefinitionKey(id.String())).Err()
}

// PrewarmAllCaches loads every open exam into Redis on startup so the first
// wave of attempt starts does not stampede PostgreSQL.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}

	ids, err := s.db.ListOpenExamIDs(ctx)
	if err != nil {
		return fmt.Errorf("list open exams: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No open exams to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		exam, err := s.db.GetExam(ctx, id)
		if err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to load exam, skipping")
			continue
		}
		if err := s.store(ctx, exam); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

// Payload builds the student-facing view of an exam in the attempt's order.
func Payload(exam *model.Exam, order []uuid.UUID) model.ExamPayload {
	idx := exam.QuestionIndex()
	questions := make([]model.QuestionForStudent, 0, len(exam.Questions))
	if len(order) == 0 {
		for i := range exam.Questions {
			questions = append(questions, exam.Questions[i].ForStudent())
		}
	} else {
		for _, id := range order {
			if q, ok := idx[id]; ok {
				questions = append(questions, q.ForStudent())
			}
		}
	}
	return model.ExamPayload{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Duration:  exam.DurationMinutes,
		Rules:     exam.CheatRules,
		Questions: questions,
	}
}

func (s *ExamService) store(ctx context.Context, exam *model.Exam) error {
	if s.rdb == nil {
		return nil
	}
	data, err := json.Marshal(exam)
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	return s.rdb.Set(ctx, config.CacheKey.ExamDefinitionKey(exam.ID.String()), data, s.ttl).Err()
}
