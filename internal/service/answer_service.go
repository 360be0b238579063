package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/grading"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// AnswerService persists student answers for running attempts.
type AnswerService struct {
	store    repository.Store
	exams    ExamProvider
	attempts *AttemptService
	log      zerolog.Logger
	now      func() time.Time
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(store repository.Store, exams ExamProvider, attempts *AttemptService, log zerolog.Logger) *AnswerService {
	return &AnswerService{
		store:    store,
		exams:    exams,
		attempts: attempts,
		log:      log.With().Str("component", "answer_service").Logger(),
		now:      time.Now,
	}
}

// SaveAnswer writes one question's answer. Only the field matching the
// question type is kept. Saving is idempotent per question: repeated saves
// overwrite the same row and bump its change counter.
func (s *AnswerService) SaveAnswer(ctx context.Context, attemptID, questionID uuid.UUID, userID int, req *model.SaveAnswerRequest) (*model.AnswerForStudent, error) {
	a, err := s.attempts.ensureActive(ctx, attemptID, userID)
	if err != nil {
		return nil, err
	}
	exam, err := s.exams.GetExam(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}
	question := exam.Question(questionID)
	if question == nil {
		return nil, ErrQuestionNotInAttempt
	}
	if err := validatePayload(question, req); err != nil {
		return nil, err
	}

	var saved *model.Answer
	err = s.store.Tx(ctx, func(q repository.Querier) error {
		locked, err := lockAttempt(ctx, q, attemptID)
		if err != nil {
			return err
		}
		now := s.now()
		if locked.Status != model.AttemptStatusInProgress {
			return ErrAttemptNotActive
		}
		if locked.ExpiredAt(now) {
			return ErrAttemptExpired
		}

		ans, err := q.GetAnswerForUpdate(ctx, attemptID, questionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrQuestionNotInAttempt
			}
			return fmt.Errorf("lock answer: %w", err)
		}

		applyAnswer(question.QuestionType, ans, req, now)
		if err := q.UpdateAnswer(ctx, ans); err != nil {
			return fmt.Errorf("update answer: %w", err)
		}

		answered, marked, err := q.CountAnswerFlags(ctx, attemptID)
		if err != nil {
			return fmt.Errorf("count answers: %w", err)
		}
		if err := q.UpdateAttemptCounters(ctx, attemptID, answered, marked); err != nil {
			return fmt.Errorf("update counters: %w", err)
		}
		saved = ans
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("attempt_id", attemptID.String()).
		Str("question_id", questionID.String()).
		Bool("answered", saved.IsAnswered).
		Msg("Answer saved")

	return &model.AnswerForStudent{
		QuestionID:         saved.QuestionID,
		SelectedOptionID:   saved.SelectedOptionID,
		SelectedOptionIDs:  saved.SelectedOptionIDs,
		TextAnswer:         saved.TextAnswer,
		NumericAnswer:      saved.NumericAnswer,
		IsAnswered:         saved.IsAnswered,
		IsFlaggedForReview: saved.IsFlaggedForReview,
		TimeSpentSeconds:   saved.TimeSpentSeconds,
		AnswerChangeCount:  saved.AnswerChangeCount,
		LastUpdatedAt:      saved.LastUpdatedAt,
	}, nil
}

// validatePayload rejects values that cannot belong to the question.
func validatePayload(question *model.Question, req *model.SaveAnswerRequest) error {
	if req.Clear {
		return nil
	}
	qt := question.QuestionType
	if req.HasValue() && !hasTypedValue(qt, req) {
		return ErrInvalidAnswerPayload
	}
	switch {
	case qt.IsSingleChoice():
		if req.SelectedOptionID != nil && *req.SelectedOptionID != "" && !question.HasOption(*req.SelectedOptionID) {
			return ErrInvalidAnswerPayload
		}
	case qt == model.QuestionTypeMultipleChoice:
		for _, id := range req.SelectedOptionIDs {
			if !question.HasOption(id) {
				return ErrInvalidAnswerPayload
			}
		}
	case qt == model.QuestionTypeNumeric:
		if req.NumericAnswer != nil && (math.IsNaN(*req.NumericAnswer) || math.IsInf(*req.NumericAnswer, 0)) {
			return ErrInvalidAnswerPayload
		}
	}
	return nil
}

// hasTypedValue reports whether the request carries the field the question
// type stores. Values sent only in other fields would erase the answer.
func hasTypedValue(qt model.QuestionType, req *model.SaveAnswerRequest) bool {
	switch {
	case qt.IsSingleChoice():
		return req.SelectedOptionID != nil
	case qt == model.QuestionTypeMultipleChoice:
		return req.SelectedOptionIDs != nil
	case qt.IsText():
		return req.TextAnswer != nil
	case qt == model.QuestionTypeNumeric:
		return req.NumericAnswer != nil
	}
	return false
}

// applyAnswer routes the payload into the answer row. A request without any
// value only updates the review flag and the counters.
func applyAnswer(qt model.QuestionType, ans *model.Answer, req *model.SaveAnswerRequest, now time.Time) {
	wasAnswered := ans.IsAnswered

	if req.HasValue() {
		ans.SelectedOptionID = nil
		ans.SelectedOptionIDs = nil
		ans.TextAnswer = nil
		ans.NumericAnswer = nil

		if !req.Clear {
			switch {
			case qt.IsSingleChoice():
				if req.SelectedOptionID != nil && *req.SelectedOptionID != "" {
					ans.SelectedOptionID = req.SelectedOptionID
				}
			case qt == model.QuestionTypeMultipleChoice:
				ans.SelectedOptionIDs = dedupe(req.SelectedOptionIDs)
			case qt.IsText():
				ans.TextAnswer = req.TextAnswer
			case qt == model.QuestionTypeNumeric:
				ans.NumericAnswer = req.NumericAnswer
			}
		}
		ans.IsAnswered = grading.IsAnswered(qt, ans)
	}

	if req.IsFlaggedForReview != nil {
		ans.IsFlaggedForReview = *req.IsFlaggedForReview
	}
	if !wasAnswered && ans.IsAnswered && ans.FirstAnsweredAt == nil {
		ans.FirstAnsweredAt = &now
	}
	ans.AnswerChangeCount++
	ans.TimeSpentSeconds += req.TimeSpentSeconds
	ans.LastUpdatedAt = &now
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
