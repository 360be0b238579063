package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-cbt/internal/grading"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
)

// ResultService grades answers and aggregates them into results.
type ResultService struct {
	store repository.Store
	exams ExamProvider
	log   zerolog.Logger
	now   func() time.Time
}

// NewResultService creates a new ResultService.
func NewResultService(store repository.Store, exams ExamProvider, log zerolog.Logger) *ResultService {
	return &ResultService{
		store: store,
		exams: exams,
		log:   log.With().Str("component", "result_service").Logger(),
		now:   time.Now,
	}
}

// GradeAnswerResult is the outcome of a manual grade.
type GradeAnswerResult struct {
	Answer *model.Answer `json:"answer"`
	// Result is nil while other answers of the attempt still await grading.
	Result *model.Result `json:"result"`
}

// gradeLocked auto-grades every answer that no human has graded yet and then
// recomputes. The caller must hold the attempt row lock.
func (s *ResultService) gradeLocked(ctx context.Context, q repository.Querier, exam *model.Exam, a *model.Attempt) (*model.Result, error) {
	answers, err := q.ListAnswers(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	idx := exam.QuestionIndex()
	for i := range answers {
		ans := &answers[i]
		if ans.GradingStatus == model.GradingStatusManualGraded {
			continue
		}
		question, ok := idx[ans.QuestionID]
		if !ok {
			continue
		}
		out := grading.Grade(question, ans, exam.EnableNegativeMarking)
		ans.GradingStatus = out.Status
		ans.IsCorrect = out.IsCorrect
		ans.MarksObtained = out.Marks
		if err := q.UpdateAnswer(ctx, ans); err != nil {
			return nil, fmt.Errorf("update answer %s: %w", ans.ID, err)
		}
	}

	return s.recomputeLocked(ctx, q, exam, a, answers)
}

// recomputeLocked writes the result row from graded answers. It does nothing
// while any answer is still pending.
func (s *ResultService) recomputeLocked(ctx context.Context, q repository.Querier, exam *model.Exam, a *model.Attempt, answers []model.Answer) (*model.Result, error) {
	for _, ans := range answers {
		if ans.GradingStatus == model.GradingStatusPending {
			return nil, nil
		}
	}

	end := s.now()
	if a.SubmittedAt != nil {
		end = *a.SubmittedAt
	}

	res := Aggregate(exam, answers)
	res.ID = uuid.New()
	res.AttemptID = a.ID
	res.ExamID = a.ExamID
	res.UserID = a.UserID
	res.TimeTakenSeconds = max(0, int(end.Sub(a.StartedAt).Seconds()))

	if err := q.UpsertResult(ctx, res); err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}
	return res, nil
}

// Aggregate scores graded answers against an exam. The sum is clamped at zero
// and the percentage is rounded to two places.
func Aggregate(exam *model.Exam, answers []model.Answer) *model.Result {
	res := &model.Result{TotalMarks: exam.TotalMarks}

	sum := decimal.Zero
	for _, ans := range answers {
		sum = sum.Add(decimal.NewFromFloat(ans.MarksObtained))
		switch {
		case !ans.IsAnswered:
			res.Unanswered++
		case ans.IsCorrect != nil && *ans.IsCorrect:
			res.CorrectAnswers++
		case ans.IsCorrect != nil:
			res.IncorrectAnswers++
		}
	}
	if sum.IsNegative() {
		sum = decimal.Zero
	}
	res.MarksObtained = sum.InexactFloat64()

	total := decimal.NewFromFloat(exam.TotalMarks)
	if total.IsPositive() {
		res.Percentage = sum.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}

	res.PassStatus = model.PassStatusFail
	if sum.GreaterThanOrEqual(decimal.NewFromFloat(exam.PassMarks)) {
		res.PassStatus = model.PassStatusPass
	}
	res.Grade = grading.GradeFor(res.Percentage)
	return res
}

// Recompute re-grades the objective answers of a finished attempt and
// re-runs aggregation. Human grades are kept. This is also how a terminated
// attempt that skipped grading gets its result.
func (s *ResultService) Recompute(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	var res *model.Result
	err := s.store.Tx(ctx, func(q repository.Querier) error {
		a, err := lockAttempt(ctx, q, attemptID)
		if err != nil {
			return err
		}
		if !a.Status.IsTerminal() {
			return ErrAttemptNotFinished
		}
		exam, err := s.exams.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		res, err = s.gradeLocked(ctx, q, exam, a)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrGradingPending
	}
	return res, nil
}

// GradeAnswer records a human grade for a subjective answer and re-aggregates
// the attempt once nothing is left pending. Regrading overwrites.
func (s *ResultService) GradeAnswer(ctx context.Context, answerID uuid.UUID, graderID int, req *model.GradeAnswerRequest) (*GradeAnswerResult, error) {
	current, err := s.store.GetAnswer(ctx, answerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("get answer: %w", err)
	}

	out := &GradeAnswerResult{}
	err = s.store.Tx(ctx, func(q repository.Querier) error {
		// Attempt first, then answer: the same lock order as submit.
		a, err := lockAttempt(ctx, q, current.AttemptID)
		if err != nil {
			return err
		}
		if !a.Status.IsTerminal() {
			return ErrAttemptNotFinished
		}
		exam, err := s.exams.GetExam(ctx, a.ExamID)
		if err != nil {
			return err
		}
		question := exam.Question(current.QuestionID)
		if question == nil {
			return ErrQuestionNotInAttempt
		}
		if !question.QuestionType.IsSubjective() {
			return ErrNotSubjective
		}
		if req.MarksAwarded > question.Marks {
			return ErrExceedsMaxMarks
		}

		ans, err := q.GetAnswerForUpdate(ctx, a.ID, question.ID)
		if err != nil {
			return fmt.Errorf("lock answer: %w", err)
		}

		now := s.now()
		if err := q.UpsertManualGrade(ctx, &model.ManualGrade{
			ID:             uuid.New(),
			AnswerID:       ans.ID,
			GraderID:       graderID,
			MarksAwarded:   req.MarksAwarded,
			Feedback:       req.Feedback,
			RubricID:       req.RubricID,
			CriteriaScores: req.CriteriaScores,
			GradedAt:       now,
		}); err != nil {
			return fmt.Errorf("store grade: %w", err)
		}

		correct := req.MarksAwarded > 0
		ans.MarksObtained = req.MarksAwarded
		ans.IsCorrect = &correct
		ans.GradingStatus = model.GradingStatusManualGraded
		if err := q.UpdateAnswer(ctx, ans); err != nil {
			return fmt.Errorf("update answer: %w", err)
		}
		out.Answer = ans

		answers, err := q.ListAnswers(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		out.Result, err = s.recomputeLocked(ctx, q, exam, a, answers)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("answer_id", answerID.String()).
		Str("attempt_id", current.AttemptID.String()).
		Int("grader_id", graderID).
		Float64("marks", req.MarksAwarded).
		Bool("result_ready", out.Result != nil).
		Msg("Answer graded manually")
	return out, nil
}

// Publish releases the results of the given attempts to their students.
func (s *ResultService) Publish(ctx context.Context, attemptIDs []uuid.UUID, publisherID int) (int64, error) {
	n, err := s.store.PublishResults(ctx, attemptIDs, publisherID, s.now())
	if err != nil {
		return 0, fmt.Errorf("publish results: %w", err)
	}
	s.log.Info().
		Int("requested", len(attemptIDs)).
		Int64("published", n).
		Int("published_by", publisherID).
		Msg("Results published")
	return n, nil
}

// GetResult returns a result regardless of publication, for staff.
func (s *ResultService) GetResult(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	res, err := s.store.GetResult(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// GetStudentResult returns the student's own result, only once published.
func (s *ResultService) GetStudentResult(ctx context.Context, attemptID uuid.UUID, userID int) (*model.StudentResult, error) {
	a, err := getAttempt(ctx, s.store, attemptID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrUnauthorized
	}

	res, err := s.GetResult(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !res.IsPublished {
		return nil, ErrResultNotPublished
	}

	var view model.StudentResult
	if err := copier.Copy(&view, res); err != nil {
		return nil, fmt.Errorf("project result: %w", err)
	}
	return &view, nil
}

func getAttempt(ctx context.Context, q repository.Querier, id uuid.UUID) (*model.Attempt, error) {
	a, err := q.GetAttempt(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return a, nil
}

func lockAttempt(ctx context.Context, q repository.Querier, id uuid.UUID) (*model.Attempt, error) {
	a, err := q.GetAttemptForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	return a, nil
}
