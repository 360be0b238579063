package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-cbt/internal/model"
)

const answerColumns = `id, attempt_id, question_id, selected_option_id, selected_option_ids,
	text_answer, numeric_answer, is_answered, is_flagged_for_review, is_correct,
	marks_obtained, grading_status, time_spent_seconds, answer_change_count,
	first_answered_at, last_updated_at, created_at`

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	a := &model.Answer{}
	err := row.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.SelectedOptionID, &a.SelectedOptionIDs,
		&a.TextAnswer, &a.NumericAnswer, &a.IsAnswered, &a.IsFlaggedForReview, &a.IsCorrect,
		&a.MarksObtained, &a.GradingStatus, &a.TimeSpentSeconds, &a.AnswerChangeCount,
		&a.FirstAnsweredAt, &a.LastUpdatedAt, &a.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return a, nil
}

// CreateAnswers bulk-inserts the empty answer rows of a new attempt using
// the COPY protocol.
func (r *Queries) CreateAnswers(ctx context.Context, answers []model.Answer) error {
	if len(answers) == 0 {
		return nil
	}

	rows := make([][]any, len(answers))
	for i, a := range answers {
		ids := a.SelectedOptionIDs
		if ids == nil {
			ids = []string{}
		}
		rows[i] = []any{a.ID, a.AttemptID, a.QuestionID, ids, a.GradingStatus, a.CreatedAt}
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"answers"},
		[]string{"id", "attempt_id", "question_id", "selected_option_ids", "grading_status", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy answers: %w", mapErr(err))
	}
	return nil
}

// GetAnswer retrieves an answer by ID.
func (r *Queries) GetAnswer(ctx context.Context, id uuid.UUID) (*model.Answer, error) {
	return scanAnswer(r.db.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE id = $1`, id))
}

// GetAnswerForUpdate locks the answer row of one question in an attempt.
func (r *Queries) GetAnswerForUpdate(ctx context.Context, attemptID, questionID uuid.UUID) (*model.Answer, error) {
	return scanAnswer(r.db.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers
		 WHERE attempt_id = $1 AND question_id = $2 FOR UPDATE`, attemptID, questionID))
}

// ListAnswers returns every answer row of an attempt.
func (r *Queries) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE attempt_id = $1 ORDER BY created_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// UpdateAnswer writes every mutable answer field.
func (r *Queries) UpdateAnswer(ctx context.Context, a *model.Answer) error {
	ids := a.SelectedOptionIDs
	if ids == nil {
		ids = []string{}
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE answers
		 SET selected_option_id = $2, selected_option_ids = $3, text_answer = $4,
		     numeric_answer = $5, is_answered = $6, is_flagged_for_review = $7,
		     is_correct = $8, marks_obtained = $9, grading_status = $10,
		     time_spent_seconds = $11, answer_change_count = $12,
		     first_answered_at = $13, last_updated_at = $14
		 WHERE id = $1`,
		a.ID, a.SelectedOptionID, ids, a.TextAnswer,
		a.NumericAnswer, a.IsAnswered, a.IsFlaggedForReview,
		a.IsCorrect, a.MarksObtained, a.GradingStatus,
		a.TimeSpentSeconds, a.AnswerChangeCount,
		a.FirstAnsweredAt, a.LastUpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAnswerFlags aggregates the answered and marked-for-review counters.
func (r *Queries) CountAnswerFlags(ctx context.Context, attemptID uuid.UUID) (int, int, error) {
	var answered, marked int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FILTER (WHERE is_answered),
		        COUNT(*) FILTER (WHERE is_flagged_for_review)
		 FROM answers WHERE attempt_id = $1`, attemptID,
	).Scan(&answered, &marked)
	return answered, marked, err
}

// UpsertManualGrade stores the grader's decision; regrading replaces it.
func (r *Queries) UpsertManualGrade(ctx context.Context, g *model.ManualGrade) error {
	var criteria []byte
	if g.CriteriaScores != nil {
		var err error
		if criteria, err = json.Marshal(g.CriteriaScores); err != nil {
			return fmt.Errorf("encode criteria scores: %w", err)
		}
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO manual_grades (id, answer_id, grader_id, marks_awarded, feedback,
		                            rubric_id, criteria_scores, graded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
		 ON CONFLICT (answer_id) DO UPDATE
		 SET grader_id = EXCLUDED.grader_id, marks_awarded = EXCLUDED.marks_awarded,
		     feedback = EXCLUDED.feedback, rubric_id = EXCLUDED.rubric_id,
		     criteria_scores = EXCLUDED.criteria_scores, graded_at = EXCLUDED.graded_at
		 RETURNING id`,
		g.ID, g.AnswerID, g.GraderID, g.MarksAwarded, g.Feedback,
		g.RubricID, criteria, g.GradedAt,
	).Scan(&g.ID)
	return mapErr(err)
}
