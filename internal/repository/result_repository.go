package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// GetResult retrieves the result of an attempt.
func (r *Queries) GetResult(ctx context.Context, attemptID uuid.UUID) (*model.Result, error) {
	res := &model.Result{}
	err := r.db.QueryRow(ctx,
		`SELECT id, attempt_id, exam_id, user_id, total_marks, marks_obtained, percentage,
		        grade, pass_status, correct_answers, incorrect_answers, unanswered,
		        time_taken_seconds, is_published, published_at, published_by,
		        created_at, updated_at
		 FROM results WHERE attempt_id = $1`, attemptID,
	).Scan(&res.ID, &res.AttemptID, &res.ExamID, &res.UserID, &res.TotalMarks, &res.MarksObtained,
		&res.Percentage, &res.Grade, &res.PassStatus, &res.CorrectAnswers, &res.IncorrectAnswers,
		&res.Unanswered, &res.TimeTakenSeconds, &res.IsPublished, &res.PublishedAt, &res.PublishedBy,
		&res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return res, nil
}

// UpsertResult writes the computed score of an attempt. Publication state
// survives recomputation.
func (r *Queries) UpsertResult(ctx context.Context, res *model.Result) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO results (id, attempt_id, exam_id, user_id, total_marks, marks_obtained,
		                      percentage, grade, pass_status, correct_answers, incorrect_answers,
		                      unanswered, time_taken_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (attempt_id) DO UPDATE
		 SET total_marks = EXCLUDED.total_marks, marks_obtained = EXCLUDED.marks_obtained,
		     percentage = EXCLUDED.percentage, grade = EXCLUDED.grade,
		     pass_status = EXCLUDED.pass_status, correct_answers = EXCLUDED.correct_answers,
		     incorrect_answers = EXCLUDED.incorrect_answers, unanswered = EXCLUDED.unanswered,
		     time_taken_seconds = EXCLUDED.time_taken_seconds, updated_at = NOW()
		 RETURNING id, is_published, published_at, published_by, created_at, updated_at`,
		res.ID, res.AttemptID, res.ExamID, res.UserID, res.TotalMarks, res.MarksObtained,
		res.Percentage, res.Grade, res.PassStatus, res.CorrectAnswers, res.IncorrectAnswers,
		res.Unanswered, res.TimeTakenSeconds,
	).Scan(&res.ID, &res.IsPublished, &res.PublishedAt, &res.PublishedBy, &res.CreatedAt, &res.UpdatedAt)
	return mapErr(err)
}

// PublishResults marks the results of the given attempts as published and
// returns how many rows changed. Already published rows keep their stamp.
func (r *Queries) PublishResults(ctx context.Context, attemptIDs []uuid.UUID, by int, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE results
		 SET is_published = TRUE, published_at = $2, published_by = $3, updated_at = NOW()
		 WHERE attempt_id = ANY($1) AND NOT is_published`,
		attemptIDs, at, by)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
