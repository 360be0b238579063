package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// GetExam loads an exam definition together with its ordered questions.
func (r *Queries) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	var rules []byte
	err := r.db.QueryRow(ctx,
		`SELECT id, title, status, scheduled_start, scheduled_end, duration_minutes,
		        total_marks, pass_marks, max_attempts, enable_negative_marking,
		        COALESCE(access_code, ''), randomize_questions, allow_resume, cheat_rules
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Status, &e.ScheduledStart, &e.ScheduledEnd, &e.DurationMinutes,
		&e.TotalMarks, &e.PassMarks, &e.MaxAttempts, &e.EnableNegativeMarking,
		&e.AccessCode, &e.RandomizeQuestions, &e.AllowResume, &rules)
	if err != nil {
		return nil, mapErr(err)
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &e.CheatRules); err != nil {
			return nil, fmt.Errorf("decode cheat rules: %w", err)
		}
	}

	questions, err := r.listQuestions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	e.Questions = questions
	return e, nil
}

func (r *Queries) listQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, options, correct_text,
		        case_sensitive, correct_number, tolerance, marks, negative_marks, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType, &options, &q.CorrectText,
			&q.CaseSensitive, &q.CorrectNumber, &q.Tolerance, &q.Marks, &q.NegativeMarks, &q.OrderNum); err != nil {
			return nil, err
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("decode options of %s: %w", q.ID, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListOpenExamIDs returns exams students can currently attempt.
// Used to prewarm the exam definition cache on startup.
func (r *Queries) ListOpenExamIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM exams WHERE status IN ($1, $2) ORDER BY created_at DESC`,
		model.ExamStatusPublished, model.ExamStatusInProgress)
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
