package model

import (
	"time"

	"github.com/google/uuid"
)

// GradingStatus tracks how an answer's marks were decided.
type GradingStatus string

const (
	GradingStatusPending      GradingStatus = "pending"
	GradingStatusAutoGraded   GradingStatus = "auto_graded"
	GradingStatusManualGraded GradingStatus = "manual_graded"
)

// Answer is the per-question record of an attempt. One row exists for
// every exam question from the moment the attempt starts.
type Answer struct {
	ID                 uuid.UUID     `json:"id"`
	AttemptID          uuid.UUID     `json:"attempt_id"`
	QuestionID         uuid.UUID     `json:"question_id"`
	SelectedOptionID   *string       `json:"selected_option_id,omitempty"`
	SelectedOptionIDs  []string      `json:"selected_option_ids,omitempty"`
	TextAnswer         *string       `json:"text_answer,omitempty"`
	NumericAnswer      *float64      `json:"numeric_answer,omitempty"`
	IsAnswered         bool          `json:"is_answered"`
	IsFlaggedForReview bool          `json:"is_flagged_for_review"`
	IsCorrect          *bool         `json:"is_correct,omitempty"`
	MarksObtained      float64       `json:"marks_obtained"`
	GradingStatus      GradingStatus `json:"grading_status"`
	TimeSpentSeconds   int           `json:"time_spent_seconds"`
	AnswerChangeCount  int           `json:"answer_change_count"`
	FirstAnsweredAt    *time.Time    `json:"first_answered_at,omitempty"`
	LastUpdatedAt      *time.Time    `json:"last_updated_at,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
}

// SaveAnswerRequest carries a student's answer for one question.
// Only the field matching the question type is persisted.
type SaveAnswerRequest struct {
	SelectedOptionID   *string  `json:"selected_option_id" binding:"omitempty,max=64"`
	SelectedOptionIDs  []string `json:"selected_option_ids" binding:"omitempty,max=64,dive,max=64"`
	TextAnswer         *string  `json:"text_answer" binding:"omitempty,max=20000"`
	NumericAnswer      *float64 `json:"numeric_answer"`
	IsFlaggedForReview *bool    `json:"is_flagged_for_review"`
	Clear              bool     `json:"clear"` // empties the answer regardless of value fields
	TimeSpentSeconds   int      `json:"time_spent_seconds" binding:"min=0,max=86400"`
}

// HasValue reports whether the request carries any answer value.
func (r *SaveAnswerRequest) HasValue() bool {
	return r.Clear || r.SelectedOptionID != nil || r.SelectedOptionIDs != nil ||
		r.TextAnswer != nil || r.NumericAnswer != nil
}

// AnswerForStudent is an answer without grading data, shown while the
// result is unpublished.
type AnswerForStudent struct {
	QuestionID         uuid.UUID  `json:"question_id"`
	SelectedOptionID   *string    `json:"selected_option_id,omitempty"`
	SelectedOptionIDs  []string   `json:"selected_option_ids,omitempty"`
	TextAnswer         *string    `json:"text_answer,omitempty"`
	NumericAnswer      *float64   `json:"numeric_answer,omitempty"`
	IsAnswered         bool       `json:"is_answered"`
	IsFlaggedForReview bool       `json:"is_flagged_for_review"`
	TimeSpentSeconds   int        `json:"time_spent_seconds"`
	AnswerChangeCount  int        `json:"answer_change_count"`
	LastUpdatedAt      *time.Time `json:"last_updated_at,omitempty"`
}

// ManualGrade is the grader's record for a subjective answer.
type ManualGrade struct {
	ID             uuid.UUID          `json:"id"`
	AnswerID       uuid.UUID          `json:"answer_id"`
	GraderID       int                `json:"grader_id"`
	MarksAwarded   float64            `json:"marks_awarded"`
	Feedback       string             `json:"feedback"`
	RubricID       *uuid.UUID         `json:"rubric_id,omitempty"`
	CriteriaScores map[string]float64 `json:"criteria_scores,omitempty"`
	GradedAt       time.Time          `json:"graded_at"`
}

// GradeAnswerRequest is the payload for grading a subjective answer.
type GradeAnswerRequest struct {
	MarksAwarded   float64            `json:"marks_awarded" binding:"min=0"`
	Feedback       string             `json:"feedback" binding:"omitempty,max=5000"`
	RubricID       *uuid.UUID         `json:"rubric_id"`
	CriteriaScores map[string]float64 `json:"criteria_scores" binding:"omitempty,dive,min=0"`
}
