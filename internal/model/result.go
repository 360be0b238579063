package model

import (
	"time"

	"github.com/google/uuid"
)

// PassStatus is the pass/fail verdict of a result.
type PassStatus string

const (
	PassStatusPass PassStatus = "pass"
	PassStatusFail PassStatus = "fail"
)

// Result is the scored outcome of one attempt.
type Result struct {
	ID               uuid.UUID  `json:"id"`
	AttemptID        uuid.UUID  `json:"attempt_id"`
	ExamID           uuid.UUID  `json:"exam_id"`
	UserID           int        `json:"user_id"`
	TotalMarks       float64    `json:"total_marks"`
	MarksObtained    float64    `json:"marks_obtained"`
	Percentage       float64    `json:"percentage"`
	Grade            string     `json:"grade"`
	PassStatus       PassStatus `json:"pass_status"`
	CorrectAnswers   int        `json:"correct_answers"`
	IncorrectAnswers int        `json:"incorrect_answers"`
	Unanswered       int        `json:"unanswered"`
	TimeTakenSeconds int        `json:"time_taken_seconds"`
	IsPublished      bool       `json:"is_published"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	PublishedBy      *int       `json:"published_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// StudentResult is the projection of a published result shown to students.
type StudentResult struct {
	AttemptID        uuid.UUID  `json:"attempt_id"`
	ExamID           uuid.UUID  `json:"exam_id"`
	TotalMarks       float64    `json:"total_marks"`
	MarksObtained    float64    `json:"marks_obtained"`
	Percentage       float64    `json:"percentage"`
	Grade            string     `json:"grade"`
	PassStatus       PassStatus `json:"pass_status"`
	CorrectAnswers   int        `json:"correct_answers"`
	IncorrectAnswers int        `json:"incorrect_answers"`
	Unanswered       int        `json:"unanswered"`
	TimeTakenSeconds int        `json:"time_taken_seconds"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
}

// PublishResultsRequest is the payload for releasing results in bulk.
type PublishResultsRequest struct {
	AttemptIDs []uuid.UUID `json:"attempt_ids" binding:"required,min=1,max=1000"`
}
