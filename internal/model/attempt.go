package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates the lifecycle states of an exam attempt.
type AttemptStatus string

const (
	AttemptStatusInProgress    AttemptStatus = "in_progress"
	AttemptStatusPaused        AttemptStatus = "paused"
	AttemptStatusSubmitted     AttemptStatus = "submitted"
	AttemptStatusAutoSubmitted AttemptStatus = "auto_submitted"
	AttemptStatusExpired       AttemptStatus = "expired"
	AttemptStatusTerminated    AttemptStatus = "terminated"
)

// IsTerminal reports whether no further transitions are possible.
func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusSubmitted, AttemptStatusAutoSubmitted,
		AttemptStatusExpired, AttemptStatusTerminated:
		return true
	}
	return false
}

// IsOpen reports whether the attempt still counts as the user's live attempt.
func (s AttemptStatus) IsOpen() bool {
	return s == AttemptStatusInProgress || s == AttemptStatusPaused
}

// SubmitReason records why an attempt left the in_progress state.
type SubmitReason string

const (
	SubmitReasonManual SubmitReason = "manual"
	SubmitReasonAuto   SubmitReason = "auto"
	SubmitReasonForced SubmitReason = "forced"
)

// TerminalStatus maps a submit reason to the status it produces.
func (r SubmitReason) TerminalStatus() AttemptStatus {
	if r == SubmitReasonAuto {
		return AttemptStatusAutoSubmitted
	}
	return AttemptStatusSubmitted
}

// Attempt is one student's timed try at one exam.
type Attempt struct {
	ID                       uuid.UUID     `json:"id"`
	ExamID                   uuid.UUID     `json:"exam_id"`
	UserID                   int           `json:"user_id"`
	AttemptNumber            int           `json:"attempt_number"`
	Status                   AttemptStatus `json:"status"`
	StartedAt                time.Time     `json:"started_at"`
	ExpiresAt                time.Time     `json:"expires_at"`
	TimeRemainingSeconds     int           `json:"time_remaining_seconds"`
	CurrentQuestionIndex     int           `json:"current_question_index"`
	QuestionOrder            []uuid.UUID   `json:"question_order"`
	QuestionsAnswered        int           `json:"questions_answered"`
	QuestionsMarkedForReview int           `json:"questions_marked_for_review"`
	TabSwitchCount           int           `json:"tab_switch_count"`
	IsFlagged                bool          `json:"is_flagged"`
	FlagReason               *string       `json:"flag_reason,omitempty"`
	SubmittedAt              *time.Time    `json:"submitted_at,omitempty"`
	SubmitReason             *SubmitReason `json:"submit_reason,omitempty"`
	TerminatedBy             *int          `json:"terminated_by,omitempty"`
	TerminationReason        *string       `json:"termination_reason,omitempty"`
	IPAddress                string        `json:"ip_address"`
	UserAgent                string        `json:"user_agent"`
	ResumeTokenHash          string        `json:"-"`
	CreatedAt                time.Time     `json:"created_at"`
	UpdatedAt                time.Time     `json:"updated_at"`
}

// RemainingAt returns the seconds left at instant now, never negative.
func (a *Attempt) RemainingAt(now time.Time) int {
	left := int(a.ExpiresAt.Sub(now).Seconds())
	if left < 0 {
		return 0
	}
	return left
}

// ExpiredAt reports whether the attempt's deadline has passed at now.
func (a *Attempt) ExpiredAt(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// StartAttemptRequest is the payload for starting (or re-entering) an attempt.
type StartAttemptRequest struct {
	AccessCode string `json:"access_code" binding:"omitempty,max=64"`
}

// ResumeAttemptRequest is the payload for resuming a paused attempt.
type ResumeAttemptRequest struct {
	ResumeToken string `json:"resume_token" binding:"omitempty,max=128"`
}

// UpdateProgressRequest reports the student's position and elapsed time.
type UpdateProgressRequest struct {
	CurrentQuestionIndex int `json:"current_question_index" binding:"min=0"`
	ElapsedSeconds       int `json:"elapsed_seconds" binding:"min=0"`
}

// TerminateAttemptRequest is the payload for an administrative termination or flag.
type TerminateAttemptRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}
