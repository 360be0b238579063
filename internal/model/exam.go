package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft      ExamStatus = "DRAFT"
	ExamStatusPublished  ExamStatus = "PUBLISHED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	ExamStatusCompleted  ExamStatus = "COMPLETED"
	ExamStatusArchived   ExamStatus = "ARCHIVED"
)

// IsOpen reports whether students may start attempts on an exam in this status.
func (s ExamStatus) IsOpen() bool {
	return s == ExamStatusPublished || s == ExamStatusInProgress
}

// CheatRules holds the proctoring switches configured on an exam.
// Stored as JSONB in exams.cheat_rules.
type CheatRules struct {
	TabSwitchDetection    bool `json:"tab_switch_detection"`
	FullscreenLock        bool `json:"fullscreen_lock"`
	BlockCopyPaste        bool `json:"block_copy_paste"`
	RequireWebcam         bool `json:"require_webcam"`
	EnableProctoring      bool `json:"enable_proctoring"`
	MaxTabSwitchesAllowed int  `json:"max_tab_switches_allowed"`
}

// RequiresMonitoring reports whether a proctoring session is opened for attempts.
func (r CheatRules) RequiresMonitoring() bool {
	return r.EnableProctoring || r.TabSwitchDetection || r.FullscreenLock ||
		r.BlockCopyPaste || r.RequireWebcam
}

// Exam is the read-only exam definition consumed by the attempt engine.
// Authoring happens elsewhere; the definition is immutable while attempts run.
type Exam struct {
	ID                    uuid.UUID  `json:"id"`
	Title                 string     `json:"title"`
	Status                ExamStatus `json:"status"`
	ScheduledStart        *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd          *time.Time `json:"scheduled_end,omitempty"`
	DurationMinutes       int        `json:"duration_minutes"`
	TotalMarks            float64    `json:"total_marks"`
	PassMarks             float64    `json:"pass_marks"`
	MaxAttempts           int        `json:"max_attempts"`
	EnableNegativeMarking bool       `json:"enable_negative_marking"`
	AccessCode            string     `json:"access_code,omitempty"`
	RandomizeQuestions    bool       `json:"randomize_questions"`
	AllowResume           bool       `json:"allow_resume"`
	CheatRules            CheatRules `json:"cheat_rules"`
	Questions             []Question `json:"questions"`
}

// Duration returns the exam duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Question returns the question with the given ID, or nil.
func (e *Exam) Question(id uuid.UUID) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// QuestionIndex maps question IDs to their questions for repeated lookups.
func (e *Exam) QuestionIndex() map[uuid.UUID]*Question {
	idx := make(map[uuid.UUID]*Question, len(e.Questions))
	for i := range e.Questions {
		idx[e.Questions[i].ID] = &e.Questions[i]
	}
	return idx
}

// ExamPayload is the student-facing view of an exam (no correct answers).
type ExamPayload struct {
	ExamID    uuid.UUID            `json:"exam_id"`
	Title     string               `json:"title"`
	Duration  int                  `json:"duration_minutes"`
	Rules     CheatRules           `json:"cheat_rules"`
	Questions []QuestionForStudent `json:"questions"`
}
