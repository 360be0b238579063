package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the question kinds the grader understands.
type QuestionType string

const (
	QuestionTypeSingleChoice   QuestionType = "single_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeNumeric        QuestionType = "numeric"
	QuestionTypeEssay          QuestionType = "essay"
	QuestionTypeFileUpload     QuestionType = "file_upload"
)

// IsSingleChoice is true for types answered with exactly one option id.
func (t QuestionType) IsSingleChoice() bool {
	return t == QuestionTypeSingleChoice || t == QuestionTypeTrueFalse
}

// IsText is true for types answered with free text.
func (t QuestionType) IsText() bool {
	return t == QuestionTypeShortAnswer || t == QuestionTypeEssay || t == QuestionTypeFileUpload
}

// IsSubjective is true for types that always need a human grade.
func (t QuestionType) IsSubjective() bool {
	return t == QuestionTypeEssay || t == QuestionTypeFileUpload
}

// Option is one selectable choice of a choice-type question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question represents a single exam question with its grading key.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	ExamID        uuid.UUID    `json:"exam_id"`
	QuestionText  string       `json:"question_text"`
	QuestionType  QuestionType `json:"question_type"`
	Options       []Option     `json:"options,omitempty"`
	CorrectText   string       `json:"correct_text,omitempty"`
	CaseSensitive bool         `json:"case_sensitive"`
	CorrectNumber *float64     `json:"correct_number,omitempty"`
	Tolerance     float64      `json:"tolerance"`
	Marks         float64      `json:"marks"`
	NegativeMarks float64      `json:"negative_marks"`
	OrderNum      int          `json:"order_num"`
}

// HasOption reports whether id names one of the question's options.
func (q *Question) HasOption(id string) bool {
	for _, o := range q.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// CorrectOptionIDs returns the ids of all options flagged correct.
func (q *Question) CorrectOptionIDs() []string {
	var ids []string
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// OptionForStudent is an option without the correctness flag.
type OptionForStudent struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID          `json:"id"`
	QuestionText string             `json:"question_text"`
	QuestionType QuestionType       `json:"question_type"`
	Options      []OptionForStudent `json:"options,omitempty"`
	Marks        float64            `json:"marks"`
	OrderNum     int                `json:"order_num"`
}

// ForStudent strips grading data from the question.
func (q *Question) ForStudent() QuestionForStudent {
	opts := make([]OptionForStudent, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionForStudent{ID: o.ID, Text: o.Text})
	}
	return QuestionForStudent{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		QuestionType: q.QuestionType,
		Options:      opts,
		Marks:        q.Marks,
		OrderNum:     q.OrderNum,
	}
}
