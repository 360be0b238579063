// Package grading decides correctness and marks for objective answers and
// maps percentages to grade bands. Everything here is pure.
package grading

import (
	"math"
	"strings"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// Outcome is the grading decision for one answer.
type Outcome struct {
	// Status is auto_graded, or pending when a human has to decide.
	Status    model.GradingStatus
	IsCorrect *bool
	Marks     float64
}

// IsAnswered applies the emptiness rules for a question type: choice types
// need at least one option, text types need non-blank text, numeric needs a
// value (zero counts).
func IsAnswered(qt model.QuestionType, a *model.Answer) bool {
	switch {
	case qt.IsSingleChoice():
		return a.SelectedOptionID != nil && *a.SelectedOptionID != ""
	case qt == model.QuestionTypeMultipleChoice:
		return len(a.SelectedOptionIDs) > 0
	case qt.IsText():
		return a.TextAnswer != nil && strings.TrimSpace(*a.TextAnswer) != ""
	case qt == model.QuestionTypeNumeric:
		return a.NumericAnswer != nil
	}
	return false
}

// Correct reports whether an answered objective question is right.
// ok is false for subjective types, which are never auto-graded.
func Correct(q *model.Question, a *model.Answer) (correct, ok bool) {
	switch {
	case q.QuestionType.IsSingleChoice():
		ids := q.CorrectOptionIDs()
		if len(ids) != 1 || a.SelectedOptionID == nil {
			return false, true
		}
		return *a.SelectedOptionID == ids[0], true

	case q.QuestionType == model.QuestionTypeMultipleChoice:
		return sameSet(a.SelectedOptionIDs, q.CorrectOptionIDs()), true

	case q.QuestionType == model.QuestionTypeShortAnswer:
		if a.TextAnswer == nil {
			return false, true
		}
		got := strings.TrimSpace(*a.TextAnswer)
		want := strings.TrimSpace(q.CorrectText)
		if q.CaseSensitive {
			return got == want, true
		}
		return strings.EqualFold(got, want), true

	case q.QuestionType == model.QuestionTypeNumeric:
		if q.CorrectNumber == nil || a.NumericAnswer == nil {
			return false, true
		}
		tol := q.Tolerance
		if tol < 0 {
			tol = 0
		}
		return math.Abs(*q.CorrectNumber-*a.NumericAnswer) <= tol, true
	}
	return false, false
}

// Grade decides the outcome for one answer. Wrong answers cost the
// question's negative marks only when the exam enables negative marking;
// the resulting negative value is clamped at the aggregate, not here.
// Unanswered questions settle at zero and are neither correct nor incorrect,
// including subjective ones since there is nothing to review.
func Grade(q *model.Question, a *model.Answer, negativeMarking bool) Outcome {
	if !IsAnswered(q.QuestionType, a) {
		return Outcome{Status: model.GradingStatusAutoGraded}
	}

	correct, ok := Correct(q, a)
	if !ok {
		return Outcome{Status: model.GradingStatusPending}
	}

	out := Outcome{Status: model.GradingStatusAutoGraded, IsCorrect: &correct}
	switch {
	case correct:
		out.Marks = q.Marks
	case negativeMarking && q.NegativeMarks > 0:
		out.Marks = -q.NegativeMarks
	}
	return out
}

func sameSet(got, want []string) bool {
	if len(want) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(got))
	for _, id := range got {
		seen[id] = struct{}{}
	}
	if len(seen) != len(want) {
		return false
	}
	for _, id := range want {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
