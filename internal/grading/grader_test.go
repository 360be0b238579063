package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func choiceQuestion(qt model.QuestionType, correct ...string) *model.Question {
	q := &model.Question{ID: uuid.New(), QuestionType: qt, Marks: 5, NegativeMarks: 1}
	isCorrect := make(map[string]bool, len(correct))
	for _, c := range correct {
		isCorrect[c] = true
	}
	for _, id := range []string{"A", "B", "C", "D"} {
		q.Options = append(q.Options, model.Option{ID: id, Text: "option " + id, IsCorrect: isCorrect[id]})
	}
	return q
}

func TestIsAnswered(t *testing.T) {
	tests := []struct {
		name string
		qt   model.QuestionType
		a    model.Answer
		want bool
	}{
		{name: "single nil", qt: model.QuestionTypeSingleChoice, a: model.Answer{}, want: false},
		{name: "single empty id", qt: model.QuestionTypeSingleChoice, a: model.Answer{SelectedOptionID: strPtr("")}, want: false},
		{name: "single set", qt: model.QuestionTypeTrueFalse, a: model.Answer{SelectedOptionID: strPtr("A")}, want: true},
		{name: "multi empty", qt: model.QuestionTypeMultipleChoice, a: model.Answer{SelectedOptionIDs: []string{}}, want: false},
		{name: "multi set", qt: model.QuestionTypeMultipleChoice, a: model.Answer{SelectedOptionIDs: []string{"A"}}, want: true},
		{name: "text blank", qt: model.QuestionTypeShortAnswer, a: model.Answer{TextAnswer: strPtr("   \t")}, want: false},
		{name: "essay text", qt: model.QuestionTypeEssay, a: model.Answer{TextAnswer: strPtr("because")}, want: true},
		{name: "numeric absent", qt: model.QuestionTypeNumeric, a: model.Answer{}, want: false},
		{name: "numeric zero", qt: model.QuestionTypeNumeric, a: model.Answer{NumericAnswer: floatPtr(0)}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsAnswered(tc.qt, &tc.a); got != tc.want {
				t.Fatalf("IsAnswered() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGrade_SingleChoice(t *testing.T) {
	q := choiceQuestion(model.QuestionTypeSingleChoice, "A")

	tests := []struct {
		name     string
		selected string
		negative bool
		marks    float64
		correct  bool
	}{
		{name: "correct", selected: "A", marks: 5, correct: true},
		{name: "wrong without negative marking", selected: "B", marks: 0},
		{name: "wrong with negative marking", selected: "B", negative: true, marks: -1},
		{name: "correct with negative marking", selected: "A", negative: true, marks: 5, correct: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Grade(q, &model.Answer{SelectedOptionID: strPtr(tc.selected)}, tc.negative)
			if out.Status != model.GradingStatusAutoGraded {
				t.Fatalf("status = %s, want auto_graded", out.Status)
			}
			if out.Marks != tc.marks {
				t.Fatalf("marks = %v, want %v", out.Marks, tc.marks)
			}
			if out.IsCorrect == nil || *out.IsCorrect != tc.correct {
				t.Fatalf("is_correct = %v, want %v", out.IsCorrect, tc.correct)
			}
		})
	}
}

func TestGrade_NegativeMarksZeroCostsNothing(t *testing.T) {
	q := choiceQuestion(model.QuestionTypeSingleChoice, "A")
	q.NegativeMarks = 0

	out := Grade(q, &model.Answer{SelectedOptionID: strPtr("C")}, true)
	if out.Marks != 0 {
		t.Fatalf("marks = %v, want 0", out.Marks)
	}
}

func TestGrade_MultipleChoiceHasNoPartialCredit(t *testing.T) {
	q := choiceQuestion(model.QuestionTypeMultipleChoice, "A", "B", "C")

	tests := []struct {
		name     string
		selected []string
		correct  bool
	}{
		{name: "subset", selected: []string{"A", "B"}, correct: false},
		{name: "exact", selected: []string{"A", "B", "C"}, correct: true},
		{name: "exact reordered", selected: []string{"C", "A", "B"}, correct: true},
		{name: "superset", selected: []string{"A", "B", "C", "D"}, correct: false},
		{name: "duplicates of subset", selected: []string{"A", "A", "B"}, correct: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := Grade(q, &model.Answer{SelectedOptionIDs: tc.selected}, false)
			if out.IsCorrect == nil || *out.IsCorrect != tc.correct {
				t.Fatalf("is_correct = %v, want %v", out.IsCorrect, tc.correct)
			}
			wantMarks := 0.0
			if tc.correct {
				wantMarks = q.Marks
			}
			if out.Marks != wantMarks {
				t.Fatalf("marks = %v, want %v", out.Marks, wantMarks)
			}
		})
	}
}

func TestGrade_ShortAnswer(t *testing.T) {
	tests := []struct {
		name          string
		stored        string
		caseSensitive bool
		submitted     string
		correct       bool
	}{
		{name: "case insensitive match", stored: "Jakarta", submitted: "  jakarta ", correct: true},
		{name: "case sensitive mismatch", stored: "Jakarta", caseSensitive: true, submitted: "jakarta", correct: false},
		{name: "case sensitive match", stored: "Jakarta", caseSensitive: true, submitted: "Jakarta\n", correct: true},
		{name: "different word", stored: "Jakarta", submitted: "Bandung", correct: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &model.Question{QuestionType: model.QuestionTypeShortAnswer, CorrectText: tc.stored, CaseSensitive: tc.caseSensitive, Marks: 2}
			out := Grade(q, &model.Answer{TextAnswer: strPtr(tc.submitted)}, false)
			if out.IsCorrect == nil || *out.IsCorrect != tc.correct {
				t.Fatalf("is_correct = %v, want %v", out.IsCorrect, tc.correct)
			}
		})
	}
}

func TestGrade_NumericTolerance(t *testing.T) {
	tests := []struct {
		name      string
		correct   float64
		tolerance float64
		submitted float64
		want      bool
	}{
		{name: "outside tolerance", correct: 3.14, tolerance: 0.01, submitted: 3.15, want: false},
		{name: "inside tolerance", correct: 3.14, tolerance: 0.01, submitted: 3.145, want: true},
		{name: "exact with default tolerance", correct: 10, submitted: 10, want: true},
		{name: "off by one with default tolerance", correct: 10, submitted: 11, want: false},
		{name: "zero is an answer", correct: 0, submitted: 0, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := &model.Question{QuestionType: model.QuestionTypeNumeric, CorrectNumber: floatPtr(tc.correct), Tolerance: tc.tolerance, Marks: 5}
			out := Grade(q, &model.Answer{NumericAnswer: floatPtr(tc.submitted)}, false)
			if out.IsCorrect == nil || *out.IsCorrect != tc.want {
				t.Fatalf("is_correct = %v, want %v", out.IsCorrect, tc.want)
			}
		})
	}
}

func TestGrade_Subjective(t *testing.T) {
	q := &model.Question{QuestionType: model.QuestionTypeEssay, Marks: 10}

	answered := Grade(q, &model.Answer{TextAnswer: strPtr("an essay")}, true)
	if answered.Status != model.GradingStatusPending {
		t.Fatalf("answered essay status = %s, want pending", answered.Status)
	}
	if answered.IsCorrect != nil || answered.Marks != 0 {
		t.Fatalf("answered essay must carry no verdict, got %+v", answered)
	}

	blank := Grade(q, &model.Answer{}, true)
	if blank.Status != model.GradingStatusAutoGraded || blank.Marks != 0 || blank.IsCorrect != nil {
		t.Fatalf("blank essay = %+v, want settled at zero", blank)
	}
}

func TestGrade_UnansweredIsNeitherCorrectNorIncorrect(t *testing.T) {
	q := choiceQuestion(model.QuestionTypeSingleChoice, "A")

	out := Grade(q, &model.Answer{}, true)
	if out.IsCorrect != nil {
		t.Fatalf("is_correct = %v, want nil", *out.IsCorrect)
	}
	if out.Marks != 0 {
		t.Fatalf("marks = %v, want 0 even with negative marking", out.Marks)
	}
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{100, "A+"}, {90, "A+"}, {89.99, "A"}, {80, "A"}, {70, "B"},
		{60, "C"}, {50, "D"}, {49.99, "F"}, {0, "F"},
	}

	for _, tc := range tests {
		if got := GradeFor(tc.pct); got != tc.want {
			t.Errorf("GradeFor(%v) = %q, want %q", tc.pct, got, tc.want)
		}
	}
}
