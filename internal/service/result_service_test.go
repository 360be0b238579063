package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-cbt/internal/model"
)

// essayExam has an essay worth 10 and a single-choice question worth 5.
func essayExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "History essay",
		Status:          model.ExamStatusPublished,
		DurationMinutes: 90,
		TotalMarks:      15,
		PassMarks:       9,
		MaxAttempts:     1,
		Questions: []model.Question{
			{
				ID:           uuid.New(),
				QuestionText: "Discuss.",
				QuestionType: model.QuestionTypeEssay,
				Marks:        10,
				OrderNum:     1,
			},
			{
				ID:           uuid.New(),
				QuestionText: "Pick B",
				QuestionType: model.QuestionTypeSingleChoice,
				Options:      []model.Option{choice("A", false), choice("B", true)},
				Marks:        5,
				OrderNum:     2,
			},
		},
	}
}

func (f *fixture) answerFor(t *testing.T, attemptID, questionID uuid.UUID) model.Answer {
	t.Helper()
	rows, _ := f.store.ListAnswers(f.ctx, attemptID)
	for _, r := range rows {
		if r.QuestionID == questionID {
			return r
		}
	}
	t.Fatalf("no answer for question %s", questionID)
	return model.Answer{}
}

func TestNegativeMarkingClampsAtZero(t *testing.T) {
	f := newFixture(t, AttemptConfig{})
	exam := twoQuestionExam()
	exam.EnableNegativeMarking = true
	exam.Questions[0].NegativeMarks = 2
	exam.Questions[1].NegativeMarks = 2
	f.addExam(exam)
	id := f.start(t, exam.ID, 7).Attempt.ID

	f.answers.SaveAnswer(f.ctx, id, exam.Questions[0].ID, 7, &model.SaveAnswerRequest{SelectedOptionID: strPtr("B")})
	f.answers.SaveAnswer(f.ctx, id, exam.Questions[1].ID, 7, &model.SaveAnswerRequest{NumericAnswer: floatPtr(3)})

	out, err := f.attempts.Submit(f.ctx, id, 7, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Result.MarksObtained != 0 || out.Result.Percentage != 0 {
		t.Errorf("marks = %v (%v%%), want 0", out.Result.MarksObtained, out.Result.Percentage)
	}
	if out.Result.IncorrectAnswers != 2 || out.Result.PassStatus != model.PassStatusFail || out.Result.Grade != "F" {
		t.Errorf("result = %+v", out.Result)
	}
	if got := f.answerFor(t, id, exam.Questions[0].ID).MarksObtained; got != -2 {
		t.Errorf("per-answer marks = %v, want -2", got)
	}
}

func TestNegativeMarkingDisabled(t *testing.T) {
	f := newFixture(t, AttemptConfig{})
	exam := twoQuestionExam()
	exam.Questions[0].NegativeMarks = 2
	f.addExam(exam)
	id := f.start(t, exam.ID, 7).Attempt.ID

	f.answers.SaveAnswer(f.ctx, id, exam.Questions[0].ID, 7, &model.SaveAnswerRequest{SelectedOptionID: strPtr("B")})
	f.attempts.Submit(f.ctx, id, 7, model.SubmitReasonManual)

	if got := f.answerFor(t, id, exam.Questions[0].ID).MarksObtained; got != 0 {
		t.Errorf("marks = %v, want 0", got)
	}
}

func TestManualGradingDefersResult(t *testing.T) {
	f := newFixture(t, AttemptConfig{})
	exam := f.addExam(essayExam())
	essay, mcq := exam.Questions[0].ID, exam.Questions[1].ID
	id := f.start(t, exam.ID, 7).Attempt.ID

	f.answers.SaveAnswer(f.ctx, id, essay, 7, &model.SaveAnswerRequest{TextAnswer: strPtr("The war began because...")})
	f.answers.SaveAnswer(f.ctx, id, mcq, 7, &model.SaveAnswerRequest{SelectedOptionID: strPtr("B")})
	essayAnswer := f.answerFor(t, id, essay).ID

	if _, err := f.results.GradeAnswer(f.ctx, essayAnswer, 99, &model.GradeAnswerRequest{MarksAwarded: 5}); !errors.Is(err, ErrAttemptNotFinished) {
		t.Errorf("grading a running attempt error = %v, want ErrAttemptNotFinished", err)
	}

	out, err := f.attempts.Submit(f.ctx, id, 7, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Result != nil {
		t.Fatalf("result = %+v, want none while the essay is pending", out.Result)
	}
	if got := f.answerFor(t, id, essay).GradingStatus; got != model.GradingStatusPending {
		t.Errorf("essay status = %s, want pending", got)
	}
	if _, err := f.results.Recompute(f.ctx, id); !errors.Is(err, ErrGradingPending) {
		t.Errorf("Recompute error = %v, want ErrGradingPending", err)
	}

	tests := []struct {
		name     string
		answerID uuid.UUID
		marks    float64
		want     error
	}{
		{"over max", essayAnswer, 11, ErrExceedsMaxMarks},
		{"objective answer", f.answerFor(t, id, mcq).ID, 1, ErrNotSubjective},
		{"unknown answer", uuid.New(), 1, ErrAnswerNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.results.GradeAnswer(f.ctx, tt.answerID, 99, &model.GradeAnswerRequest{MarksAwarded: tt.marks})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	graded, err := f.results.GradeAnswer(f.ctx, essayAnswer, 99, &model.GradeAnswerRequest{MarksAwarded: 7, Feedback: "Good structure"})
	if err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	if graded.Answer.GradingStatus != model.GradingStatusManualGraded || !*graded.Answer.IsCorrect {
		t.Errorf("answer = %s correct=%v", graded.Answer.GradingStatus, graded.Answer.IsCorrect)
	}
	res := graded.Result
	if res == nil {
		t.Fatal("expected result once nothing is pending")
	}
	if res.MarksObtained != 12 || res.Percentage != 80 || res.Grade != "A" || res.PassStatus != model.PassStatusPass {
		t.Errorf("result = %v marks %v%% %s %s", res.MarksObtained, res.Percentage, res.Grade, res.PassStatus)
	}
	if res.CorrectAnswers != 2 {
		t.Errorf("correct = %d, want 2", res.CorrectAnswers)
	}

	// Regrading overwrites both the grade row and the result.
	regraded, err := f.results.GradeAnswer(f.ctx, essayAnswer, 100, &model.GradeAnswerRequest{MarksAwarded: 0})
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if regraded.Result.MarksObtained != 5 || regraded.Result.CorrectAnswers != 1 || regraded.Result.IncorrectAnswers != 1 {
		t.Errorf("regraded result = %+v", regraded.Result)
	}
	if len(f.store.grades) != 1 || f.store.grades[essayAnswer].GraderID != 100 {
		t.Errorf("grades = %+v, want a single row by grader 100", f.store.grades)
	}
	if regraded.Result.ID != res.ID {
		t.Error("result row must be updated in place")
	}
}

func TestUnansweredEssayNeedsNoGrading(t *testing.T) {
	f := newFixture(t, AttemptConfig{})
	exam := f.addExam(essayExam())
	id := f.start(t, exam.ID, 7).Attempt.ID

	out, err := f.attempts.Submit(f.ctx, id, 7, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Result == nil || out.Result.Unanswered != 2 || out.Result.MarksObtained != 0 {
		t.Errorf("result = %+v, want two unanswered and zero marks", out.Result)
	}
}

func TestRecompute(t *testing.T) {
	f := newFixture(t, AttemptConfig{})
	exam := f.addExam(twoQuestionExam())
	id := f.start(t, exam.ID, 7).Attempt.ID

	if _, err := f.results.Recompute(f.ctx, id); !errors.Is(err, ErrAttemptNotFinished) {
		t.Errorf("Recompute on running attempt error = %v, want ErrAttemptNotFinished", err)
	}

	f.answers.SaveAnswer(f.ctx, id, exam.Questions[1].ID, 7, &model.SaveAnswerRequest{NumericAnswer: floatPtr(10)})
	first, err := f.attempts.Submit(f.ctx, id, 7, model.SubmitReasonManual)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	again, err := f.results.Recompute(f.ctx, id)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if again.MarksObtained != first.Result.MarksObtained || again.Percentage != first.Result.Percentage {
		t.Errorf("recompute = %v, want %v", again.MarksObtained, first.Result.MarksObtained)
	}

	if _, err := f.results.Recompute(f.ctx, uuid.New()); !errors.Is(err, ErrAttemptNotFound) {
		t.Errorf("unknown attempt error = %v, want ErrAttemptNotFound", err)
	}
}

func TestPublishAndStudentView(t *testing.T) {
	f := newFixture(t, AttemptConfig{})
	exam := f.addExam(twoQuestionExam())
	id := f.start(t, exam.ID, 7).Attempt.ID
	f.answers.SaveAnswer(f.ctx, id, exam.Questions[0].ID, 7, &model.SaveAnswerRequest{SelectedOptionID: strPtr("A")})
	f.attempts.Submit(f.ctx, id, 7, model.SubmitReasonManual)

	if _, err := f.results.GetStudentResult(f.ctx, id, 7); !errors.Is(err, ErrResultNotPublished) {
		t.Errorf("unpublished error = %v, want ErrResultNotPublished", err)
	}
	if staff, err := f.results.GetResult(f.ctx, id); err != nil || staff.MarksObtained != 5 {
		t.Errorf("staff view = %+v, %v", staff, err)
	}

	n, err := f.results.Publish(f.ctx, []uuid.UUID{id, uuid.New()}, 99)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 1 {
		t.Errorf("published = %d, want 1", n)
	}
	if n, _ := f.results.Publish(f.ctx, []uuid.UUID{id}, 99); n != 0 {
		t.Errorf("republish = %d, want 0", n)
	}

	view, err := f.results.GetStudentResult(f.ctx, id, 7)
	if err != nil {
		t.Fatalf("GetStudentResult: %v", err)
	}
	if view.MarksObtained != 5 || view.Grade != "D" || view.PublishedAt == nil || view.AttemptID != id {
		t.Errorf("student view = %+v", view)
	}
	if _, err := f.results.GetStudentResult(f.ctx, id, 8); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("other user error = %v, want ErrUnauthorized", err)
	}

	// Publication survives a recompute.
	f.results.Recompute(f.ctx, id)
	if res := f.store.results[id]; !res.IsPublished {
		t.Error("recompute must keep the publication flag")
	}
}

func TestAggregate(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name    string
		exam    *model.Exam
		answers []model.Answer
		marks   float64
		pct     float64
		pass    model.PassStatus
		grade   string
	}{
		{
			name:  "zero total marks",
			exam:  &model.Exam{TotalMarks: 0, PassMarks: 0},
			marks: 0, pct: 0, pass: model.PassStatusPass, grade: "F",
		},
		{
			name: "rounds percentage",
			exam: &model.Exam{TotalMarks: 3, PassMarks: 2},
			answers: []model.Answer{
				{IsAnswered: true, IsCorrect: &yes, MarksObtained: 1},
				{IsAnswered: true, IsCorrect: &yes, MarksObtained: 1},
				{IsAnswered: true, IsCorrect: &no},
			},
			marks: 2, pct: 66.67, pass: model.PassStatusPass, grade: "C",
		},
		{
			name: "fractional marks",
			exam: &model.Exam{TotalMarks: 1, PassMarks: 0.3},
			answers: []model.Answer{
				{IsAnswered: true, IsCorrect: &yes, MarksObtained: 0.1},
				{IsAnswered: true, IsCorrect: &yes, MarksObtained: 0.2},
			},
			marks: 0.3, pct: 30, pass: model.PassStatusPass, grade: "F",
		},
		{
			name: "negative clamps",
			exam: &model.Exam{TotalMarks: 10, PassMarks: 5},
			answers: []model.Answer{
				{IsAnswered: true, IsCorrect: &no, MarksObtained: -4},
				{},
			},
			marks: 0, pct: 0, pass: model.PassStatusFail, grade: "F",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Aggregate(tt.exam, tt.answers)
			if res.MarksObtained != tt.marks || res.Percentage != tt.pct {
				t.Errorf("marks = %v (%v%%), want %v (%v%%)", res.MarksObtained, res.Percentage, tt.marks, tt.pct)
			}
			if res.PassStatus != tt.pass || res.Grade != tt.grade {
				t.Errorf("verdict = %s %s, want %s %s", res.PassStatus, res.Grade, tt.pass, tt.grade)
			}
		})
	}
}
