package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDefaultSeverity(t *testing.T) {
	tests := []struct {
		eventType string
		want      Severity
	}{
		{EventTabSwitch, SeverityHigh},
		{EventFullscreenExit, SeverityCritical},
		{EventRightClick, SeverityMedium},
		{EventNetworkDisconnect, SeverityCritical},
		{EventNetworkReconnect, SeverityInfo},
		{"custom_signal", SeverityLow},
	}
	for _, tt := range tests {
		if got := DefaultSeverity(tt.eventType); got != tt.want {
			t.Errorf("DefaultSeverity(%q) = %s, want %s", tt.eventType, got, tt.want)
		}
		if !DefaultSeverity(tt.eventType).Valid() {
			t.Errorf("DefaultSeverity(%q) is not a valid severity", tt.eventType)
		}
	}
	if Severity("extreme").Valid() {
		t.Error(`Severity("extreme").Valid() = true`)
	}
}

func TestAttemptStatus(t *testing.T) {
	tests := []struct {
		status   AttemptStatus
		terminal bool
		open     bool
	}{
		{AttemptStatusInProgress, false, true},
		{AttemptStatusPaused, false, true},
		{AttemptStatusSubmitted, true, false},
		{AttemptStatusAutoSubmitted, true, false},
		{AttemptStatusExpired, true, false},
		{AttemptStatusTerminated, true, false},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v", tt.status, got)
		}
		if got := tt.status.IsOpen(); got != tt.open {
			t.Errorf("%s.IsOpen() = %v", tt.status, got)
		}
	}
}

func TestSubmitReasonTerminalStatus(t *testing.T) {
	want := map[SubmitReason]AttemptStatus{
		SubmitReasonManual: AttemptStatusSubmitted,
		SubmitReasonForced: AttemptStatusSubmitted,
		SubmitReasonAuto:   AttemptStatusAutoSubmitted,
	}
	for reason, status := range want {
		if got := reason.TerminalStatus(); got != status {
			t.Errorf("%s.TerminalStatus() = %s, want %s", reason, got, status)
		}
	}
}

func TestAttemptDeadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := &Attempt{ExpiresAt: start.Add(time.Hour)}

	tests := []struct {
		at        time.Time
		remaining int
		expired   bool
	}{
		{start, 3600, false},
		{start.Add(59*time.Minute + 30*time.Second), 30, false},
		{start.Add(time.Hour), 0, true},
		{start.Add(2 * time.Hour), 0, true},
	}
	for _, tt := range tests {
		if got := a.RemainingAt(tt.at); got != tt.remaining {
			t.Errorf("RemainingAt(%s) = %d, want %d", tt.at.Format(time.TimeOnly), got, tt.remaining)
		}
		if got := a.ExpiredAt(tt.at); got != tt.expired {
			t.Errorf("ExpiredAt(%s) = %v, want %v", tt.at.Format(time.TimeOnly), got, tt.expired)
		}
	}
}

func TestCheatRulesRequiresMonitoring(t *testing.T) {
	if (CheatRules{}).RequiresMonitoring() {
		t.Error("empty rules require monitoring")
	}
	if (CheatRules{MaxTabSwitchesAllowed: 3}).RequiresMonitoring() {
		t.Error("a threshold alone requires monitoring")
	}
	for _, r := range []CheatRules{
		{TabSwitchDetection: true},
		{FullscreenLock: true},
		{BlockCopyPaste: true},
		{RequireWebcam: true},
		{EnableProctoring: true},
	} {
		if !r.RequiresMonitoring() {
			t.Errorf("%+v does not require monitoring", r)
		}
	}
}

func TestQuestionForStudentHidesKey(t *testing.T) {
	q := &Question{
		ID:           uuid.New(),
		QuestionText: "Capital of France?",
		QuestionType: QuestionTypeSingleChoice,
		Options: []Option{
			{ID: "A", Text: "Lyon"},
			{ID: "B", Text: "Paris", IsCorrect: true},
		},
		Marks: 2,
	}

	if !q.HasOption("B") || q.HasOption("C") {
		t.Error("HasOption mismatch")
	}
	if ids := q.CorrectOptionIDs(); len(ids) != 1 || ids[0] != "B" {
		t.Errorf("CorrectOptionIDs = %v", ids)
	}

	b, err := json.Marshal(q.ForStudent())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "is_correct") {
		t.Errorf("student view leaks the key: %s", b)
	}
}

func TestQuestionTypeClasses(t *testing.T) {
	tests := []struct {
		typ        QuestionType
		single     bool
		text       bool
		subjective bool
	}{
		{QuestionTypeSingleChoice, true, false, false},
		{QuestionTypeTrueFalse, true, false, false},
		{QuestionTypeMultipleChoice, false, false, false},
		{QuestionTypeShortAnswer, false, true, false},
		{QuestionTypeNumeric, false, false, false},
		{QuestionTypeEssay, false, true, true},
		{QuestionTypeFileUpload, false, true, true},
	}
	for _, tt := range tests {
		if tt.typ.IsSingleChoice() != tt.single || tt.typ.IsText() != tt.text || tt.typ.IsSubjective() != tt.subjective {
			t.Errorf("%s classes = %v/%v/%v", tt.typ, tt.typ.IsSingleChoice(), tt.typ.IsText(), tt.typ.IsSubjective())
		}
	}
}

func TestSaveAnswerRequestHasValue(t *testing.T) {
	flag := true
	text := ""
	tests := []struct {
		name string
		req  SaveAnswerRequest
		want bool
	}{
		{"empty", SaveAnswerRequest{}, false},
		{"flag only", SaveAnswerRequest{IsFlaggedForReview: &flag}, false},
		{"clear", SaveAnswerRequest{Clear: true}, true},
		{"empty text counts", SaveAnswerRequest{TextAnswer: &text}, true},
		{"empty option list counts", SaveAnswerRequest{SelectedOptionIDs: []string{}}, true},
	}
	for _, tt := range tests {
		if got := tt.req.HasValue(); got != tt.want {
			t.Errorf("%s: HasValue = %v, want %v", tt.name, got, tt.want)
		}
	}
}
