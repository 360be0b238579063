package websocket

import (
	"github.com/stemsi/exstem-cbt/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionProgress  Action = "progress"
	ActionHeartbeat Action = "heartbeat"
	ActionEvent     Action = "event"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestPayload is every client message. Only the field matching Action is
// read; RequestID is echoed back so the client can pair replies.
type RequestPayload struct {
	Action     Action                       `json:"action"`
	RequestID  string                       `json:"request_id,omitempty"`
	QuestionID string                       `json:"question_id,omitempty"`
	Answer     *model.SaveAnswerRequest     `json:"answer,omitempty"`
	Progress   *model.UpdateProgressRequest `json:"progress,omitempty"`
	Event      *model.LogEventRequest       `json:"event,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSession   Event = "session"
	EventSaved     Event = "saved"
	EventProgress  Event = "progress"
	EventAccepted  Event = "accepted"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// ResponsePayload wraps every server message.
type ResponsePayload struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event     Event  `json:"event"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}
