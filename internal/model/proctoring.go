package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ProctoringSessionStatus enumerates proctoring session states.
type ProctoringSessionStatus string

const (
	ProctoringSessionActive    ProctoringSessionStatus = "active"
	ProctoringSessionCompleted ProctoringSessionStatus = "completed"
)

// ConnectionStatus is the last known client connectivity.
type ConnectionStatus string

const (
	ConnectionStable       ConnectionStatus = "stable"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// Severity grades how serious a proctoring event is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Well-known proctoring event types.
const (
	EventTabSwitch         = "tab_switch"
	EventWindowBlur        = "window_blur"
	EventFullscreenExit    = "fullscreen_exit"
	EventCopyAttempt       = "copy_attempt"
	EventPasteAttempt      = "paste_attempt"
	EventCutAttempt        = "cut_attempt"
	EventRightClick        = "right_click"
	EventContextMenu       = "context_menu"
	EventDevtoolsOpen      = "devtools_open"
	EventPrintAttempt      = "print_attempt"
	EventMultipleFaces     = "multiple_faces"
	EventNoFace            = "no_face"
	EventPageReload        = "page_reload"
	EventNetworkDisconnect = "network_disconnect"
	EventNetworkReconnect  = "network_reconnect"
	EventAttemptTerminated = "attempt_terminated"
)

// eventSeverities is the default severity per event type, applied when the
// reporter does not supply one.
var eventSeverities = map[string]Severity{
	EventTabSwitch:         SeverityHigh,
	EventWindowBlur:        SeverityHigh,
	EventFullscreenExit:    SeverityCritical,
	EventCopyAttempt:       SeverityHigh,
	EventPasteAttempt:      SeverityHigh,
	EventCutAttempt:        SeverityHigh,
	EventRightClick:        SeverityMedium,
	EventContextMenu:       SeverityMedium,
	EventDevtoolsOpen:      SeverityCritical,
	EventPrintAttempt:      SeverityHigh,
	EventMultipleFaces:     SeverityCritical,
	EventNoFace:            SeverityHigh,
	EventPageReload:        SeverityMedium,
	EventNetworkDisconnect: SeverityCritical,
	EventNetworkReconnect:  SeverityInfo,
}

// DefaultSeverity returns the configured severity for an event type.
// Unmapped types are low.
func DefaultSeverity(eventType string) Severity {
	if s, ok := eventSeverities[eventType]; ok {
		return s
	}
	return SeverityLow
}

// DisconnectionEntry is one line of a session's disconnection log.
type DisconnectionEntry struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

// ProctoringSession tracks liveness and violations for one attempt.
type ProctoringSession struct {
	ID                       uuid.UUID               `json:"id"`
	AttemptID                uuid.UUID               `json:"attempt_id"`
	Status                   ProctoringSessionStatus `json:"status"`
	StartedAt                time.Time               `json:"started_at"`
	EndedAt                  *time.Time              `json:"ended_at,omitempty"`
	LastActivityAt           time.Time               `json:"last_activity_at"`
	ConnectionStatus         ConnectionStatus        `json:"connection_status"`
	DisconnectionCount       int                     `json:"disconnection_count"`
	DisconnectionLog         []DisconnectionEntry    `json:"disconnection_log"`
	TotalViolations          int                     `json:"total_violations"`
	ViolationSummary         map[string]int          `json:"violation_summary"`
	RecordingDurationSeconds int                     `json:"recording_duration_seconds"`
}

// ProctoringEvent is an immutable entry of the proctoring log.
// SessionID is nil for administrative events on unmonitored attempts.
type ProctoringEvent struct {
	ID         uuid.UUID       `json:"id"`
	SessionID  *uuid.UUID      `json:"session_id,omitempty"`
	AttemptID  uuid.UUID       `json:"attempt_id"`
	EventType  string          `json:"event_type"`
	Severity   Severity        `json:"severity"`
	EventData  json.RawMessage `json:"event_data,omitempty"`
	DetectedAt time.Time       `json:"detected_at"`
}

// LogEventRequest is a client-reported proctoring event.
type LogEventRequest struct {
	EventType string          `json:"event_type" binding:"required,event_type"`
	Severity  Severity        `json:"severity" binding:"omitempty,oneof=info low medium high critical"`
	EventData json.RawMessage `json:"event_data"`
}

// QueuedEvent is a proctoring event accepted over the WebSocket and waiting
// in the Redis queue to be written by the proctoring worker.
type QueuedEvent struct {
	AttemptID  uuid.UUID       `json:"attempt_id"`
	UserID     int             `json:"user_id"`
	Event      LogEventRequest `json:"event"`
	ReceivedAt time.Time       `json:"received_at"`
}
