package websocket

import (
	"encoding/json"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionProctor  Action = "proctor"
	ActionSubmit   Action = "submit"
	ActionClock    Action = "clock"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest carries the same fields as the HTTP autosave.
type AutosaveRequest struct {
	Action Action `json:"action"`
	model.UpdateSessionRequest
}

// ProctorRequest reports one proctoring event.
type ProctorRequest struct {
	Action  Action                    `json:"action"`
	Type    model.ProctoringEventType `json:"type"`
	Details json.RawMessage           `json:"details,omitempty"`
}

// SubmitRequest finishes the session. Nil answers submit the autosaved ones.
type SubmitRequest struct {
	Action  Action        `json:"action"`
	Answers model.Answers `json:"answers"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSaved     Event = "saved"
	EventRecorded  Event = "recorded"
	EventCompleted Event = "completed"
	EventClock     Event = "clock"
	EventPong      Event = "pong"
)

type SavedResponse struct {
	Event               Event               `json:"event"`
	Status              model.SessionStatus `json:"status"`
	ServerTimeRemaining int                 `json:"server_time_remaining"`
}

type RecordedResponse struct {
	Event    Event                     `json:"event"`
	Counters *model.ProctoringCounters `json:"counters"`
}

type CompletedResponse struct {
	Event  Event                   `json:"event"`
	Result *model.CompletionResult `json:"result"`
}

type ClockResponse struct {
	Event Event               `json:"event"`
	Clock *model.SessionClock `json:"clock"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
