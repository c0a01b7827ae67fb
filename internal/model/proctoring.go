package model

import (
	"encoding/json"
	"time"
)

// ProctoringEventType enumerates client-reported integrity signals.
type ProctoringEventType string

const (
	EventFullscreenExit ProctoringEventType = "FULLSCREEN_EXIT"
	EventTabSwitch      ProctoringEventType = "TAB_SWITCH"
	EventCopyPaste      ProctoringEventType = "COPY_PASTE"
	EventSuspicious     ProctoringEventType = "SUSPICIOUS"
)

// Valid reports whether t is a known event type.
func (t ProctoringEventType) Valid() bool {
	switch t {
	case EventFullscreenExit, EventTabSwitch, EventCopyPaste, EventSuspicious:
		return true
	}
	return false
}

// ProctoringEvent is one entry of a session's append-only integrity log.
type ProctoringEvent struct {
	Type      ProctoringEventType `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Details   json.RawMessage     `json:"details,omitempty"`
}

// ProctoringCounters is what the client sees after reporting an event. It
// carries no answer data.
type ProctoringCounters struct {
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status"`
	FullscreenExits int           `json:"fullscreen_exits"`
	TabSwitches     int           `json:"tab_switches"`
	CopyPasteEvents int           `json:"copy_paste_events"`
	TotalEvents     int           `json:"total_events"`
}

// RecordEventRequest is the payload for reporting a proctoring event.
type RecordEventRequest struct {
	Type    ProctoringEventType `json:"type" binding:"required,proctor_event"`
	Details json.RawMessage     `json:"details" binding:"omitempty"`
}
