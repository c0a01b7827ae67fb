package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionEvent is published after a committed transition. It feeds both the
// instructor live monitor and the rewards/notification topic.
type SessionEvent struct {
	Type         string              `json:"type"`
	SessionID    uuid.UUID           `json:"session_id"`
	AssessmentID uuid.UUID           `json:"assessment_id"`
	UserID       string              `json:"user_id"`
	Status       SessionStatus       `json:"status"`
	AttemptID    *uuid.UUID          `json:"attempt_id,omitempty"`
	Score        *float64            `json:"score,omitempty"`
	Passed       *bool               `json:"passed,omitempty"`
	Proctoring   *ProctoringCounters `json:"proctoring,omitempty"`
	EventType    ProctoringEventType `json:"event_type,omitempty"`
	OccurredAt   time.Time           `json:"occurred_at"`
}
