package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusPaused    SessionStatus = "PAUSED"
	SessionStatusCompleted SessionStatus = "COMPLETED"
	SessionStatusExpired   SessionStatus = "EXPIRED"
	SessionStatusAbandoned SessionStatus = "ABANDONED"
)

// OpenStatuses are the non-terminal states; at most one session per
// (assessment, user) may be in one of them.
var OpenStatuses = []SessionStatus{SessionStatusActive, SessionStatusPaused}

// IsTerminal reports whether no further transition is possible.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired || s == SessionStatusAbandoned
}

// In reports whether s is one of the given statuses. An empty list matches everything.
func (s SessionStatus) In(statuses []SessionStatus) bool {
	return len(statuses) == 0 || slices.Contains(statuses, s)
}

// ExamSession is one student's live or terminated attempt at a timed assessment.
// Time fields are in seconds.
type ExamSession struct {
	ID           uuid.UUID `json:"id"`
	AssessmentID uuid.UUID `json:"assessment_id"`
	UserID       string    `json:"user_id"`

	TimeLimit     int        `json:"time_limit"`
	TimeRemaining int        `json:"time_remaining"`
	TimeElapsed   int        `json:"time_elapsed"`
	StartedAt     time.Time  `json:"started_at"`
	PausedAt      *time.Time `json:"paused_at,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastActivity  time.Time  `json:"last_activity"`
	PauseCount    int        `json:"pause_count"`
	PausedSeconds int        `json:"paused_seconds"`

	CurrentQuestion int     `json:"current_question"`
	Answers         Answers `json:"answers"`

	FullscreenExits    int               `json:"fullscreen_exits"`
	TabSwitches        int               `json:"tab_switches"`
	SuspiciousActivity []ProctoringEvent `json:"suspicious_activity"`

	AttemptID *uuid.UUID    `json:"attempt_id,omitempty"`
	Status    SessionStatus `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ServerTimeRemaining is computed from ExpiresAt on every read; it is the
	// authoritative countdown value for clients.
	ServerTimeRemaining int `json:"server_time_remaining"`
}

// AppendEvent adds an entry to the integrity log and re-derives the counters
// from it, so the log and the counters cannot drift.
func (s *ExamSession) AppendEvent(ev ProctoringEvent) {
	s.SuspiciousActivity = append(s.SuspiciousActivity, ev)
	s.RecountIntegrity()
}

// RecountIntegrity recomputes FullscreenExits and TabSwitches from the log.
func (s *ExamSession) RecountIntegrity() {
	s.FullscreenExits, s.TabSwitches = 0, 0
	for _, ev := range s.SuspiciousActivity {
		switch ev.Type {
		case EventFullscreenExit:
			s.FullscreenExits++
		case EventTabSwitch:
			s.TabSwitches++
		}
	}
}

// Counters summarizes the integrity log.
func (s *ExamSession) Counters() ProctoringCounters {
	c := ProctoringCounters{
		SessionID:       s.ID.String(),
		Status:          s.Status,
		FullscreenExits: s.FullscreenExits,
		TabSwitches:     s.TabSwitches,
		TotalEvents:     len(s.SuspiciousActivity),
	}
	for _, ev := range s.SuspiciousActivity {
		if ev.Type == EventCopyPaste {
			c.CopyPasteEvents++
		}
	}
	return c
}

// AccruePause folds an in-progress pause into PausedSeconds and clears PausedAt.
func (s *ExamSession) AccruePause(now time.Time) {
	if s.PausedAt == nil {
		return
	}
	if d := now.Sub(*s.PausedAt); d > 0 {
		s.PausedSeconds += int(d / time.Second)
	}
	s.PausedAt = nil
}

// Clone returns a deep copy so stores never hand out shared maps or slices.
func (s *ExamSession) Clone() *ExamSession {
	out := *s
	out.Answers = s.Answers.Clone()
	out.SuspiciousActivity = slices.Clone(s.SuspiciousActivity)
	if s.PausedAt != nil {
		t := *s.PausedAt
		out.PausedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	if s.AttemptID != nil {
		id := *s.AttemptID
		out.AttemptID = &id
	}
	return &out
}

// SessionClock is the lightweight timing view used by clients to re-sync.
type SessionClock struct {
	SessionID           uuid.UUID     `json:"session_id"`
	Status              SessionStatus `json:"status"`
	ExpiresAt           time.Time     `json:"expires_at"`
	ServerTime          time.Time     `json:"server_time"`
	ServerTimeRemaining int           `json:"server_time_remaining"`
}

// UpdateSessionRequest is the autosave payload. Nil fields are left untouched.
type UpdateSessionRequest struct {
	TimeRemaining   *int    `json:"time_remaining" binding:"omitempty,min=0"`
	TimeElapsed     *int    `json:"time_elapsed" binding:"omitempty,min=0"`
	CurrentQuestion *int    `json:"current_question" binding:"omitempty,min=0"`
	Answers         Answers `json:"answers"`
}

// CompleteSessionRequest is the final submission payload.
type CompleteSessionRequest struct {
	Answers Answers `json:"answers"`
}
