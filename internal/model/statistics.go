package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatistics is the instructor view of all sessions of an assessment.
type SessionStatistics struct {
	AssessmentID    uuid.UUID        `json:"assessment_id"`
	Title           string           `json:"title"`
	TotalSessions   int              `json:"total_sessions"`
	Active          int              `json:"active"`
	Paused          int              `json:"paused"`
	Completed       int              `json:"completed"`
	Expired         int              `json:"expired"`
	Abandoned       int              `json:"abandoned"`
	FullscreenExits int              `json:"fullscreen_exits"`
	TabSwitches     int              `json:"tab_switches"`
	TotalEvents     int              `json:"total_events"`
	AverageScore    *float64         `json:"average_score,omitempty"`
	PassRate        *float64         `json:"pass_rate,omitempty"`
	Sessions        []SessionStatRow `json:"sessions"`
}

// SessionStatRow is one session in the statistics table.
type SessionStatRow struct {
	SessionID       uuid.UUID     `json:"session_id"`
	UserID          string        `json:"user_id"`
	Status          SessionStatus `json:"status"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	TimeElapsed     int           `json:"time_elapsed"`
	PauseCount      int           `json:"pause_count"`
	FullscreenExits int           `json:"fullscreen_exits"`
	TabSwitches     int           `json:"tab_switches"`
	TotalEvents     int           `json:"total_events"`
	Score           *float64      `json:"score,omitempty"`
	Passed          *bool         `json:"passed,omitempty"`
}
