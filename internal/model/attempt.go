package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptTrigger records what caused scoring.
type AttemptTrigger string

const (
	AttemptTriggerSubmit     AttemptTrigger = "SUBMIT"
	AttemptTriggerAutoSubmit AttemptTrigger = "AUTO_SUBMIT"
)

// AssessmentAttempt is the immutable scored outcome of a completed session.
type AssessmentAttempt struct {
	ID             uuid.UUID         `json:"id"`
	SessionID      uuid.UUID         `json:"session_id"`
	AssessmentID   uuid.UUID         `json:"assessment_id"`
	UserID         string            `json:"user_id"`
	Answers        Answers           `json:"answers"`
	Score          float64           `json:"score"`
	TotalPoints    int               `json:"total_points"`
	EarnedPoints   int               `json:"earned_points"`
	Passed         bool              `json:"passed"`
	TimeSpent      int               `json:"time_spent"`
	PauseCount     int               `json:"pause_count"`
	WarningsIssued []ProctoringEvent `json:"warnings_issued"`
	Trigger        AttemptTrigger    `json:"trigger"`
	CompletedAt    time.Time         `json:"completed_at"`
}

// CompletionResult is returned by complete and by an auto-submitting expiry.
type CompletionResult struct {
	Session *ExamSession       `json:"session"`
	Attempt *AssessmentAttempt `json:"attempt,omitempty"`
}
