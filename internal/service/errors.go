package service

import "errors"

// Domain errors returned by the session service. Handlers map them to
// response codes with errors.Is.
var (
	ErrNotFound             = errors.New("session or assessment not found")
	ErrInvalidConfiguration = errors.New("assessment is not configured as a timed exam")
	ErrSessionAlreadyActive = errors.New("an active or paused session already exists for this assessment")
	ErrAttemptsExhausted    = errors.New("maximum number of attempts reached")
	ErrInvalidState         = errors.New("operation not allowed in the current session state")
	ErrPauseNotAllowed      = errors.New("pausing is not allowed for this assessment")
	ErrSessionExpired       = errors.New("session deadline has passed")
	ErrAlreadyCompleted     = errors.New("session is already completed")
	ErrInvalidEventType     = errors.New("unknown proctoring event type")
)

// Internal apply outcomes; they abort a transition without writing.
var (
	errDeadlinePassed = errors.New("deadline passed")
	errNoChange       = errors.New("no change")
	errNotDue         = errors.New("session not yet due")
)
