package repository

import (
	"errors"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// Storage sentinels. The service maps them to domain errors.
var (
	ErrNotFound            = errors.New("record not found")
	ErrActiveSessionExists = errors.New("an open session already exists for this assessment and user")
	ErrStateConflict       = errors.New("session is not in an expected state")
	ErrAttemptExists       = errors.New("an attempt already exists for this session")
)

// TransitionFunc mutates a locked session in place. A non-nil attempt is
// persisted in the same transaction. Returning an error aborts the transition
// and nothing is written.
type TransitionFunc func(s *model.ExamSession) (*model.AssessmentAttempt, error)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"
