// Package memory is an in-process implementation of the session, attempt and
// assessment stores. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/repository"
)

// Store holds sessions, attempts and assessments behind one mutex, which gives
// every Transition the same serialization a row lock gives in Postgres.
type Store struct {
	mu          sync.RWMutex
	sessions    map[uuid.UUID]*model.ExamSession
	attempts    map[uuid.UUID]*model.AssessmentAttempt
	assessments map[uuid.UUID]*model.Assessment
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		sessions:    make(map[uuid.UUID]*model.ExamSession),
		attempts:    make(map[uuid.UUID]*model.AssessmentAttempt),
		assessments: make(map[uuid.UUID]*model.Assessment),
	}
}

// Sessions, Attempts and Assessments expose the store under the names the
// service wiring expects.
func (m *Store) Sessions() *SessionStore       { return &SessionStore{m} }
func (m *Store) Attempts() *AttemptStore       { return &AttemptStore{m} }
func (m *Store) Assessments() *AssessmentStore { return &AssessmentStore{m} }

// SessionStore is the session view of Store.
type SessionStore struct{ m *Store }

// Create inserts s, enforcing one open session per (assessment, user).
func (r *SessionStore) Create(_ context.Context, s *model.ExamSession) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if s.Status.In(model.OpenStatuses) {
		for _, other := range r.m.sessions {
			if other.AssessmentID == s.AssessmentID && other.UserID == s.UserID && other.Status.In(model.OpenStatuses) {
				return repository.ErrActiveSessionExists
			}
		}
	}
	r.m.sessions[s.ID] = s.Clone()
	return nil
}

// GetByID returns a copy of the session.
func (r *SessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	s, ok := r.m.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

// GetOpen returns the ACTIVE or PAUSED session for the pair.
func (r *SessionStore) GetOpen(_ context.Context, assessmentID uuid.UUID, userID string) (*model.ExamSession, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	for _, s := range r.m.sessions {
		if s.AssessmentID == assessmentID && s.UserID == userID && s.Status.In(model.OpenStatuses) {
			return s.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

// Transition applies a guarded mutation. apply works on a copy, so a failed
// apply leaves the stored session untouched.
func (r *SessionStore) Transition(_ context.Context, id uuid.UUID, from []model.SessionStatus, apply repository.TransitionFunc) (*model.ExamSession, *model.AssessmentAttempt, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	stored, ok := r.m.sessions[id]
	if !ok {
		return nil, nil, repository.ErrNotFound
	}
	if !stored.Status.In(from) {
		return stored.Clone(), nil, repository.ErrStateConflict
	}

	s := stored.Clone()
	attempt, err := apply(s)
	if err != nil {
		return stored.Clone(), nil, err
	}
	if attempt != nil {
		for _, a := range r.m.attempts {
			if a.SessionID == attempt.SessionID {
				return nil, nil, repository.ErrAttemptExists
			}
		}
		r.m.attempts[attempt.ID] = cloneAttempt(attempt)
	}
	r.m.sessions[id] = s.Clone()
	return s, attempt, nil
}

// ListOverdue returns ids of sessions in statuses whose deadline is at or before now.
func (r *SessionStore) ListOverdue(_ context.Context, statuses []model.SessionStatus, now time.Time, limit int) ([]uuid.UUID, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var overdue []*model.ExamSession
	for _, s := range r.m.sessions {
		if s.Status.In(statuses) && !s.ExpiresAt.After(now) {
			overdue = append(overdue, s)
		}
	}
	slices.SortFunc(overdue, func(a, b *model.ExamSession) int { return a.ExpiresAt.Compare(b.ExpiresAt) })
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}

	ids := make([]uuid.UUID, len(overdue))
	for i, s := range overdue {
		ids[i] = s.ID
	}
	return ids, nil
}

// ListByAssessment returns copies of every session of the assessment, newest first.
func (r *SessionStore) ListByAssessment(_ context.Context, assessmentID uuid.UUID) ([]model.ExamSession, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []model.ExamSession
	for _, s := range r.m.sessions {
		if s.AssessmentID == assessmentID {
			out = append(out, *s.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.ExamSession) int { return b.StartedAt.Compare(a.StartedAt) })
	return out, nil
}

// AttemptStore is the attempt view of Store.
type AttemptStore struct{ m *Store }

// GetByID returns a copy of the attempt.
func (r *AttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.AssessmentAttempt, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	a, ok := r.m.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAttempt(a), nil
}

// CountByAssessmentAndUser counts scored attempts for the pair.
func (r *AttemptStore) CountByAssessmentAndUser(_ context.Context, assessmentID uuid.UUID, userID string) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	n := 0
	for _, a := range r.m.attempts {
		if a.AssessmentID == assessmentID && a.UserID == userID {
			n++
		}
	}
	return n, nil
}

// ListByAssessment returns copies of every attempt of the assessment.
func (r *AttemptStore) ListByAssessment(_ context.Context, assessmentID uuid.UUID) ([]model.AssessmentAttempt, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var out []model.AssessmentAttempt
	for _, a := range r.m.attempts {
		if a.AssessmentID == assessmentID {
			out = append(out, *cloneAttempt(a))
		}
	}
	slices.SortFunc(out, func(a, b model.AssessmentAttempt) int { return b.CompletedAt.Compare(a.CompletedAt) })
	return out, nil
}

// AssessmentStore is the assessment view of Store.
type AssessmentStore struct{ m *Store }

// Put stores or replaces an assessment.
func (r *AssessmentStore) Put(a *model.Assessment) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	cp := *a
	cp.Questions = slices.Clone(a.Questions)
	r.m.assessments[a.ID] = &cp
}

// GetWithQuestions returns a copy of the assessment.
func (r *AssessmentStore) GetWithQuestions(_ context.Context, id uuid.UUID) (*model.Assessment, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	a, ok := r.m.assessments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	cp.Questions = slices.Clone(a.Questions)
	return &cp, nil
}

func cloneAttempt(a *model.AssessmentAttempt) *model.AssessmentAttempt {
	out := *a
	out.Answers = a.Answers.Clone()
	out.WarningsIssued = slices.Clone(a.WarningsIssued)
	return &out
}
