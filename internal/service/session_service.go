package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/repository"
)

// SessionStore persists exam sessions. Transition is the only mutation path
// after Create and must run apply atomically with its status guard.
type SessionStore interface {
	Create(ctx context.Context, s *model.ExamSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetOpen(ctx context.Context, assessmentID uuid.UUID, userID string) (*model.ExamSession, error)
	Transition(ctx context.Context, id uuid.UUID, from []model.SessionStatus, apply repository.TransitionFunc) (*model.ExamSession, *model.AssessmentAttempt, error)
	ListOverdue(ctx context.Context, statuses []model.SessionStatus, now time.Time, limit int) ([]uuid.UUID, error)
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.ExamSession, error)
}

// AttemptStore reads scored attempts.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentAttempt, error)
	CountByAssessmentAndUser(ctx context.Context, assessmentID uuid.UUID, userID string) (int, error)
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.AssessmentAttempt, error)
}

// AssessmentReader looks up assessment configuration.
type AssessmentReader interface {
	GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Assessment, error)
}

// EventPublisher delivers terminal-transition events to the rewards and
// notification collaborator.
type EventPublisher interface {
	Publish(ctx context.Context, ev model.SessionEvent) error
}

// LiveNotifier pushes events to instructors watching an assessment.
type LiveNotifier interface {
	Notify(ctx context.Context, ev model.SessionEvent) error
}

// ClockCache keeps a fast deadline snapshot per session.
type ClockCache interface {
	Get(ctx context.Context, sessionID uuid.UUID) (*repository.CachedClock, error)
	Set(ctx context.Context, s *model.ExamSession, now time.Time) (bool, error)
	Delete(ctx context.Context, sessionID uuid.UUID) error
}

// Observer receives lifecycle measurements.
type Observer interface {
	SessionTransition(status model.SessionStatus)
	SweepFinished(report *SweepReport, elapsed time.Duration)
}

// SessionConfig tunes SessionService. Nil collaborators are skipped.
type SessionConfig struct {
	PauseExcludedFromDeadline bool
	SubmitGrace               time.Duration
	SweepBatchSize            int
	CollaboratorTimeout       time.Duration

	Publisher EventPublisher
	Notifier  LiveNotifier
	Clocks    ClockCache
	Observer  Observer

	// Now overrides the clock in tests.
	Now func() time.Time
}

// SessionConfigFrom builds the tunables from application config.
func SessionConfigFrom(cfg *config.Config) SessionConfig {
	return SessionConfig{
		PauseExcludedFromDeadline: cfg.PauseExcludedFromDeadline,
		SubmitGrace:               cfg.SubmitGrace,
		SweepBatchSize:            cfg.SweepBatchSize,
	}
}

// SessionService is the session lifecycle manager. It owns the state machine
// (start, update, pause, resume, complete, abandon, expire), the proctoring
// recorder and the sweep.
type SessionService struct {
	sessions    SessionStore
	attempts    AttemptStore
	assessments AssessmentReader
	cfg         SessionConfig
	log         zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(sessions SessionStore, attempts AttemptStore, assessments AssessmentReader, cfg SessionConfig) *SessionService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 200
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = 5 * time.Second
	}
	return &SessionService{
		sessions:    sessions,
		attempts:    attempts,
		assessments: assessments,
		cfg:         cfg,
		log:         log.With().Str("component", "session_service").Logger(),
	}
}

func (s *SessionService) now() time.Time {
	return s.cfg.Now().UTC()
}

// Start opens a new ACTIVE session with an absolute deadline.
func (s *SessionService) Start(ctx context.Context, assessmentID uuid.UUID, userID string) (*model.ExamSession, error) {
	assessment, err := s.getAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if !assessment.Timed() {
		return nil, ErrInvalidConfiguration
	}

	open, err := s.sessions.GetOpen(ctx, assessmentID, userID)
	switch {
	case err == nil:
		// A session left open past its deadline is resolved here rather than
		// blocking the student until the next sweep.
		if !s.overdue(open, s.now()) {
			return nil, ErrSessionAlreadyActive
		}
		if _, _, err := s.expire(ctx, open.ID); err != nil {
			return nil, fmt.Errorf("expire stale session: %w", err)
		}
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get open session: %w", err)
	}

	if assessment.MaxAttempts > 0 {
		used, err := s.attempts.CountByAssessmentAndUser(ctx, assessmentID, userID)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if used >= assessment.MaxAttempts {
			return nil, ErrAttemptsExhausted
		}
	}

	now := s.now()
	limit := assessment.TimeLimitSeconds()
	sess := &model.ExamSession{
		ID:                 uuid.New(),
		AssessmentID:       assessmentID,
		UserID:             userID,
		TimeLimit:          limit,
		TimeRemaining:      limit,
		StartedAt:          now,
		ExpiresAt:          now.Add(time.Duration(limit) * time.Second),
		LastActivity:       now,
		Answers:            model.Answers{},
		SuspiciousActivity: []model.ProctoringEvent{},
		Status:             model.SessionStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, repository.ErrActiveSessionExists) {
			return nil, ErrSessionAlreadyActive
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.afterCommit(ctx, sess, nil, config.EventKey.SessionStarted)
	return s.decorate(sess, now), nil
}

// GetActive returns the caller's open session for an assessment, or nil when
// there is none. An open session found past its deadline is expired first.
func (s *SessionService) GetActive(ctx context.Context, assessmentID uuid.UUID, userID string) (*model.ExamSession, error) {
	sess, err := s.sessions.GetOpen(ctx, assessmentID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open session: %w", err)
	}

	if s.overdue(sess, s.now()) {
		if _, _, err := s.expire(ctx, sess.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s.decorate(sess, s.now()), nil
}

// GetSession returns one of the caller's sessions. An open session past its
// deadline is expired and returned in its terminal state.
func (s *SessionService) GetSession(ctx context.Context, id uuid.UUID, userID string) (*model.ExamSession, error) {
	sess, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Status.IsTerminal() && s.overdue(sess, s.now()) {
		res, _, err := s.expire(ctx, id)
		if err != nil {
			return nil, err
		}
		if res != nil {
			sess = res.Session
		}
	}
	return s.decorate(sess, s.now()), nil
}

// GetAttempt returns one of the caller's scored attempts.
func (s *SessionService) GetAttempt(ctx context.Context, id uuid.UUID, userID string) (*model.AssessmentAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if userID != "" && attempt.UserID != userID {
		return nil, ErrNotFound
	}
	return attempt, nil
}

// Update is the autosave path. It overwrites the provided progress fields and
// stamps last activity; it never changes status. A call that arrives after the
// deadline expires the session and fails with ErrSessionExpired.
func (s *SessionService) Update(ctx context.Context, id uuid.UUID, userID string, req model.UpdateSessionRequest) (*model.ExamSession, error) {
	if _, err := s.load(ctx, id, userID); err != nil {
		return nil, err
	}

	now := s.now()
	// PAUSED is admitted only so a lapsed deadline expires the session; a
	// paused session still on the clock rejects autosave.
	sess, _, err := s.sessions.Transition(ctx, id, []model.SessionStatus{model.SessionStatusActive, model.SessionStatusPaused},
		func(x *model.ExamSession) (*model.AssessmentAttempt, error) {
			if s.overdue(x, now) {
				return nil, errDeadlinePassed
			}
			if x.Status != model.SessionStatusActive {
				return nil, ErrInvalidState
			}
			if req.TimeRemaining != nil {
				x.TimeRemaining = clamp(*req.TimeRemaining, 0, x.TimeLimit)
			}
			if req.TimeElapsed != nil {
				x.TimeElapsed = clamp(*req.TimeElapsed, 0, x.TimeLimit)
			}
			if req.CurrentQuestion != nil {
				x.CurrentQuestion = max(*req.CurrentQuestion, 0)
			}
			if req.Answers != nil {
				x.Answers = req.Answers.Clone()
			}
			x.LastActivity = now
			x.UpdatedAt = now
			return nil, nil
		})
	if err != nil {
		return nil, s.resolveTransitionErr(ctx, id, sess, err)
	}
	return s.decorate(sess, now), nil
}

// Pause moves an ACTIVE session to PAUSED when the assessment allows it.
func (s *SessionService) Pause(ctx context.Context, id uuid.UUID, userID string) (*model.ExamSession, error) {
	current, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	assessment, err := s.getAssessment(ctx, current.AssessmentID)
	if err != nil {
		return nil, err
	}
	if !assessment.AllowPause {
		return nil, ErrPauseNotAllowed
	}

	now := s.now()
	sess, _, err := s.sessions.Transition(ctx, id, []model.SessionStatus{model.SessionStatusActive},
		func(x *model.ExamSession) (*model.AssessmentAttempt, error) {
			if s.overdue(x, now) {
				return nil, errDeadlinePassed
			}
			x.Status = model.SessionStatusPaused
			x.PausedAt = &now
			x.PauseCount++
			x.LastActivity = now
			x.UpdatedAt = now
			return nil, nil
		})
	if err != nil {
		return nil, s.resolveTransitionErr(ctx, id, sess, err)
	}

	s.afterCommit(ctx, sess, nil, config.EventKey.SessionPaused)
	return s.decorate(sess, now), nil
}

// Resume moves a PAUSED session back to ACTIVE. With the default absolute
// deadline the paused time is charged; with PauseExcludedFromDeadline the
// deadline moves forward by the paused duration. If the deadline has passed,
// the session is expired and ErrSessionExpired is returned.
func (s *SessionService) Resume(ctx context.Context, id uuid.UUID, userID string) (*model.ExamSession, error) {
	if _, err := s.load(ctx, id, userID); err != nil {
		return nil, err
	}

	now := s.now()
	sess, _, err := s.sessions.Transition(ctx, id, []model.SessionStatus{model.SessionStatusPaused},
		func(x *model.ExamSession) (*model.AssessmentAttempt, error) {
			if s.cfg.PauseExcludedFromDeadline && x.PausedAt != nil {
				left := x.ExpiresAt.Sub(*x.PausedAt)
				if left <= 0 {
					return nil, errDeadlinePassed
				}
				x.ExpiresAt = now.Add(left)
			} else if !now.Before(x.ExpiresAt) {
				return nil, errDeadlinePassed
			}
			x.AccruePause(now)
			x.Status = model.SessionStatusActive
			x.LastActivity = now
			x.UpdatedAt = now
			return nil, nil
		})
	if err != nil {
		return nil, s.resolveTransitionErr(ctx, id, sess, err)
	}

	s.afterCommit(ctx, sess, nil, config.EventKey.SessionResumed)
	return s.decorate(sess, now), nil
}

// Abandon ends a session without scoring. Already terminal sessions are
// returned unchanged, so attemptId is never reset.
func (s *SessionService) Abandon(ctx context.Context, id uuid.UUID, userID string) (*model.ExamSession, error) {
	if _, err := s.load(ctx, id, userID); err != nil {
		return nil, err
	}

	now := s.now()
	sess, _, err := s.sessions.Transition(ctx, id, nil,
		func(x *model.ExamSession) (*model.AssessmentAttempt, error) {
			if x.Status.IsTerminal() {
				return nil, errNoChange
			}
			x.AccruePause(now)
			x.Status = model.SessionStatusAbandoned
			x.CompletedAt = &now
			x.LastActivity = now
			x.UpdatedAt = now
			return nil, nil
		})
	if errors.Is(err, errNoChange) {
		return s.decorate(sess, now), nil
	}
	if err != nil {
		return nil, s.resolveTransitionErr(ctx, id, sess, err)
	}

	s.afterCommit(ctx, sess, nil, config.EventKey.SessionAbandoned)
	return s.decorate(sess, now), nil
}

// load fetches a session and hides sessions the caller does not own. An empty
// userID is a system caller and skips the ownership check.
func (s *SessionService) load(ctx context.Context, id uuid.UUID, userID string) (*model.ExamSession, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if userID != "" && sess.UserID != userID {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *SessionService) getAssessment(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a, err := s.assessments.GetWithQuestions(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

// resolveTransitionErr maps storage and apply errors to domain errors. A
// passed deadline is resolved through expire before ErrSessionExpired is
// returned, so the session is never left dangling.
func (s *SessionService) resolveTransitionErr(ctx context.Context, id uuid.UUID, current *model.ExamSession, err error) error {
	switch {
	case errors.Is(err, errDeadlinePassed):
		if _, _, expErr := s.expire(ctx, id); expErr != nil {
			s.log.Error().Err(expErr).Str("session_id", id.String()).Msg("Failed to expire session past its deadline")
		}
		return ErrSessionExpired
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrStateConflict):
		if current != nil && current.Status == model.SessionStatusExpired {
			return ErrSessionExpired
		}
		return ErrInvalidState
	case errors.Is(err, ErrAlreadyCompleted), errors.Is(err, ErrInvalidState):
		return err
	}
	return fmt.Errorf("transition session: %w", err)
}

// overdue reports whether the session's deadline has passed at now. With
// PauseExcludedFromDeadline a paused session's clock is frozen at PausedAt.
func (s *SessionService) overdue(x *model.ExamSession, now time.Time) bool {
	if s.cfg.PauseExcludedFromDeadline && x.Status == model.SessionStatusPaused && x.PausedAt != nil {
		return !x.PausedAt.Before(x.ExpiresAt)
	}
	return !now.Before(x.ExpiresAt)
}

// remaining is the server-authoritative countdown in whole seconds.
func (s *SessionService) remaining(status model.SessionStatus, expiresAt time.Time, pausedAt *time.Time, now time.Time) int {
	if status.IsTerminal() {
		return 0
	}
	ref := now
	if s.cfg.PauseExcludedFromDeadline && status == model.SessionStatusPaused && pausedAt != nil {
		ref = *pausedAt
	}
	left := expiresAt.Sub(ref)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

func (s *SessionService) decorate(x *model.ExamSession, now time.Time) *model.ExamSession {
	if x == nil {
		return nil
	}
	x.ServerTimeRemaining = s.remaining(x.Status, x.ExpiresAt, x.PausedAt, now)
	return x
}

// afterCommit runs best-effort side effects of a committed transition. None of
// them can fail the exam flow.
func (s *SessionService) afterCommit(ctx context.Context, sess *model.ExamSession, attempt *model.AssessmentAttempt, eventType string) {
	now := s.now()
	logEvent := s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("assessment_id", sess.AssessmentID.String()).
		Str("user_id", sess.UserID).
		Str("status", string(sess.Status))
	if attempt != nil {
		logEvent = logEvent.Str("attempt_id", attempt.ID.String()).Float64("score", attempt.Score)
	}
	logEvent.Msg(eventType)

	if s.cfg.Observer != nil {
		s.cfg.Observer.SessionTransition(sess.Status)
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CollaboratorTimeout)
	defer cancel()

	if s.cfg.Clocks != nil {
		s.refreshClock(bg, sess, now)
	}

	ev := model.SessionEvent{
		Type:         eventType,
		SessionID:    sess.ID,
		AssessmentID: sess.AssessmentID,
		UserID:       sess.UserID,
		Status:       sess.Status,
		AttemptID:    sess.AttemptID,
		OccurredAt:   now,
	}
	if attempt != nil {
		score, passed := attempt.Score, attempt.Passed
		ev.Score, ev.Passed = &score, &passed
	}

	if s.cfg.Notifier != nil {
		if err := s.cfg.Notifier.Notify(bg, ev); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to notify live monitor")
		}
	}

	if s.cfg.Publisher != nil && sess.Status.IsTerminal() {
		if err := s.cfg.Publisher.Publish(bg, ev); err != nil {
			s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Str("event", eventType).Msg("Failed to publish session event")
		}
	}
}

// refreshClock writes the committed snapshot. When the write fails the key is
// dropped so Clock heals from the store instead of serving the old snapshot.
func (s *SessionService) refreshClock(ctx context.Context, sess *model.ExamSession, now time.Time) {
	_, err := s.cfg.Clocks.Set(ctx, sess, now)
	if err == nil {
		return
	}
	s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to cache session clock")
	if err := s.cfg.Clocks.Delete(ctx, sess.ID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to drop stale session clock")
	}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
