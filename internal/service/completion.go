package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/repository"
	"github.com/stemsi/exstem-sessions/internal/scoring"
)

// ExpiryOutcome describes what expire did to one session.
type ExpiryOutcome string

const (
	OutcomeExpired       ExpiryOutcome = "expired"
	OutcomeAutoSubmitted ExpiryOutcome = "auto_submitted"
	OutcomeSkipped       ExpiryOutcome = "skipped"
	OutcomeFailed        ExpiryOutcome = "failed"
)

// SweepResult is the outcome for one overdue session.
type SweepResult struct {
	SessionID uuid.UUID     `json:"session_id"`
	Outcome   ExpiryOutcome `json:"outcome"`
	AttemptID *uuid.UUID    `json:"attempt_id,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Scanned       int           `json:"scanned"`
	Expired       int           `json:"expired"`
	AutoSubmitted int           `json:"auto_submitted"`
	Skipped       int           `json:"skipped"`
	Failed        int           `json:"failed"`
	Results       []SweepResult `json:"results"`
}

// Affected is the number of sessions this run moved to a terminal state.
func (r *SweepReport) Affected() int {
	return r.Expired + r.AutoSubmitted
}

// Complete scores the submission and moves the session to COMPLETED. Exactly
// one attempt is created per session; a repeated call fails with
// ErrAlreadyCompleted. A submission arriving after the deadline plus the
// submit grace is turned into an expiry and fails with ErrSessionExpired.
func (s *SessionService) Complete(ctx context.Context, id uuid.UUID, userID string, answers model.Answers) (*model.CompletionResult, error) {
	current, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	switch {
	case current.Status == model.SessionStatusCompleted:
		return nil, ErrAlreadyCompleted
	case current.Status.IsTerminal():
		return nil, ErrInvalidState
	}

	assessment, err := s.getAssessment(ctx, current.AssessmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess, attempt, err := s.sessions.Transition(ctx, id, nil,
		func(x *model.ExamSession) (*model.AssessmentAttempt, error) {
			switch {
			case x.Status == model.SessionStatusCompleted:
				return nil, ErrAlreadyCompleted
			case x.Status.IsTerminal():
				return nil, ErrInvalidState
			case s.overdue(x, now.Add(-s.cfg.SubmitGrace)):
				return nil, errDeadlinePassed
			}
			if answers != nil {
				x.Answers = answers.Clone()
			}
			return s.scoreInto(x, assessment, now, model.AttemptTriggerSubmit), nil
		})
	if err != nil {
		if errors.Is(err, repository.ErrAttemptExists) {
			return nil, ErrAlreadyCompleted
		}
		return nil, s.resolveTransitionErr(ctx, id, sess, err)
	}

	s.afterCommit(ctx, sess, attempt, config.EventKey.SessionCompleted)
	return &model.CompletionResult{Session: s.decorate(sess, now), Attempt: attempt}, nil
}

// Expire forces an overdue session to a terminal state. With autoSubmit and
// saved answers it completes the session on those answers; otherwise the
// session becomes EXPIRED with no attempt. A session that is not overdue or
// already terminal is skipped and nil is returned.
func (s *SessionService) Expire(ctx context.Context, id uuid.UUID) (*model.CompletionResult, error) {
	res, _, err := s.expire(ctx, id)
	return res, err
}

func (s *SessionService) expire(ctx context.Context, id uuid.UUID) (*model.CompletionResult, ExpiryOutcome, error) {
	current, err := s.load(ctx, id, "")
	if err != nil {
		return nil, OutcomeFailed, err
	}
	if current.Status.IsTerminal() {
		return nil, OutcomeSkipped, nil
	}

	// A missing assessment still expires the session, just without scoring.
	assessment, err := s.getAssessment(ctx, current.AssessmentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, OutcomeFailed, err
	}

	now := s.now()
	outcome := OutcomeExpired
	sess, attempt, err := s.sessions.Transition(ctx, id, model.OpenStatuses,
		func(x *model.ExamSession) (*model.AssessmentAttempt, error) {
			// Re-checked under the lock: a resume or complete that won the
			// race leaves nothing to do.
			if !s.overdue(x, now) {
				return nil, errNotDue
			}
			if assessment != nil && assessment.AutoSubmit && len(x.Answers) > 0 {
				outcome = OutcomeAutoSubmitted
				return s.scoreInto(x, assessment, now, model.AttemptTriggerAutoSubmit), nil
			}
			x.AccruePause(now)
			x.Status = model.SessionStatusExpired
			x.CompletedAt = &now
			x.UpdatedAt = now
			return nil, nil
		})
	switch {
	case errors.Is(err, errNotDue), errors.Is(err, repository.ErrStateConflict), errors.Is(err, repository.ErrAttemptExists):
		return nil, OutcomeSkipped, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, OutcomeFailed, ErrNotFound
	case err != nil:
		return nil, OutcomeFailed, fmt.Errorf("expire session: %w", err)
	}

	eventType := config.EventKey.SessionExpired
	if outcome == OutcomeAutoSubmitted {
		eventType = config.EventKey.SessionCompleted
	}
	s.afterCommit(ctx, sess, attempt, eventType)
	return &model.CompletionResult{Session: s.decorate(sess, now), Attempt: attempt}, outcome, nil
}

// Sweep expires every overdue open session, up to the configured batch size.
// A failure on one session is logged and the sweep continues; the session is
// picked up again on the next run.
func (s *SessionService) Sweep(ctx context.Context) (*SweepReport, error) {
	started := time.Now()

	statuses := model.OpenStatuses
	if s.cfg.PauseExcludedFromDeadline {
		statuses = []model.SessionStatus{model.SessionStatusActive}
	}

	ids, err := s.sessions.ListOverdue(ctx, statuses, s.now(), s.cfg.SweepBatchSize)
	if err != nil {
		return nil, fmt.Errorf("list overdue sessions: %w", err)
	}

	report := &SweepReport{Scanned: len(ids), Results: make([]SweepResult, 0, len(ids))}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		res, outcome, err := s.expire(ctx, id)
		result := SweepResult{SessionID: id, Outcome: outcome}
		switch outcome {
		case OutcomeExpired:
			report.Expired++
		case OutcomeAutoSubmitted:
			report.AutoSubmitted++
			if res != nil && res.Attempt != nil {
				result.AttemptID = &res.Attempt.ID
			}
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
			if err != nil {
				result.Error = err.Error()
			}
			s.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to expire overdue session")
		}
		report.Results = append(report.Results, result)
	}

	if s.cfg.Observer != nil {
		s.cfg.Observer.SweepFinished(report, time.Since(started))
	}
	return report, ctx.Err()
}

// scoreInto grades x's answers, builds the attempt and moves x to COMPLETED.
func (s *SessionService) scoreInto(x *model.ExamSession, assessment *model.Assessment, now time.Time, trigger model.AttemptTrigger) *model.AssessmentAttempt {
	res := scoring.Grade(assessment, x.Answers)
	x.AccruePause(now)

	timeSpent := x.TimeElapsed
	if timeSpent <= 0 {
		active := int(now.Sub(x.StartedAt)/time.Second) - x.PausedSeconds
		timeSpent = clamp(active, 0, x.TimeLimit)
	}

	attempt := &model.AssessmentAttempt{
		ID:             uuid.New(),
		SessionID:      x.ID,
		AssessmentID:   x.AssessmentID,
		UserID:         x.UserID,
		Answers:        x.Answers.Clone(),
		Score:          res.Score,
		TotalPoints:    res.TotalPoints,
		EarnedPoints:   res.EarnedPoints,
		Passed:         res.Passed,
		TimeSpent:      timeSpent,
		PauseCount:     x.PauseCount,
		WarningsIssued: slices.Clone(x.SuspiciousActivity),
		Trigger:        trigger,
		CompletedAt:    now,
	}
	if attempt.WarningsIssued == nil {
		attempt.WarningsIssued = []model.ProctoringEvent{}
	}

	x.Status = model.SessionStatusCompleted
	x.CompletedAt = &now
	x.AttemptID = &attempt.ID
	x.TimeElapsed = timeSpent
	x.LastActivity = now
	x.UpdatedAt = now
	return attempt
}
