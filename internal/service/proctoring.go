package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/model"
)

// RecordEvent appends a proctoring event to the session's log and returns the
// derived counters. It is accepted in any state; on a terminal session the
// event is only logged and nothing is written.
func (s *SessionService) RecordEvent(ctx context.Context, id uuid.UUID, userID string, eventType model.ProctoringEventType, details json.RawMessage) (*model.ProctoringCounters, error) {
	if !eventType.Valid() {
		return nil, ErrInvalidEventType
	}
	if _, err := s.load(ctx, id, userID); err != nil {
		return nil, err
	}

	now := s.now()
	sess, _, err := s.sessions.Transition(ctx, id, nil,
		func(x *model.ExamSession) (*model.AssessmentAttempt, error) {
			if x.Status.IsTerminal() {
				return nil, errNoChange
			}
			x.AppendEvent(model.ProctoringEvent{
				Type:      eventType,
				Timestamp: now,
				Details:   slices.Clone(details),
			})
			x.LastActivity = now
			x.UpdatedAt = now
			return nil, nil
		})
	if errors.Is(err, errNoChange) {
		s.log.Info().
			Str("session_id", id.String()).
			Str("status", string(sess.Status)).
			Str("event_type", string(eventType)).
			Msg("Proctoring event on terminal session ignored")
		counters := sess.Counters()
		return &counters, nil
	}
	if err != nil {
		return nil, s.resolveTransitionErr(ctx, id, sess, err)
	}

	counters := sess.Counters()
	s.notifyProctoring(ctx, sess, eventType, counters)
	return &counters, nil
}

func (s *SessionService) notifyProctoring(ctx context.Context, sess *model.ExamSession, eventType model.ProctoringEventType, counters model.ProctoringCounters) {
	s.log.Warn().
		Str("session_id", sess.ID.String()).
		Str("user_id", sess.UserID).
		Str("event_type", string(eventType)).
		Int("total_events", counters.TotalEvents).
		Msg("Proctoring event recorded")

	if s.cfg.Notifier == nil {
		return
	}
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CollaboratorTimeout)
	defer cancel()

	err := s.cfg.Notifier.Notify(bg, model.SessionEvent{
		Type:         config.EventKey.ProctoringRecorded,
		SessionID:    sess.ID,
		AssessmentID: sess.AssessmentID,
		UserID:       sess.UserID,
		Status:       sess.Status,
		Proctoring:   &counters,
		EventType:    eventType,
		OccurredAt:   s.now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to notify live monitor")
	}
}
