package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/repository"
)

// Clock returns the server-authoritative countdown for a session. It reads
// the Redis snapshot and falls back to the store on a miss, healing the cache.
func (s *SessionService) Clock(ctx context.Context, id uuid.UUID, userID string) (*model.SessionClock, error) {
	now := s.now()

	if s.cfg.Clocks != nil {
		cached, err := s.cfg.Clocks.Get(ctx, id)
		switch {
		case err == nil:
			if userID != "" && cached.UserID != userID {
				return nil, ErrNotFound
			}
			return &model.SessionClock{
				SessionID:           id,
				Status:              cached.Status,
				ExpiresAt:           cached.ExpiresAt,
				ServerTime:          now,
				ServerTimeRemaining: s.remaining(cached.Status, cached.ExpiresAt, cached.PausedAt, now),
			}, nil
		case !errors.Is(err, repository.ErrNotFound):
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Clock cache read failed, falling back to store")
		}
	}

	sess, err := s.load(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if s.cfg.Clocks != nil {
		if _, err := s.cfg.Clocks.Set(ctx, sess, now); err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("Failed to heal clock cache")
		}
	}

	return &model.SessionClock{
		SessionID:           sess.ID,
		Status:              sess.Status,
		ExpiresAt:           sess.ExpiresAt,
		ServerTime:          now,
		ServerTimeRemaining: s.remaining(sess.Status, sess.ExpiresAt, sess.PausedAt, now),
	}, nil
}

// ProctoringFlags returns the client-facing proctoring configuration of the
// session's assessment.
func (s *SessionService) ProctoringFlags(ctx context.Context, assessmentID uuid.UUID) (*model.ProctoringFlags, error) {
	a, err := s.getAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	flags := a.Flags()
	return &flags, nil
}
