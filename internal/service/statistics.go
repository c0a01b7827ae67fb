package service

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// Statistics aggregates every session of an assessment for instructors.
// Sessions and attempts are fetched concurrently.
func (s *SessionService) Statistics(ctx context.Context, assessmentID uuid.UUID) (*model.SessionStatistics, error) {
	assessment, err := s.getAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	var (
		sessions    []model.ExamSession
		attempts    []model.AssessmentAttempt
		sessionsErr error
		attemptsErr error
		wg          sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		sessions, sessionsErr = s.sessions.ListByAssessment(ctx, assessmentID)
	}()
	go func() {
		defer wg.Done()
		attempts, attemptsErr = s.attempts.ListByAssessment(ctx, assessmentID)
	}()
	wg.Wait()

	if sessionsErr != nil {
		return nil, fmt.Errorf("list sessions: %w", sessionsErr)
	}
	if attemptsErr != nil {
		return nil, fmt.Errorf("list attempts: %w", attemptsErr)
	}

	byID := make(map[uuid.UUID]*model.AssessmentAttempt, len(attempts))
	for i := range attempts {
		byID[attempts[i].ID] = &attempts[i]
	}

	stats := &model.SessionStatistics{
		AssessmentID:  assessmentID,
		Title:         assessment.Title,
		TotalSessions: len(sessions),
		Sessions:      make([]model.SessionStatRow, 0, len(sessions)),
	}

	var scoreSum float64
	var scored, passed int
	for _, sess := range sessions {
		switch sess.Status {
		case model.SessionStatusActive:
			stats.Active++
		case model.SessionStatusPaused:
			stats.Paused++
		case model.SessionStatusCompleted:
			stats.Completed++
		case model.SessionStatusExpired:
			stats.Expired++
		case model.SessionStatusAbandoned:
			stats.Abandoned++
		}

		counters := sess.Counters()
		stats.FullscreenExits += counters.FullscreenExits
		stats.TabSwitches += counters.TabSwitches
		stats.TotalEvents += counters.TotalEvents

		row := model.SessionStatRow{
			SessionID:       sess.ID,
			UserID:          sess.UserID,
			Status:          sess.Status,
			StartedAt:       sess.StartedAt,
			CompletedAt:     sess.CompletedAt,
			TimeElapsed:     sess.TimeElapsed,
			PauseCount:      sess.PauseCount,
			FullscreenExits: counters.FullscreenExits,
			TabSwitches:     counters.TabSwitches,
			TotalEvents:     counters.TotalEvents,
		}
		if sess.AttemptID != nil {
			if a, ok := byID[*sess.AttemptID]; ok {
				score, pass := a.Score, a.Passed
				row.Score, row.Passed = &score, &pass
				scoreSum += a.Score
				scored++
				if a.Passed {
					passed++
				}
			}
		}
		stats.Sessions = append(stats.Sessions, row)
	}

	if scored > 0 {
		avg := math.Round(scoreSum/float64(scored)*100) / 100
		rate := math.Round(float64(passed)/float64(scored)*10000) / 100
		stats.AverageScore, stats.PassRate = &avg, &rate
	}
	return stats, nil
}
