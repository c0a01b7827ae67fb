package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-sessions/internal/model"
)

const sessionColumns = `id, assessment_id, user_id, time_limit, time_remaining, time_elapsed,
	started_at, paused_at, expires_at, completed_at, last_activity, pause_count, paused_seconds,
	current_question, answers, fullscreen_exits, tab_switches, suspicious_activity,
	attempt_id, status, created_at, updated_at`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// Create inserts a new session. The partial unique index on open sessions
// turns a concurrent second start into ErrActiveSessionExists.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	answers, activity, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		s.ID, s.AssessmentID, s.UserID, s.TimeLimit, s.TimeRemaining, s.TimeElapsed,
		s.StartedAt, s.PausedAt, s.ExpiresAt, s.CompletedAt, s.LastActivity, s.PauseCount, s.PausedSeconds,
		s.CurrentQuestion, answers, s.FullscreenExits, s.TabSwitches, activity,
		s.AttemptID, s.Status, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrActiveSessionExists
		}
		return err
	}
	return nil
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// GetOpen retrieves the ACTIVE or PAUSED session for an (assessment, user) pair.
func (r *ExamSessionRepository) GetOpen(ctx context.Context, assessmentID uuid.UUID, userID string) (*model.ExamSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE assessment_id = $1 AND user_id = $2 AND status IN ('ACTIVE', 'PAUSED')`,
		assessmentID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Transition runs apply against the row locked with SELECT ... FOR UPDATE.
// The current status must be one of from (any status when from is empty),
// otherwise ErrStateConflict is returned and nothing is written. Concurrent
// callers on the same session are serialized by the row lock.
func (r *ExamSessionRepository) Transition(ctx context.Context, id uuid.UUID, from []model.SessionStatus, apply TransitionFunc) (*model.ExamSession, *model.AssessmentAttempt, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	s, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock session: %w", err)
	}
	if !s.Status.In(from) {
		return s, nil, ErrStateConflict
	}

	attempt, err := apply(s)
	if err != nil {
		return s, nil, err
	}

	if attempt != nil {
		if err := insertAttempt(ctx, tx, attempt); err != nil {
			return nil, nil, err
		}
	}

	answers, activity, err := encodeSessionJSON(s)
	if err != nil {
		return nil, nil, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE exam_sessions SET
		   time_remaining = $2, time_elapsed = $3, paused_at = $4, expires_at = $5,
		   completed_at = $6, last_activity = $7, pause_count = $8, paused_seconds = $9,
		   current_question = $10, answers = $11, fullscreen_exits = $12, tab_switches = $13,
		   suspicious_activity = $14, attempt_id = $15, status = $16, updated_at = $17
		 WHERE id = $1`,
		s.ID, s.TimeRemaining, s.TimeElapsed, s.PausedAt, s.ExpiresAt,
		s.CompletedAt, s.LastActivity, s.PauseCount, s.PausedSeconds,
		s.CurrentQuestion, answers, s.FullscreenExits, s.TabSwitches,
		activity, s.AttemptID, s.Status, s.UpdatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("update session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit: %w", err)
	}
	return s, attempt, nil
}

// ListOverdue returns ids of sessions in one of statuses whose deadline is at
// or before now, oldest deadline first.
func (r *ExamSessionRepository) ListOverdue(ctx context.Context, statuses []model.SessionStatus, now time.Time, limit int) ([]uuid.UUID, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exam_sessions
		 WHERE status = ANY($1) AND expires_at <= $2
		 ORDER BY expires_at ASC
		 LIMIT $3`, names, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListByAssessment retrieves every session of an assessment, newest first.
func (r *ExamSessionRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE assessment_id = $1
		 ORDER BY started_at DESC`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	var (
		s        model.ExamSession
		answers  []byte
		activity []byte
	)
	err := row.Scan(&s.ID, &s.AssessmentID, &s.UserID, &s.TimeLimit, &s.TimeRemaining, &s.TimeElapsed,
		&s.StartedAt, &s.PausedAt, &s.ExpiresAt, &s.CompletedAt, &s.LastActivity, &s.PauseCount, &s.PausedSeconds,
		&s.CurrentQuestion, &answers, &s.FullscreenExits, &s.TabSwitches, &activity,
		&s.AttemptID, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}
	if err := json.Unmarshal(activity, &s.SuspiciousActivity); err != nil {
		return nil, fmt.Errorf("decode suspicious_activity: %w", err)
	}
	if s.Answers == nil {
		s.Answers = model.Answers{}
	}
	return &s, nil
}

func encodeSessionJSON(s *model.ExamSession) (answers, activity []byte, err error) {
	if answers, err = json.Marshal(s.Answers.Clone()); err != nil {
		return nil, nil, fmt.Errorf("encode answers: %w", err)
	}
	events := s.SuspiciousActivity
	if events == nil {
		events = []model.ProctoringEvent{}
	}
	if activity, err = json.Marshal(events); err != nil {
		return nil, nil, fmt.Errorf("encode suspicious_activity: %w", err)
	}
	return answers, activity, nil
}
