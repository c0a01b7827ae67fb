package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-sessions/internal/model"
)

const attemptColumns = `id, session_id, assessment_id, user_id, answers, score, total_points,
	earned_points, passed, time_spent, pause_count, warnings_issued, trigger, completed_at`

// AttemptRepository handles assessment attempt data access. Attempts are only
// inserted through ExamSessionRepository.Transition.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.AssessmentAttempt, error) {
	a, err := scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM assessment_attempts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// CountByAssessmentAndUser returns how many scored attempts a user has made.
func (r *AttemptRepository) CountByAssessmentAndUser(ctx context.Context, assessmentID uuid.UUID, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM assessment_attempts WHERE assessment_id = $1 AND user_id = $2`,
		assessmentID, userID,
	).Scan(&n)
	return n, err
}

// ListByAssessment retrieves every attempt of an assessment.
func (r *AttemptRepository) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]model.AssessmentAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM assessment_attempts
		 WHERE assessment_id = $1
		 ORDER BY completed_at DESC`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.AssessmentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func insertAttempt(ctx context.Context, tx pgx.Tx, a *model.AssessmentAttempt) error {
	answers, err := json.Marshal(a.Answers.Clone())
	if err != nil {
		return fmt.Errorf("encode attempt answers: %w", err)
	}
	warnings := a.WarningsIssued
	if warnings == nil {
		warnings = []model.ProctoringEvent{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO assessment_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.SessionID, a.AssessmentID, a.UserID, answers, a.Score, a.TotalPoints,
		a.EarnedPoints, a.Passed, a.TimeSpent, a.PauseCount, warningsJSON, a.Trigger, a.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAttemptExists
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func scanAttempt(row pgx.Row) (*model.AssessmentAttempt, error) {
	var (
		a        model.AssessmentAttempt
		answers  []byte
		warnings []byte
	)
	err := row.Scan(&a.ID, &a.SessionID, &a.AssessmentID, &a.UserID, &answers, &a.Score, &a.TotalPoints,
		&a.EarnedPoints, &a.Passed, &a.TimeSpent, &a.PauseCount, &warnings, &a.Trigger, &a.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("decode attempt answers: %w", err)
	}
	if err := json.Unmarshal(warnings, &a.WarningsIssued); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	return &a, nil
}
