package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// AssessmentRepository reads assessment configuration owned by the authoring
// service. The session engine only reads it; Upsert backs the seed command.
type AssessmentRepository struct {
	pool *pgxpool.Pool
}

// NewAssessmentRepository creates a new AssessmentRepository.
func NewAssessmentRepository(pool *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{pool: pool}
}

// GetWithQuestions retrieves an assessment and its ordered question list.
func (r *AssessmentRepository) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Assessment, error) {
	a := &model.Assessment{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, is_timed_exam, time_limit_minutes, max_attempts, allow_pause, auto_submit,
		        proctor_mode, require_fullscreen, prevent_copy_paste, show_one_question,
		        allow_back_navigation, passing_score
		 FROM assessments WHERE id = $1`, id,
	).Scan(&a.ID, &a.Title, &a.IsTimedExam, &a.TimeLimitMinutes, &a.MaxAttempts, &a.AllowPause, &a.AutoSubmit,
		&a.ProctorMode, &a.RequireFullscreen, &a.PreventCopyPaste, &a.ShowOneQuestion,
		&a.AllowBackNavigation, &a.PassingScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, kind, points, correct_answers, order_num
		 FROM assessment_questions
		 WHERE assessment_id = $1
		 ORDER BY order_num ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q   model.Question
			key []byte
		)
		if err := rows.Scan(&q.ID, &q.Kind, &q.Points, &key, &q.OrderNum); err != nil {
			return nil, err
		}
		// A malformed key decodes to an invalid Answer that nothing matches.
		_ = json.Unmarshal(key, &q.CorrectAnswers)
		a.Questions = append(a.Questions, q)
	}
	return a, rows.Err()
}

// Upsert writes an assessment and replaces its question list in one transaction.
func (r *AssessmentRepository) Upsert(ctx context.Context, a *model.Assessment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO assessments (id, title, is_timed_exam, time_limit_minutes, max_attempts, allow_pause, auto_submit,
		                          proctor_mode, require_fullscreen, prevent_copy_paste, show_one_question,
		                          allow_back_navigation, passing_score)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   title = EXCLUDED.title, is_timed_exam = EXCLUDED.is_timed_exam,
		   time_limit_minutes = EXCLUDED.time_limit_minutes, max_attempts = EXCLUDED.max_attempts,
		   allow_pause = EXCLUDED.allow_pause, auto_submit = EXCLUDED.auto_submit,
		   proctor_mode = EXCLUDED.proctor_mode, require_fullscreen = EXCLUDED.require_fullscreen,
		   prevent_copy_paste = EXCLUDED.prevent_copy_paste, show_one_question = EXCLUDED.show_one_question,
		   allow_back_navigation = EXCLUDED.allow_back_navigation, passing_score = EXCLUDED.passing_score,
		   updated_at = NOW()`,
		a.ID, a.Title, a.IsTimedExam, a.TimeLimitMinutes, a.MaxAttempts, a.AllowPause, a.AutoSubmit,
		a.ProctorMode, a.RequireFullscreen, a.PreventCopyPaste, a.ShowOneQuestion,
		a.AllowBackNavigation, a.PassingScore)
	if err != nil {
		return fmt.Errorf("upsert assessment: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM assessment_questions WHERE assessment_id = $1`, a.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}

	batch := &pgx.Batch{}
	for _, q := range a.Questions {
		key, err := json.Marshal(q.CorrectAnswers)
		if err != nil {
			return fmt.Errorf("encode answer key: %w", err)
		}
		batch.Queue(
			`INSERT INTO assessment_questions (id, assessment_id, kind, points, correct_answers, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, a.ID, q.Kind, q.Points, key, q.OrderNum)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
	}

	return tx.Commit(ctx)
}
