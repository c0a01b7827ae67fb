package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-sessions/internal/model"
)

func newClockCache(t *testing.T) *ClockCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClockCache(rdb)
}

func clockSession(status model.SessionStatus, updatedAt time.Time) *model.ExamSession {
	return &model.ExamSession{
		ID:        uuid.MustParse("6f1c2d4e-0000-4000-8000-000000000001"),
		UserID:    "student-1",
		Status:    status,
		ExpiresAt: updatedAt.Add(time.Hour),
		UpdatedAt: updatedAt,
	}
}

func TestClockCache_OlderSnapshotDoesNotOverwrite(t *testing.T) {
	cache := newClockCache(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	paused := clockSession(model.SessionStatusPaused, now.Add(time.Second))
	paused.PausedAt = &paused.UpdatedAt
	applied, err := cache.Set(ctx, paused, now)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = cache.Set(ctx, clockSession(model.SessionStatusActive, now), now)
	require.NoError(t, err)
	assert.False(t, applied)

	cached, err := cache.Get(ctx, paused.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaused, cached.Status)
	require.NotNil(t, cached.PausedAt)
	assert.Equal(t, paused.PausedAt.Unix(), cached.PausedAt.Unix())
}

func TestClockCache_SameOrNewerSnapshotOverwrites(t *testing.T) {
	cache := newClockCache(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := cache.Set(ctx, clockSession(model.SessionStatusActive, now), now)
	require.NoError(t, err)

	applied, err := cache.Set(ctx, clockSession(model.SessionStatusAbandoned, now), now)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = cache.Set(ctx, clockSession(model.SessionStatusExpired, now.Add(time.Millisecond)), now)
	require.NoError(t, err)
	assert.True(t, applied)

	cached, err := cache.Get(ctx, clockSession(model.SessionStatusExpired, now).ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusExpired, cached.Status)
}

func TestClockCache_DeleteForcesMiss(t *testing.T) {
	cache := newClockCache(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sess := clockSession(model.SessionStatusActive, now)

	_, err := cache.Set(ctx, sess, now)
	require.NoError(t, err)
	require.NoError(t, cache.Delete(ctx, sess.ID))

	_, err = cache.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
