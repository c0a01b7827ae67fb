package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/model"
)

// CachedClock is the deadline snapshot kept in Redis for fast countdown reads.
type CachedClock struct {
	UserID    string
	Status    model.SessionStatus
	ExpiresAt time.Time
	PausedAt  *time.Time
}

// ClockCache stores a per-session deadline snapshot in a Redis hash. Postgres
// stays the source of truth; a miss is healed by the caller.
type ClockCache struct {
	rdb *redis.Client
}

// NewClockCache creates a new ClockCache.
func NewClockCache(rdb *redis.Client) *ClockCache {
	return &ClockCache{rdb: rdb}
}

// Get returns the cached snapshot or ErrNotFound on a cache miss.
func (c *ClockCache) Get(ctx context.Context, sessionID uuid.UUID) (*CachedClock, error) {
	vals, err := c.rdb.HGetAll(ctx, config.CacheKey.SessionClockKey(sessionID.String())).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	expiresUnix, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expires_at in cache: %w", err)
	}
	clock := &CachedClock{
		UserID:    vals["user_id"],
		Status:    model.SessionStatus(vals["status"]),
		ExpiresAt: time.Unix(expiresUnix, 0),
	}
	if pausedUnix, _ := strconv.ParseInt(vals["paused_at"], 10, 64); pausedUnix > 0 {
		t := time.Unix(pausedUnix, 0)
		clock.PausedAt = &t
	}
	return clock, nil
}

// setClock writes the snapshot unless the stored one carries a newer
// updated_at, so a slow writer never replaces a later transition.
var setClock = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "updated_at")
if current and tonumber(current) > tonumber(ARGV[1]) then
	return 0
end
redis.call("HSET", KEYS[1], "updated_at", ARGV[1], "user_id", ARGV[2], "status", ARGV[3], "expires_at", ARGV[4], "paused_at", ARGV[5])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
return 1
`)

// Set writes the snapshot for s, ordered by s.UpdatedAt. It reports whether
// the write was applied. Terminal sessions are kept briefly so a reloading
// client still sees the final status.
func (c *ClockCache) Set(ctx context.Context, s *model.ExamSession, now time.Time) (bool, error) {
	key := config.CacheKey.SessionClockKey(s.ID.String())
	ttl := s.ExpiresAt.Sub(now) + time.Hour
	if s.Status.IsTerminal() || ttl < time.Minute {
		ttl = 5 * time.Minute
	}

	var pausedUnix int64
	if s.PausedAt != nil {
		pausedUnix = s.PausedAt.Unix()
	}

	applied, err := setClock.Run(ctx, c.rdb, []string{key},
		s.UpdatedAt.UnixMicro(),
		s.UserID,
		string(s.Status),
		s.ExpiresAt.Unix(),
		pausedUnix,
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return applied == 1, nil
}

// Delete drops the snapshot.
func (c *ClockCache) Delete(ctx context.Context, sessionID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.SessionClockKey(sessionID.String())).Err()
}
