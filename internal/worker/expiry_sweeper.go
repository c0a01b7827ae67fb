package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/service"
)

// Sweeper expires overdue sessions in one pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*service.SweepReport, error)
}

// releaseLease deletes the lease only when this replica still owns it.
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ExpirySweeper runs Sweep on a fixed interval. With a Redis client it takes a
// lease first so only one replica sweeps per tick.
type ExpirySweeper struct {
	sweeper  Sweeper
	rdb      *redis.Client
	interval time.Duration
	lockTTL  time.Duration
	owner    string
	log      zerolog.Logger
}

func NewExpirySweeper(sweeper Sweeper, rdb *redis.Client, interval, lockTTL time.Duration, log zerolog.Logger) *ExpirySweeper {
	if lockTTL <= 0 || lockTTL >= interval {
		lockTTL = interval - time.Second
	}
	if lockTTL <= 0 {
		lockTTL = interval
	}
	return &ExpirySweeper{
		sweeper:  sweeper,
		rdb:      rdb,
		interval: interval,
		lockTTL:  lockTTL,
		owner:    uuid.NewString(),
		log:      log.With().Str("component", "expiry_sweeper").Logger(),
	}
}

// Start sweeps immediately, then every interval until ctx is cancelled.
func (w *ExpirySweeper) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpirySweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpirySweeper stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single leased sweep. It reports whether this replica swept.
func (w *ExpirySweeper) RunOnce(ctx context.Context) bool {
	acquired, err := w.acquire(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Failed to acquire sweep lease")
		}
		return false
	}
	if !acquired {
		w.log.Debug().Msg("Sweep lease held by another replica, skipping")
		return false
	}
	defer w.release()

	started := time.Now()
	report, err := w.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Sweep failed")
		}
		return true
	}
	if report.Affected() > 0 || report.Failed > 0 {
		w.log.Info().
			Int("scanned", report.Scanned).
			Int("expired", report.Expired).
			Int("auto_submitted", report.AutoSubmitted).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Dur("took", time.Since(started)).
			Msg("Sweep finished")
	}
	return true
}

func (w *ExpirySweeper) acquire(ctx context.Context) (bool, error) {
	if w.rdb == nil {
		return true, nil
	}
	return w.rdb.SetNX(ctx, config.CacheKey.SweepLockKey(), w.owner, w.lockTTL).Result()
}

func (w *ExpirySweeper) release() {
	if w.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseLease.Run(ctx, w.rdb, []string{config.CacheKey.SweepLockKey()}, w.owner).Err(); err != nil {
		w.log.Warn().Err(err).Msg("Failed to release sweep lease")
	}
}
