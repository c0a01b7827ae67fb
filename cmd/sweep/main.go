package main

import (
	"context"
	"time"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/database"
	"github.com/stemsi/exstem-sessions/internal/events"
	"github.com/stemsi/exstem-sessions/internal/logger"
	"github.com/stemsi/exstem-sessions/internal/repository"
	"github.com/stemsi/exstem-sessions/internal/service"
	"github.com/stemsi/exstem-sessions/internal/worker"
)

// sweep runs one expiry pass and exits, for hosts that schedule it with cron
// instead of the in-process sweeper. It takes the same Redis lease as the
// server so the two never overlap.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Fatal().Msg("sweep needs a shared store; STORE_DRIVER=memory has nothing to sweep")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	sessionCfg := service.SessionConfigFrom(cfg)
	sessionCfg.Clocks = repository.NewClockCache(rdb)
	sessionCfg.Notifier = service.NewMonitorService(rdb)

	publisher, _, err := events.FromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create event publisher")
	}
	if publisher != nil {
		sessionCfg.Publisher = publisher
		defer publisher.Close()
	}

	sessionService := service.NewSessionService(
		repository.NewExamSessionRepository(pool),
		repository.NewAttemptRepository(pool),
		repository.NewAssessmentRepository(pool),
		sessionCfg,
	)

	sweeper := worker.NewExpirySweeper(sessionService, rdb, cfg.SweepInterval, cfg.SweepLockTTL, log)
	if !sweeper.RunOnce(ctx) {
		log.Warn().Msg("Sweep skipped; lease unavailable")
	}
}
