package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/database"
	"github.com/stemsi/exstem-sessions/internal/events"
	"github.com/stemsi/exstem-sessions/internal/handler"
	"github.com/stemsi/exstem-sessions/internal/logger"
	"github.com/stemsi/exstem-sessions/internal/metrics"
	"github.com/stemsi/exstem-sessions/internal/middleware"
	"github.com/stemsi/exstem-sessions/internal/repository"
	"github.com/stemsi/exstem-sessions/internal/repository/memory"
	"github.com/stemsi/exstem-sessions/internal/router"
	"github.com/stemsi/exstem-sessions/internal/service"
	"github.com/stemsi/exstem-sessions/internal/validator"
	"github.com/stemsi/exstem-sessions/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("store", cfg.StoreDriver).
		Str("events", cfg.EventsDriver).
		Msg("Starting ExStem Sessions")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Stores ─────────────────────────────────────────────
	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open session store")
	}
	defer stores.close()

	// ─── Initialize Event Publisher ────────────────────────────────────
	publisher, subscriber, err := events.FromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create event publisher")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	m := metrics.New()
	authService := service.NewAuthService(cfg)
	monitorService := service.NewMonitorService(rdb)

	sessionCfg := service.SessionConfigFrom(cfg)
	sessionCfg.Notifier = monitorService
	sessionCfg.Clocks = repository.NewClockCache(rdb)
	sessionCfg.Observer = m
	if publisher != nil {
		sessionCfg.Publisher = publisher
	}
	sessionService := service.NewSessionService(stores.sessions, stores.attempts, stores.assessments, sessionCfg)

	proctorLimiter := middleware.NewRateLimiter(cfg.ProctorEventsPerSecond, cfg.ProctorEventsBurst, middleware.ByParam("id"))

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(sessionService, log),
		Monitor: handler.NewMonitorHandler(sessionService, monitorService, log),
		System:  handler.NewSystemHandler(sessionService, log),
		WS:      handler.NewWSHandler(sessionService, proctorLimiter, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	sweeper := worker.NewExpirySweeper(sessionService, rdb, cfg.SweepInterval, cfg.SweepLockTTL, log)
	workers.Go(func() { sweeper.Start(workerCtx) })

	if subscriber != nil {
		relay := worker.NewRewardsRelay(subscriber, cfg.EventsTopic, nil, m, log)
		workers.Go(func() { relay.Start(workerCtx) })
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	healthChecks := map[string]database.HealthCheck{"redis": database.RedisCheck(rdb)}
	if stores.check != nil {
		healthChecks["postgres"] = stores.check
	}
	r := router.SetupRouter(authService, handlers, cfg, router.Options{
		Metrics:        m,
		ProctorLimiter: proctorLimiter,
		HealthChecks:   healthChecks,
	})

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the sweeper and relay; a sweep in flight finishes its batch.
	workerCancel()
	workers.Wait()

	// 3. Flush the publisher after the last transition that could emit.
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Event publisher close error")
		}
	}

	log.Info().Msg("Shutdown complete")
}

// storeSet bundles the persistence backends selected by STORE_DRIVER.
type storeSet struct {
	sessions    service.SessionStore
	attempts    service.AttemptStore
	assessments service.AssessmentReader
	check       database.HealthCheck
	close       func()
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storeSet, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := memory.NewStore()
		assessments, err := repository.LoadAssessments(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		for i := range assessments {
			store.Assessments().Put(&assessments[i])
		}
		log.Warn().
			Int("assessments", len(assessments)).
			Str("seed_file", cfg.SeedFile).
			Msg("Using in-memory store; sessions are lost on restart")
		return &storeSet{
			sessions:    store.Sessions(),
			attempts:    store.Attempts(),
			assessments: store.Assessments(),
			close:       func() {},
		}, nil
	default:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &storeSet{
			sessions:    repository.NewExamSessionRepository(pool),
			attempts:    repository.NewAttemptRepository(pool),
			assessments: repository.NewAssessmentRepository(pool),
			check:       database.PostgresCheck(pool),
			close:       pool.Close,
		}, nil
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
