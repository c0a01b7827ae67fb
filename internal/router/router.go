package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/database"
	"github.com/stemsi/exstem-sessions/internal/handler"
	"github.com/stemsi/exstem-sessions/internal/metrics"
	"github.com/stemsi/exstem-sessions/internal/middleware"
	"github.com/stemsi/exstem-sessions/internal/response"
	"github.com/stemsi/exstem-sessions/internal/service"
	"github.com/stemsi/exstem-sessions/internal/validator"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Monitor *handler.MonitorHandler
	System  *handler.SystemHandler
	WS      *handler.WSHandler
}

// Options carries the optional pieces of the HTTP surface.
type Options struct {
	Metrics        *metrics.Metrics
	ProctorLimiter *middleware.RateLimiter
	// HealthChecks are probed by /health; any failure reports 503.
	HealthChecks map[string]database.HealthCheck
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	opts Options,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	// Request DTOs use the custom binding tags registered here.
	validator.Setup()
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware())
		router.GET("/metrics", opts.Metrics.Handler())
	}

	// xlsx exports are zip archives already.
	router.Use(middleware.Compress(middleware.CompressConfig{
		SkipPaths: []string{"/metrics", "/ws/", "/statistics/export"},
	}))

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		checks, healthy := database.Probe(c.Request.Context(), opts.HealthChecks)
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": checks})
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "checks": checks})
	})

	proctorLimit := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	if opts.ProctorLimiter != nil {
		proctorLimit = opts.ProctorLimiter.Middleware()
	}

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService), middleware.NoStore())
	{
		studentAPI.POST("/assessments/:assessment_id/sessions", handlers.Session.StartSession)
		studentAPI.GET("/assessments/:assessment_id/sessions/active", handlers.Session.GetActiveSession)

		studentAPI.GET("/sessions/:id", handlers.Session.GetSession)
		studentAPI.PATCH("/sessions/:id", handlers.Session.UpdateSession)
		studentAPI.GET("/sessions/:id/clock", handlers.Session.GetClock)
		studentAPI.POST("/sessions/:id/pause", handlers.Session.PauseSession)
		studentAPI.POST("/sessions/:id/resume", handlers.Session.ResumeSession)
		studentAPI.POST("/sessions/:id/events", proctorLimit, handlers.Session.RecordEvent)
		studentAPI.POST("/sessions/:id/complete", handlers.Session.CompleteSession)
		studentAPI.POST("/sessions/:id/abandon", handlers.Session.AbandonSession)

		studentAPI.GET("/attempts/:id", handlers.Session.GetAttempt)
	}

	// ─── 2. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentJWT(authService))
	{
		ws.GET("/student/sessions/:id/stream", handlers.WS.SessionStream)
	}

	// ─── 3. Instructor Group ───────────────────────────────────────────
	instructorAPI := router.Group("/api/v1/instructor")
	instructorAPI.Use(middleware.RequireInstructorJWT(authService))
	{
		instructorAPI.GET("/assessments/:id/statistics", handlers.Monitor.GetStatistics)
		instructorAPI.GET("/assessments/:id/statistics/export", handlers.Monitor.ExportStatistics)
		instructorAPI.GET("/assessments/:id/monitor", handlers.Monitor.MonitorAssessmentSSE)
	}

	// ─── 4. System Group (scheduler tokens) ────────────────────────────
	systemAPI := router.Group("/api/v1/system")
	systemAPI.Use(middleware.RequireSystemJWT(authService))
	{
		systemAPI.POST("/sessions/check-expired", handlers.System.CheckExpiredSessions)
	}

	return router
}
