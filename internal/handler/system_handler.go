package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-sessions/internal/response"
	"github.com/stemsi/exstem-sessions/internal/service"
)

// SystemHandler exposes operator endpoints for schedulers outside the process.
type SystemHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

func NewSystemHandler(sessionService *service.SessionService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "system_handler").Logger(),
	}
}

// CheckExpiredSessions godoc
// POST /api/v1/system/sessions/check-expired
// Runs one sweep in the request and reports how many sessions it force-expired.
// The in-process sweeper makes this optional; it stays for external cron.
func (h *SystemHandler) CheckExpiredSessions(c *gin.Context) {
	start := time.Now()
	report, err := h.sessionService.Sweep(c.Request.Context())
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	h.log.Info().
		Int("scanned", report.Scanned).
		Int("affected", report.Affected()).
		Dur("elapsed", time.Since(start)).
		Msg("Manual sweep finished")

	response.Success(c, http.StatusOK, gin.H{
		"count":  report.Affected(),
		"report": report,
	})
}
