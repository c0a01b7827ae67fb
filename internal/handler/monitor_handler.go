package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-sessions/internal/export"
	"github.com/stemsi/exstem-sessions/internal/response"
	"github.com/stemsi/exstem-sessions/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// MonitorHandler serves the instructor views of an assessment: statistics,
// the spreadsheet export and the live SSE monitor.
type MonitorHandler struct {
	sessionService *service.SessionService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	sessionService *service.SessionService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		sessionService: sessionService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// GetStatistics godoc
// GET /api/v1/instructor/assessments/:id/statistics
func (h *MonitorHandler) GetStatistics(c *gin.Context) {
	assessmentID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.sessionService.Statistics(c.Request.Context(), assessmentID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// ExportStatistics godoc
// GET /api/v1/instructor/assessments/:id/statistics/export
func (h *MonitorHandler) ExportStatistics(c *gin.Context) {
	assessmentID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	stats, err := h.sessionService.Statistics(c.Request.Context(), assessmentID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	data, err := export.StatisticsWorkbook(stats)
	if err != nil {
		h.log.Error().Err(err).Str("assessment_id", assessmentID.String()).Msg("Failed to render statistics workbook")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	filename := fmt.Sprintf("statistik-sesi-%s.xlsx", assessmentID.String())
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// MonitorAssessmentSSE godoc
// GET /api/v1/instructor/assessments/:id/monitor
// Sends a statistics snapshot, then forwards every session event published for
// the assessment. Statistics are refreshed periodically while events arrive.
func (h *MonitorHandler) MonitorAssessmentSSE(c *gin.Context) {
	assessmentID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	stats, err := h.sessionService.Statistics(reqCtx, assessmentID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": stats})
	c.Writer.Flush()

	pubsub := h.monitorService.Subscribe(reqCtx, assessmentID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Skip refresh queries until something has happened since the last one.
	dirty := false

	log := h.log.With().Str("assessment_id", assessmentID.String()).Logger()
	log.Info().Msg("Instructor attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Instructor disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Forward the published JSON as is
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendRefresh(c, reqCtx, assessmentID, log)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendRefresh(c *gin.Context, parentCtx context.Context, assessmentID uuid.UUID, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	stats, err := h.sessionService.Statistics(ctx, assessmentID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to refresh monitor statistics")
		return
	}

	c.SSEvent("message", gin.H{"type": "refresh", "data": stats})
	c.Writer.Flush()
}
