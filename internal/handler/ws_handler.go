package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-sessions/internal/middleware"
	"github.com/stemsi/exstem-sessions/internal/response"
	"github.com/stemsi/exstem-sessions/internal/service"
	ws "github.com/stemsi/exstem-sessions/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves one WebSocket per session for clients that autosave,
// report proctoring events and submit over a single connection.
type WSHandler struct {
	sessionService *service.SessionService
	proctorLimiter *middleware.RateLimiter
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. proctorLimiter may be nil.
func NewWSHandler(sessionService *service.SessionService, proctorLimiter *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		proctorLimiter: proctorLimiter,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:id/stream?token=...
func (h *WSHandler) SessionStream(c *gin.Context) {
	userID, ok := studentID(c)
	if !ok {
		return
	}
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	// Reject before upgrading so the client gets a normal HTTP error.
	session, err := h.sessionService.GetSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	if session.Status.IsTerminal() {
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", userID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()

	for {
		raw, err := ws.ReadMessage(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			ws.WriteError(conn, string(response.ErrInvalidPayload), "invalid message")
			continue
		}

		switch env.Action {
		case ws.ActionAutosave:
			h.handleAutosave(ctx, conn, sessionID, userID, raw)
		case ws.ActionProctor:
			h.handleProctor(ctx, conn, sessionID, userID, raw)
		case ws.ActionSubmit:
			if h.handleSubmit(ctx, conn, wsLog, sessionID, userID, raw) {
				return
			}
		case ws.ActionClock:
			h.handleClock(ctx, conn, sessionID, userID)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(env.Action))
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, id uuid.UUID, userID string, raw []byte) {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "invalid autosave payload")
		return
	}

	session, err := h.sessionService.Update(ctx, id, userID, req.UpdateSessionRequest)
	if err != nil {
		h.writeDomainError(conn, err)
		return
	}
	ws.WriteTyped(conn, ws.SavedResponse{
		Event:               ws.EventSaved,
		Status:              session.Status,
		ServerTimeRemaining: session.ServerTimeRemaining,
	})
}

func (h *WSHandler) handleProctor(ctx context.Context, conn *websocket.Conn, id uuid.UUID, userID string, raw []byte) {
	if h.proctorLimiter != nil && !h.proctorLimiter.Allow("id:"+id.String()) {
		ws.WriteError(conn, string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
		return
	}

	var req ws.ProctorRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "invalid proctor payload")
		return
	}

	counters, err := h.sessionService.RecordEvent(ctx, id, userID, req.Type, req.Details)
	if err != nil {
		h.writeDomainError(conn, err)
		return
	}
	ws.WriteTyped(conn, ws.RecordedResponse{Event: ws.EventRecorded, Counters: counters})
}

// handleSubmit reports whether the session reached a terminal state and the
// connection should close.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, id uuid.UUID, userID string, raw []byte) bool {
	var req ws.SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, string(response.ErrInvalidPayload), "invalid submit payload")
		return false
	}

	result, err := h.sessionService.Complete(ctx, id, userID, req.Answers)
	if err != nil {
		h.writeDomainError(conn, err)
		return errors.Is(err, service.ErrSessionExpired) || errors.Is(err, service.ErrAlreadyCompleted)
	}

	wsLog.Info().
		Float64("score", result.Attempt.Score).
		Bool("passed", result.Attempt.Passed).
		Msg("Session submitted over WebSocket")
	ws.WriteTyped(conn, ws.CompletedResponse{Event: ws.EventCompleted, Result: result})
	return true
}

func (h *WSHandler) handleClock(ctx context.Context, conn *websocket.Conn, id uuid.UUID, userID string) {
	clock, err := h.sessionService.Clock(ctx, id, userID)
	if err != nil {
		h.writeDomainError(conn, err)
		return
	}
	ws.WriteTyped(conn, ws.ClockResponse{Event: ws.EventClock, Clock: clock})
}

func (h *WSHandler) writeDomainError(conn *websocket.Conn, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("WebSocket action failed")
	}
	ws.WriteError(conn, string(code), response.GetMessage(code))
}
