package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-sessions/internal/middleware"
	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/response"
	"github.com/stemsi/exstem-sessions/internal/service"
	"github.com/stemsi/exstem-sessions/internal/validator"
)

// SessionHandler serves the student-facing session lifecycle endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/student/assessments/:assessment_id/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	userID, ok := studentID(c)
	if !ok {
		return
	}
	assessmentID, ok := parseUUIDParam(c, "assessment_id")
	if !ok {
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), assessmentID, userID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	flags, err := h.sessionService.ProctoringFlags(c.Request.Context(), assessmentID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session, "proctoring": flags})
}

// GetActiveSession godoc
// GET /api/v1/student/assessments/:assessment_id/sessions/active
// Returns {"session": null} when the student has nothing open.
func (h *SessionHandler) GetActiveSession(c *gin.Context) {
	userID, ok := studentID(c)
	if !ok {
		return
	}
	assessmentID, ok := parseUUIDParam(c, "assessment_id")
	if !ok {
		return
	}

	session, err := h.sessionService.GetActive(c.Request.Context(), assessmentID, userID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetSession godoc
// GET /api/v1/student/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	h.withSession(c, func(id uuid.UUID, userID string) (any, error) {
		return h.sessionService.GetSession(c.Request.Context(), id, userID)
	})
}

// UpdateSession godoc
// PATCH /api/v1/student/sessions/:id
// Autosave; no state transition.
func (h *SessionHandler) UpdateSession(c *gin.Context) {
	var req model.UpdateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.withSession(c, func(id uuid.UUID, userID string) (any, error) {
		return h.sessionService.Update(c.Request.Context(), id, userID, req)
	})
}

// PauseSession godoc
// POST /api/v1/student/sessions/:id/pause
func (h *SessionHandler) PauseSession(c *gin.Context) {
	h.withSession(c, func(id uuid.UUID, userID string) (any, error) {
		return h.sessionService.Pause(c.Request.Context(), id, userID)
	})
}

// ResumeSession godoc
// POST /api/v1/student/sessions/:id/resume
// Fails with SESSION_EXPIRED (410) once the deadline has passed; the session is
// expired as a side effect.
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	h.withSession(c, func(id uuid.UUID, userID string) (any, error) {
		return h.sessionService.Resume(c.Request.Context(), id, userID)
	})
}

// AbandonSession godoc
// POST /api/v1/student/sessions/:id/abandon
func (h *SessionHandler) AbandonSession(c *gin.Context) {
	h.withSession(c, func(id uuid.UUID, userID string) (any, error) {
		return h.sessionService.Abandon(c.Request.Context(), id, userID)
	})
}

// RecordEvent godoc
// POST /api/v1/student/sessions/:id/events
// Returns only the integrity counters, never answer data.
func (h *SessionHandler) RecordEvent(c *gin.Context) {
	userID, ok := studentID(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.RecordEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	counters, err := h.sessionService.RecordEvent(c.Request.Context(), id, userID, req.Type, req.Details)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"counters": counters})
}

// CompleteSession godoc
// POST /api/v1/student/sessions/:id/complete
// An empty body submits the last autosaved answers.
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	userID, ok := studentID(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req model.CompleteSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	result, err := h.sessionService.Complete(c.Request.Context(), id, userID, req.Answers)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GetClock godoc
// GET /api/v1/student/sessions/:id/clock
func (h *SessionHandler) GetClock(c *gin.Context) {
	h.withSession(c, func(id uuid.UUID, userID string) (any, error) {
		return h.sessionService.Clock(c.Request.Context(), id, userID)
	})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:id
func (h *SessionHandler) GetAttempt(c *gin.Context) {
	userID, ok := studentID(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	attempt, err := h.sessionService.GetAttempt(c.Request.Context(), id, userID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// withSession resolves the caller and :id, runs op and wraps its result as
// {"session": ...} or {"clock": ...}.
func (h *SessionHandler) withSession(c *gin.Context, op func(id uuid.UUID, userID string) (any, error)) {
	userID, ok := studentID(c)
	if !ok {
		return
	}
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	result, err := op(id, userID)
	if err != nil {
		failFromError(c, h.log, err)
		return
	}

	key := "session"
	if _, isClock := result.(*model.SessionClock); isClock {
		key = "clock"
	}
	response.Success(c, http.StatusOK, gin.H{key: result})
}

func studentID(c *gin.Context) (string, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", false
	}
	return claims.UserID(), true
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
