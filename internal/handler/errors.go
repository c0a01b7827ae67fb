package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-sessions/internal/response"
	"github.com/stemsi/exstem-sessions/internal/service"
)

// domainErrors maps service sentinels to HTTP status and envelope code.
var domainErrors = []struct {
	err    error
	status int
	code   response.ErrCode
}{
	{service.ErrNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrInvalidConfiguration, http.StatusUnprocessableEntity, response.ErrInvalidConfiguration},
	{service.ErrSessionAlreadyActive, http.StatusConflict, response.ErrSessionAlreadyActive},
	{service.ErrAttemptsExhausted, http.StatusForbidden, response.ErrAttemptsExhausted},
	{service.ErrInvalidState, http.StatusConflict, response.ErrInvalidState},
	{service.ErrPauseNotAllowed, http.StatusForbidden, response.ErrPauseNotAllowed},
	{service.ErrSessionExpired, http.StatusGone, response.ErrSessionExpired},
	{service.ErrAlreadyCompleted, http.StatusConflict, response.ErrAlreadyCompleted},
	{service.ErrInvalidEventType, http.StatusBadRequest, response.ErrInvalidEventType},
}

// classify returns the status and code for err. Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	for _, d := range domainErrors {
		if errors.Is(err, d.err) {
			return d.status, d.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// failFromError writes the envelope for a service error, logging the ones the
// caller cannot act on.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("request_id", response.RequestID(c)).
			Msg("Request failed")
	}
	response.Fail(c, status, code)
}
