package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/service"
)

func TestMetrics_RecordsTransitionsAndSweeps(t *testing.T) {
	m := New()

	m.SessionTransition(model.SessionStatusExpired)
	m.SessionTransition(model.SessionStatusExpired)
	m.SweepFinished(&service.SweepReport{Expired: 3, AutoSubmitted: 1, Failed: 1}, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("EXPIRED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepRuns))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepSessions.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepSessions.WithLabelValues("auto_submitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepSessions.WithLabelValues("failed")))
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", m.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/ping", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "http_requests_total"))
}
