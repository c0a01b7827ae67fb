// Package metrics exposes Prometheus collectors for the HTTP surface, session
// transitions and the expiry sweeper.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/service"
)

// Metrics owns a private registry so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	transitions     *prometheus.CounterVec
	sweepRuns       prometheus.Counter
	sweepSessions   *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	relayedEvents   *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_session_transitions_total",
			Help: "Committed exam session transitions by resulting status",
		}, []string{"status"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exam_sweep_runs_total",
			Help: "Completed expiry sweep runs",
		}),
		sweepSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_sweep_sessions_total",
			Help: "Overdue sessions handled by the sweeper by outcome",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exam_sweep_duration_seconds",
			Help:    "Duration of expiry sweep runs",
			Buckets: prometheus.DefBuckets,
		}),
		relayedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exam_reward_events_relayed_total",
			Help: "Session events handed to the rewards collaborator by type",
		}, []string{"event_type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.transitions,
		m.sweepRuns, m.sweepSessions, m.sweepDuration, m.relayedEvents,
	)
	return m
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requests.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// SessionTransition counts a committed transition.
func (m *Metrics) SessionTransition(status model.SessionStatus) {
	m.transitions.WithLabelValues(string(status)).Inc()
}

// SweepFinished records one sweep run.
func (m *Metrics) SweepFinished(report *service.SweepReport, elapsed time.Duration) {
	m.sweepRuns.Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
	m.sweepSessions.WithLabelValues(string(service.OutcomeExpired)).Add(float64(report.Expired))
	m.sweepSessions.WithLabelValues(string(service.OutcomeAutoSubmitted)).Add(float64(report.AutoSubmitted))
	m.sweepSessions.WithLabelValues(string(service.OutcomeSkipped)).Add(float64(report.Skipped))
	m.sweepSessions.WithLabelValues(string(service.OutcomeFailed)).Add(float64(report.Failed))
}

// EventRelayed counts an event handed to the rewards collaborator.
func (m *Metrics) EventRelayed(eventType string) {
	m.relayedEvents.WithLabelValues(eventType).Inc()
}
