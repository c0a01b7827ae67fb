package agent

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/handler"
	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/repository/memory"
	"github.com/stemsi/exstem-sessions/internal/router"
	"github.com/stemsi/exstem-sessions/internal/service"
)

type serverClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *serverClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *serverClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type engineServer struct {
	url        string
	auth       *service.AuthService
	clock      *serverClock
	assessment *model.Assessment
	q1, q2     uuid.UUID
}

func newEngineServer(t *testing.T) *engineServer {
	t.Helper()

	cfg := &config.Config{GinMode: gin.TestMode, JWTSecret: "agent-secret"}
	auth := service.NewAuthService(cfg)
	clock := &serverClock{t: time.Date(2026, 4, 1, 7, 0, 0, 0, time.UTC)}

	q1, q2 := uuid.New(), uuid.New()
	a := &model.Assessment{
		ID:                uuid.New(),
		Title:             "Biologi Sel",
		IsTimedExam:       true,
		TimeLimitMinutes:  10,
		AllowPause:        true,
		PassingScore:      70,
		ProctorMode:       model.ProctorModeBasic,
		RequireFullscreen: true,
		Questions: []model.Question{
			{ID: q1, Kind: model.AnswerKindBoolean, Points: 4, CorrectAnswers: model.BooleanAnswer(true), OrderNum: 1},
			{ID: q2, Kind: model.AnswerKindText, Points: 6, CorrectAnswers: model.TextAnswer("mitokondria"), OrderNum: 2},
		},
	}

	store := memory.NewStore()
	store.Assessments().Put(a)
	svc := service.NewSessionService(store.Sessions(), store.Attempts(), store.Assessments(), service.SessionConfig{Now: clock.Now})

	log := zerolog.Nop()
	engine := router.SetupRouter(auth, &router.Handlers{
		Session: handler.NewSessionHandler(svc, log),
		Monitor: handler.NewMonitorHandler(svc, nil, log),
		System:  handler.NewSystemHandler(svc, log),
		WS:      handler.NewWSHandler(svc, nil, log, nil),
	}, cfg, router.Options{})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &engineServer{url: srv.URL, auth: auth, clock: clock, assessment: a, q1: q1, q2: q2}
}

func (s *engineServer) client(t *testing.T, userID string) *HTTPEngine {
	t.Helper()
	tok, err := s.auth.IssueToken(userID, service.TokenTypeStudent, time.Hour)
	require.NoError(t, err)
	return NewHTTPEngine(s.url, tok, nil)
}

func TestHTTPEngine_AgentSubmitsOverHTTP(t *testing.T) {
	srv := newEngineServer(t)
	ctx := context.Background()
	engine := srv.client(t, "student-1")

	session, flags, err := engine.Start(ctx, srv.assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, 600, session.ServerTimeRemaining)
	assert.True(t, flags.RequireFullscreen)

	a := New(engine, session, *flags, Callbacks{})
	src := &fakeSignals{}
	defer a.Mount(ctx, src)()

	src.fire(SignalVisibilityHidden)
	src.fire(SignalFullscreenExit)

	a.SetAnswer(srv.q1, model.BooleanAnswer(true))
	a.SetAnswer(srv.q2, model.TextAnswer("ribosom"))
	srv.clock.Advance(30 * time.Second)
	a.Autosave(ctx)
	assert.Equal(t, 570*time.Second, a.Remaining())

	require.NoError(t, a.Submit(ctx))
	assert.Equal(t, StateDone, a.State())

	result, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, 4, result.Attempt.EarnedPoints)
	assert.Equal(t, 40.0, result.Attempt.Score)
	assert.False(t, result.Attempt.Passed)
	assert.Len(t, result.Attempt.WarningsIssued, 2)

	_, err = engine.Complete(ctx, session.ID, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "ALREADY_COMPLETED", apiErr.Code)
}

func TestHTTPEngine_ResumeAfterDeadlineMapsToExpired(t *testing.T) {
	srv := newEngineServer(t)
	ctx := context.Background()
	engine := srv.client(t, "student-2")

	session, flags, err := engine.Start(ctx, srv.assessment.ID)
	require.NoError(t, err)

	a := New(engine, session, *flags, Callbacks{})
	require.NoError(t, a.Pause(ctx))

	srv.clock.Advance(11 * time.Minute)
	err = a.Resume(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateDone, a.State())
}
