package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
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
	"github.com/stemsi/exstem-sessions/internal/middleware"
	"github.com/stemsi/exstem-sessions/internal/model"
	"github.com/stemsi/exstem-sessions/internal/repository/memory"
	"github.com/stemsi/exstem-sessions/internal/router"
	"github.com/stemsi/exstem-sessions/internal/service"
	"github.com/stemsi/exstem-sessions/internal/validator"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type api struct {
	t          *testing.T
	engine     *gin.Engine
	auth       *service.AuthService
	clock      *testClock
	assessment *model.Assessment
	q1, q2     uuid.UUID
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func newAPI(t *testing.T) *api {
	t.Helper()
	validator.Setup()

	cfg := &config.Config{GinMode: gin.TestMode, JWTSecret: "test-secret"}
	auth := service.NewAuthService(cfg)
	clock := &testClock{t: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)}

	q1, q2 := uuid.New(), uuid.New()
	assessment := &model.Assessment{
		ID:                uuid.New(),
		Title:             "Kimia Organik",
		IsTimedExam:       true,
		TimeLimitMinutes:  1,
		AllowPause:        true,
		PassingScore:      60,
		ProctorMode:       model.ProctorModeStrict,
		RequireFullscreen: true,
		Questions: []model.Question{
			{ID: q1, Kind: model.AnswerKindChoice, Points: 10, CorrectAnswers: model.ChoiceAnswer(1), OrderNum: 1},
			{ID: q2, Kind: model.AnswerKindChoice, Points: 5, CorrectAnswers: model.ChoiceAnswer(0), OrderNum: 2},
		},
	}

	store := memory.NewStore()
	store.Assessments().Put(assessment)
	svc := service.NewSessionService(store.Sessions(), store.Attempts(), store.Assessments(), service.SessionConfig{
		SubmitGrace: 10 * time.Second,
		Now:         clock.Now,
	})

	log := zerolog.Nop()
	limiter := middleware.NewRateLimiter(0.001, 3, middleware.ByParam("id"))
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(svc, log),
		Monitor: handler.NewMonitorHandler(svc, nil, log),
		System:  handler.NewSystemHandler(svc, log),
		WS:      handler.NewWSHandler(svc, limiter, log, nil),
	}

	return &api{
		t:          t,
		engine:     router.SetupRouter(auth, handlers, cfg, router.Options{ProctorLimiter: limiter}),
		auth:       auth,
		clock:      clock,
		assessment: assessment,
		q1:         q1,
		q2:         q2,
	}
}

func (a *api) token(userID string, tokenType service.TokenType) string {
	tok, err := a.auth.IssueToken(userID, tokenType, time.Hour)
	require.NoError(a.t, err)
	return tok
}

func (a *api) do(method, path, token string, body any) (int, envelope, *httptest.ResponseRecorder) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env, w
}

func (a *api) start(token string) model.ExamSession {
	a.t.Helper()
	code, env, _ := a.do(http.MethodPost, "/api/v1/student/assessments/"+a.assessment.ID.String()+"/sessions", token, nil)
	require.Equal(a.t, http.StatusCreated, code)

	var data struct {
		Session    model.ExamSession     `json:"session"`
		Proctoring model.ProctoringFlags `json:"proctoring"`
	}
	require.NoError(a.t, json.Unmarshal(env.Data, &data))
	assert.True(a.t, data.Proctoring.RequireFullscreen)
	return data.Session
}

func TestSessionAPI_StartAndUniqueness(t *testing.T) {
	a := newAPI(t)
	student := a.token("student-1", service.TokenTypeStudent)

	sess := a.start(student)
	assert.Equal(t, model.SessionStatusActive, sess.Status)
	assert.Equal(t, 60, sess.TimeLimit)
	assert.Equal(t, 60, sess.ServerTimeRemaining)

	code, env, _ := a.do(http.MethodPost, "/api/v1/student/assessments/"+a.assessment.ID.String()+"/sessions", student, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "SESSION_ALREADY_ACTIVE", env.Error.Code)

	code, env, _ = a.do(http.MethodGet, "/api/v1/student/assessments/"+a.assessment.ID.String()+"/sessions/active", student, nil)
	require.Equal(t, http.StatusOK, code)
	var active struct {
		Session *model.ExamSession `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &active))
	require.NotNil(t, active.Session)
	assert.Equal(t, sess.ID, active.Session.ID)
}

func TestSessionAPI_AuthAndOwnership(t *testing.T) {
	a := newAPI(t)
	sess := a.start(a.token("student-1", service.TokenTypeStudent))
	path := "/api/v1/student/sessions/" + sess.ID.String()

	code, env, _ := a.do(http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_REQUIRED", env.Error.Code)

	code, env, _ = a.do(http.MethodGet, path, a.token("instructor-1", service.TokenTypeInstructor), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "STUDENT_ACCESS_ONLY", env.Error.Code)

	code, env, _ = a.do(http.MethodGet, path, a.token("student-2", service.TokenTypeStudent), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env, _ = a.do(http.MethodGet, "/api/v1/student/sessions/not-a-uuid", a.token("student-1", service.TokenTypeStudent), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)
}

func TestSessionAPI_ProctorAutosaveAndComplete(t *testing.T) {
	a := newAPI(t)
	student := a.token("student-1", service.TokenTypeStudent)
	sess := a.start(student)
	base := "/api/v1/student/sessions/" + sess.ID.String()

	code, env, _ := a.do(http.MethodPost, base+"/events", student, map[string]any{"type": "TAB_SWITCH"})
	require.Equal(t, http.StatusOK, code)
	var recorded struct {
		Counters model.ProctoringCounters `json:"counters"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &recorded))
	assert.Equal(t, 1, recorded.Counters.TabSwitches)
	assert.Equal(t, 1, recorded.Counters.TotalEvents)

	code, env, _ = a.do(http.MethodPost, base+"/events", student, map[string]any{"type": "SCREENSHOT"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	a.clock.Advance(20 * time.Second)
	code, _, _ = a.do(http.MethodPatch, base, student, map[string]any{
		"time_remaining": 40,
		"time_elapsed":   20,
		"answers":        map[string]any{a.q1.String(): []int{1}, a.q2.String(): []int{1}},
	})
	require.Equal(t, http.StatusOK, code)

	// Empty body submits the autosaved answers.
	code, env, _ = a.do(http.MethodPost, base+"/complete", student, nil)
	require.Equal(t, http.StatusOK, code)
	var result model.CompletionResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.NotNil(t, result.Attempt)
	assert.Equal(t, 10, result.Attempt.EarnedPoints)
	assert.Equal(t, 15, result.Attempt.TotalPoints)
	assert.Equal(t, 66.67, result.Attempt.Score)
	assert.True(t, result.Attempt.Passed)
	assert.Len(t, result.Attempt.WarningsIssued, 1)
	assert.Equal(t, model.SessionStatusCompleted, result.Session.Status)

	code, env, _ = a.do(http.MethodPost, base+"/complete", student, map[string]any{"answers": map[string]any{}})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ALREADY_COMPLETED", env.Error.Code)

	code, _, _ = a.do(http.MethodGet, "/api/v1/student/attempts/"+result.Attempt.ID.String(), student, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestSessionAPI_ResumeAfterDeadlineIsGone(t *testing.T) {
	a := newAPI(t)
	student := a.token("student-1", service.TokenTypeStudent)
	sess := a.start(student)
	base := "/api/v1/student/sessions/" + sess.ID.String()

	code, _, _ := a.do(http.MethodPost, base+"/pause", student, nil)
	require.Equal(t, http.StatusOK, code)

	a.clock.Advance(61 * time.Second)
	code, env, _ := a.do(http.MethodPost, base+"/resume", student, nil)
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, "SESSION_EXPIRED", env.Error.Code)

	code, env, _ = a.do(http.MethodGet, base, student, nil)
	require.Equal(t, http.StatusOK, code)
	var got struct {
		Session model.ExamSession `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, model.SessionStatusExpired, got.Session.Status)
}

func TestSessionAPI_ProctorEventsAreRateLimitedPerSession(t *testing.T) {
	a := newAPI(t)
	student := a.token("student-1", service.TokenTypeStudent)
	sess := a.start(student)
	path := "/api/v1/student/sessions/" + sess.ID.String() + "/events"

	for i := 0; i < 3; i++ {
		code, _, _ := a.do(http.MethodPost, path, student, map[string]any{"type": "FULLSCREEN_EXIT"})
		require.Equal(t, http.StatusOK, code)
	}
	code, env, _ := a.do(http.MethodPost, path, student, map[string]any{"type": "FULLSCREEN_EXIT"})
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", env.Error.Code)
}

func TestSystemAPI_CheckExpiredSessions(t *testing.T) {
	a := newAPI(t)
	a.start(a.token("student-1", service.TokenTypeStudent))
	a.start(a.token("student-2", service.TokenTypeStudent))
	a.clock.Advance(61 * time.Second)

	system := a.token("scheduler", service.TokenTypeSystem)
	code, env, _ := a.do(http.MethodPost, "/api/v1/system/sessions/check-expired", system, nil)
	require.Equal(t, http.StatusOK, code)
	var first struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, 2, first.Count)

	code, env, _ = a.do(http.MethodPost, "/api/v1/system/sessions/check-expired", system, nil)
	require.Equal(t, http.StatusOK, code)
	var second struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Zero(t, second.Count)

	code, _, _ = a.do(http.MethodPost, "/api/v1/system/sessions/check-expired", a.token("student-1", service.TokenTypeStudent), nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestInstructorAPI_StatisticsAndExport(t *testing.T) {
	a := newAPI(t)
	a.start(a.token("student-1", service.TokenTypeStudent))
	instructor := a.token("instructor-1", service.TokenTypeInstructor)
	base := "/api/v1/instructor/assessments/" + a.assessment.ID.String()

	code, env, _ := a.do(http.MethodGet, base+"/statistics", instructor, nil)
	require.Equal(t, http.StatusOK, code)
	var stats model.SessionStatistics
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.Active)

	code, _, w := a.do(http.MethodGet, base+"/statistics/export", instructor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, w.Body.Len())

	code, env, _ = a.do(http.MethodGet, "/api/v1/instructor/assessments/"+uuid.NewString()+"/statistics", instructor, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
