package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-sessions/internal/model"
)

type fakeEngine struct {
	mu sync.Mutex

	updates   []model.UpdateSessionRequest
	events    []model.ProctoringEventType
	completed []model.Answers

	updateErrs  []error
	resumeErr   error
	completeErr error
	serverLeft  int
}

func (f *fakeEngine) Update(_ context.Context, id uuid.UUID, req model.UpdateSessionRequest) (*model.ExamSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	if len(f.updateErrs) > 0 {
		err := f.updateErrs[0]
		f.updateErrs = f.updateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &model.ExamSession{ID: id, Status: model.SessionStatusActive, ServerTimeRemaining: f.serverLeft}, nil
}

func (f *fakeEngine) Pause(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return &model.ExamSession{ID: id, Status: model.SessionStatusPaused, ServerTimeRemaining: f.serverLeft}, nil
}

func (f *fakeEngine) Resume(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	if f.resumeErr != nil {
		return nil, f.resumeErr
	}
	return &model.ExamSession{ID: id, Status: model.SessionStatusActive, ServerTimeRemaining: f.serverLeft}, nil
}

func (f *fakeEngine) RecordEvent(_ context.Context, id uuid.UUID, t model.ProctoringEventType, _ json.RawMessage) (*model.ProctoringCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, t)
	return &model.ProctoringCounters{SessionID: id.String(), TotalEvents: len(f.events)}, nil
}

func (f *fakeEngine) Complete(_ context.Context, id uuid.UUID, answers model.Answers) (*model.CompletionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, answers)
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &model.CompletionResult{
		Session: &model.ExamSession{ID: id, Status: model.SessionStatusCompleted},
		Attempt: &model.AssessmentAttempt{SessionID: id, Score: 100},
	}, nil
}

type fakeSignals struct {
	mu       sync.Mutex
	listener func(Signal, json.RawMessage)
}

func (s *fakeSignals) Subscribe(fn func(Signal, json.RawMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listener = nil
	}
}

func (s *fakeSignals) fire(sig Signal) {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(sig, nil)
	}
}

func activeSession(remaining int) *model.ExamSession {
	return &model.ExamSession{
		ID:                  uuid.New(),
		Status:              model.SessionStatusActive,
		TimeLimit:           remaining,
		TimeRemaining:       remaining,
		ServerTimeRemaining: remaining,
	}
}

func TestAgent_CountdownWarnsAndSubmitsAtZero(t *testing.T) {
	engine := &fakeEngine{}
	var warnings []time.Duration
	var done bool
	a := New(engine, activeSession(301), model.ProctoringFlags{}, Callbacks{
		OnWarning: func(d time.Duration) { warnings = append(warnings, d) },
		OnDone:    func(*model.CompletionResult, error) { done = true },
	})
	q := uuid.New()
	a.SetAnswer(q, model.ChoiceAnswer(2))

	ctx := context.Background()
	for i := 0; i < 300; i++ {
		require.Equal(t, StateRunning, a.Tick(ctx))
	}
	assert.Equal(t, []time.Duration{5 * time.Minute, time.Minute}, warnings)
	assert.Equal(t, time.Second, a.Remaining())

	assert.Equal(t, StateDone, a.Tick(ctx))
	assert.True(t, done)
	require.Len(t, engine.completed, 1)
	assert.True(t, engine.completed[0][q].Matches(model.ChoiceAnswer(2)))

	// Further ticks are inert.
	assert.Equal(t, StateDone, a.Tick(ctx))
	assert.Len(t, engine.completed, 1)
}

func TestAgent_WarningSurvivesResyncPastThreshold(t *testing.T) {
	engine := &fakeEngine{serverLeft: 299}
	var warnings []time.Duration
	a := New(engine, activeSession(301), model.ProctoringFlags{}, Callbacks{
		OnWarning: func(d time.Duration) { warnings = append(warnings, d) },
	})

	ctx := context.Background()
	a.Autosave(ctx)
	assert.Equal(t, 299*time.Second, a.Remaining())

	for a.Remaining() > 30*time.Second {
		require.Equal(t, StateRunning, a.Tick(ctx))
	}
	assert.Equal(t, []time.Duration{5 * time.Minute, time.Minute}, warnings)
}

func TestAgent_ReloadBelowThresholdRaisesOneBanner(t *testing.T) {
	var warnings []time.Duration
	a := New(&fakeEngine{}, activeSession(45), model.ProctoringFlags{}, Callbacks{
		OnWarning: func(d time.Duration) { warnings = append(warnings, d) },
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		a.Tick(ctx)
	}
	assert.Equal(t, []time.Duration{time.Minute}, warnings)
}

func TestAgent_FailedSubmissionStillEndsDone(t *testing.T) {
	engine := &fakeEngine{completeErr: errors.New("network down")}
	a := New(engine, activeSession(1), model.ProctoringFlags{}, Callbacks{})

	assert.Equal(t, StateDone, a.Tick(context.Background()))
	result, err := a.Result()
	assert.Nil(t, result)
	assert.EqualError(t, err, "network down")
}

func TestAgent_AutosaveRetriesSilently(t *testing.T) {
	engine := &fakeEngine{updateErrs: []error{errors.New("timeout"), nil}, serverLeft: 42}
	a := New(engine, activeSession(60), model.ProctoringFlags{}, Callbacks{})
	a.SetCurrentQuestion(3)

	ctx := context.Background()
	a.Tick(ctx)
	a.Autosave(ctx)
	assert.Equal(t, StateRunning, a.State())
	assert.Equal(t, 59*time.Second, a.Remaining())

	a.Autosave(ctx)
	require.Len(t, engine.updates, 2)
	assert.Equal(t, 3, *engine.updates[1].CurrentQuestion)
	assert.Equal(t, 1, *engine.updates[1].TimeElapsed)
	assert.Equal(t, 42*time.Second, a.Remaining())
}

func TestAgent_PauseStopsCountdownAndAutosave(t *testing.T) {
	engine := &fakeEngine{serverLeft: 50}
	a := New(engine, activeSession(60), model.ProctoringFlags{}, Callbacks{})
	ctx := context.Background()

	require.NoError(t, a.Pause(ctx))
	assert.Equal(t, StatePaused, a.State())

	a.Tick(ctx)
	a.Autosave(ctx)
	assert.Equal(t, 50*time.Second, a.Remaining())
	assert.Empty(t, engine.updates)

	require.NoError(t, a.Resume(ctx))
	assert.Equal(t, StateRunning, a.State())
	assert.ErrorIs(t, a.Resume(ctx), ErrNotRunning)
}

func TestAgent_ResumeAfterDeadlineEndsAgent(t *testing.T) {
	engine := &fakeEngine{resumeErr: &APIError{Status: 410, Code: "SESSION_EXPIRED"}}
	sess := activeSession(60)
	sess.Status = model.SessionStatusPaused
	a := New(engine, sess, model.ProctoringFlags{}, Callbacks{})

	err := a.Resume(context.Background())
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateDone, a.State())
	assert.Empty(t, engine.completed)
}

func TestAgent_MountReportsOnlyMonitoredSignals(t *testing.T) {
	engine := &fakeEngine{}
	var counters []model.ProctoringCounters
	a := New(engine, activeSession(60), model.ProctoringFlags{
		ProctorMode:       model.ProctorModeNone,
		RequireFullscreen: true,
	}, Callbacks{OnCounters: func(c model.ProctoringCounters) { counters = append(counters, c) }})

	src := &fakeSignals{}
	unmount := a.Mount(context.Background(), src)

	src.fire(SignalFullscreenExit)
	src.fire(SignalVisibilityHidden)
	src.fire(SignalCopyPaste)
	assert.Equal(t, []model.ProctoringEventType{model.EventFullscreenExit}, engine.events)
	assert.Len(t, counters, 1)

	unmount()
	src.fire(SignalFullscreenExit)
	assert.Len(t, engine.events, 1)
}

func TestAgent_StrictModeReportsTabSwitches(t *testing.T) {
	engine := &fakeEngine{}
	a := New(engine, activeSession(60), model.ProctoringFlags{
		ProctorMode:      model.ProctorModeStrict,
		PreventCopyPaste: true,
	}, Callbacks{})

	src := &fakeSignals{}
	defer a.Mount(context.Background(), src)()

	src.fire(SignalVisibilityHidden)
	src.fire(SignalCopyPaste)
	src.fire(SignalFullscreenExit)
	assert.Equal(t, []model.ProctoringEventType{model.EventTabSwitch, model.EventCopyPaste}, engine.events)
}
