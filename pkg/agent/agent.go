// Package agent is the client side of a timed session: a one-second countdown
// that autosaves every 30 seconds, reports proctoring signals, raises warning
// banners and submits when time runs out.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// State is the agent's local view of the session.
type State string

const (
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateSubmitting State = "submitting"
	StateDone       State = "done"
)

const (
	TickInterval     = time.Second
	AutosaveInterval = 30 * time.Second
)

// WarningThresholds are the remaining times at which a banner is raised,
// largest first. Each fires once, the first time the countdown is at or below it.
var WarningThresholds = []time.Duration{5 * time.Minute, time.Minute}

// ErrSessionExpired is returned by an Engine when the server deadline passed.
var ErrSessionExpired = errors.New("session expired")

// ErrNotRunning is returned for actions that need a different local state.
var ErrNotRunning = errors.New("agent is not in a state that allows this action")

// Engine is the server API the agent drives.
type Engine interface {
	Update(ctx context.Context, sessionID uuid.UUID, req model.UpdateSessionRequest) (*model.ExamSession, error)
	Pause(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error)
	Resume(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error)
	RecordEvent(ctx context.Context, sessionID uuid.UUID, eventType model.ProctoringEventType, details json.RawMessage) (*model.ProctoringCounters, error)
	Complete(ctx context.Context, sessionID uuid.UUID, answers model.Answers) (*model.CompletionResult, error)
}

// Callbacks are optional UI hooks. They run on the goroutine that caused them
// and must not call back into the agent synchronously.
type Callbacks struct {
	OnWarning  func(remaining time.Duration)
	OnCounters func(c model.ProctoringCounters)
	OnDone     func(result *model.CompletionResult, err error)
}

// Agent mirrors one session on the client.
type Agent struct {
	engine    Engine
	sessionID uuid.UUID
	flags     model.ProctoringFlags
	cb        Callbacks
	log       zerolog.Logger

	mu              sync.Mutex
	state           State
	remaining       int
	elapsed         int
	currentQuestion int
	answers         model.Answers
	result          *model.CompletionResult
	submitErr       error
	warned          map[time.Duration]bool
}

// New starts an agent for a freshly started or reloaded session.
func New(engine Engine, session *model.ExamSession, flags model.ProctoringFlags, cb Callbacks) *Agent {
	remaining := session.ServerTimeRemaining
	if remaining == 0 && !session.Status.IsTerminal() {
		remaining = session.TimeRemaining
	}

	state := StateRunning
	switch {
	case session.Status == model.SessionStatusPaused:
		state = StatePaused
	case session.Status.IsTerminal():
		state = StateDone
	}

	answers := make(model.Answers, len(session.Answers))
	for id, a := range session.Answers {
		answers[id] = a.Clone()
	}

	return &Agent{
		engine:          engine,
		sessionID:       session.ID,
		flags:           flags,
		cb:              cb,
		log:             log.With().Str("component", "timing_agent").Str("session_id", session.ID.String()).Logger(),
		state:           state,
		remaining:       remaining,
		elapsed:         session.TimeElapsed,
		currentQuestion: session.CurrentQuestion,
		answers:         answers,
		warned:          make(map[time.Duration]bool, len(WarningThresholds)),
	}
}

// State returns the current local state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Remaining returns the local countdown.
func (a *Agent) Remaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Duration(a.remaining) * time.Second
}

// Result returns the submission outcome once the agent is done.
func (a *Agent) Result() (*model.CompletionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.submitErr
}

// SetAnswer buffers an answer for the next autosave or submission.
func (a *Agent) SetAnswer(questionID uuid.UUID, answer model.Answer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers[questionID] = answer.Clone()
}

// SetCurrentQuestion records navigation.
func (a *Agent) SetCurrentQuestion(index int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentQuestion = index
}

// Run drives Tick and Autosave until ctx is cancelled or the agent is done.
func (a *Agent) Run(ctx context.Context) {
	tick := time.NewTicker(TickInterval)
	defer tick.Stop()
	save := time.NewTicker(AutosaveInterval)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if a.Tick(ctx) == StateDone {
				return
			}
		case <-save.C:
			a.Autosave(ctx)
		}
	}
}

// Tick advances the countdown by one second while running. Reaching zero
// submits the buffered answers.
func (a *Agent) Tick(ctx context.Context) State {
	a.mu.Lock()
	if a.state != StateRunning {
		state := a.state
		a.mu.Unlock()
		return state
	}

	if a.remaining > 0 {
		a.remaining--
		a.elapsed++
	}
	remaining := a.remaining
	warning, due := a.dueWarningLocked()
	a.mu.Unlock()

	if due && a.cb.OnWarning != nil {
		a.cb.OnWarning(warning)
	}

	if remaining == 0 {
		a.submit(ctx)
	}
	return a.State()
}

// Autosave pushes progress while running. Failures are retried on the next
// interval without surfacing to the student.
func (a *Agent) Autosave(ctx context.Context) {
	a.mu.Lock()
	if a.state != StateRunning {
		a.mu.Unlock()
		return
	}
	req := a.progressLocked()
	a.mu.Unlock()

	session, err := a.engine.Update(ctx, a.sessionID, req)
	if err != nil {
		if errors.Is(err, ErrSessionExpired) {
			a.finish(nil, err)
			return
		}
		a.log.Debug().Err(err).Msg("Autosave failed, retrying next interval")
		return
	}
	a.sync(session)
}

// Pause asks the server to pause. The countdown stops only once it agrees.
func (a *Agent) Pause(ctx context.Context) error {
	if a.State() != StateRunning {
		return ErrNotRunning
	}
	session, err := a.engine.Pause(ctx, a.sessionID)
	if err != nil {
		return err
	}
	a.sync(session)
	return nil
}

// Resume asks the server to resume. A deadline that passed while paused ends
// the agent.
func (a *Agent) Resume(ctx context.Context) error {
	if a.State() != StatePaused {
		return ErrNotRunning
	}
	session, err := a.engine.Resume(ctx, a.sessionID)
	if errors.Is(err, ErrSessionExpired) {
		a.finish(nil, err)
		return err
	}
	if err != nil {
		return err
	}
	a.sync(session)
	return nil
}

// Submit sends the buffered answers now.
func (a *Agent) Submit(ctx context.Context) error {
	state := a.State()
	if state != StateRunning && state != StatePaused {
		return ErrNotRunning
	}
	a.submit(ctx)
	_, err := a.Result()
	return err
}

func (a *Agent) submit(ctx context.Context) {
	a.mu.Lock()
	if a.state == StateSubmitting || a.state == StateDone {
		a.mu.Unlock()
		return
	}
	a.state = StateSubmitting
	answers := make(model.Answers, len(a.answers))
	for id, ans := range a.answers {
		answers[id] = ans.Clone()
	}
	a.mu.Unlock()

	result, err := a.engine.Complete(ctx, a.sessionID, answers)
	if err != nil {
		a.log.Warn().Err(err).Msg("Submission failed; the server sweep settles the session")
	}
	a.finish(result, err)
}

func (a *Agent) finish(result *model.CompletionResult, err error) {
	a.mu.Lock()
	if a.state == StateDone {
		a.mu.Unlock()
		return
	}
	a.state = StateDone
	a.remaining = 0
	a.result = result
	a.submitErr = err
	a.mu.Unlock()

	if a.cb.OnDone != nil {
		a.cb.OnDone(result, err)
	}
}

// sync adopts the server's status and countdown.
func (a *Agent) sync(session *model.ExamSession) {
	if session == nil {
		return
	}
	if session.Status.IsTerminal() {
		a.finish(nil, nil)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateSubmitting || a.state == StateDone {
		return
	}
	a.remaining = session.ServerTimeRemaining
	if session.Status == model.SessionStatusPaused {
		a.state = StatePaused
	} else {
		a.state = StateRunning
	}
}

// dueWarningLocked marks every threshold the countdown has reached and
// returns the tightest newly reached one. A resync or reload that skips past
// several thresholds raises a single banner.
func (a *Agent) dueWarningLocked() (time.Duration, bool) {
	var (
		warning time.Duration
		due     bool
	)
	for _, th := range WarningThresholds {
		if a.warned[th] || a.remaining <= 0 || a.remaining > int(th/time.Second) {
			continue
		}
		a.warned[th] = true
		if !due || th < warning {
			warning, due = th, true
		}
	}
	return warning, due
}

func (a *Agent) progressLocked() model.UpdateSessionRequest {
	remaining, elapsed, current := a.remaining, a.elapsed, a.currentQuestion
	answers := make(model.Answers, len(a.answers))
	for id, ans := range a.answers {
		answers[id] = ans.Clone()
	}
	return model.UpdateSessionRequest{
		TimeRemaining:   &remaining,
		TimeElapsed:     &elapsed,
		CurrentQuestion: &current,
		Answers:         answers,
	}
}
