package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stemsi/exstem-sessions/internal/model"
)

// Signal is a host-environment integrity signal.
type Signal string

const (
	SignalFullscreenExit   Signal = "fullscreen_exit"
	SignalVisibilityHidden Signal = "visibility_hidden"
	SignalCopyPaste        Signal = "copy_paste"
)

// SignalSource is where the host delivers signals, such as a browser bridge.
// Subscribe returns the function that removes the listener.
type SignalSource interface {
	Subscribe(fn func(sig Signal, details json.RawMessage)) (unsubscribe func())
}

const reportTimeout = 5 * time.Second

// Mount installs the proctoring listener for as long as the exam view is
// shown. Signals the assessment does not monitor are ignored. The returned
// function unmounts the listener.
func (a *Agent) Mount(ctx context.Context, src SignalSource) (unmount func()) {
	return src.Subscribe(func(sig Signal, details json.RawMessage) {
		eventType, ok := a.eventFor(sig)
		if !ok {
			return
		}
		state := a.State()
		if state == StateDone || state == StateSubmitting {
			return
		}

		rctx, cancel := context.WithTimeout(ctx, reportTimeout)
		defer cancel()
		counters, err := a.engine.RecordEvent(rctx, a.sessionID, eventType, details)
		if err != nil {
			a.log.Debug().Err(err).Str("event_type", string(eventType)).Msg("Failed to report proctoring event")
			return
		}
		if a.cb.OnCounters != nil {
			a.cb.OnCounters(*counters)
		}
	})
}

// eventFor maps a signal to the event type reported for it, honoring the
// assessment's proctoring flags.
func (a *Agent) eventFor(sig Signal) (model.ProctoringEventType, bool) {
	switch sig {
	case SignalFullscreenExit:
		return model.EventFullscreenExit, a.flags.RequireFullscreen
	case SignalVisibilityHidden:
		return model.EventTabSwitch, a.flags.ProctorMode != "" && a.flags.ProctorMode != model.ProctorModeNone
	case SignalCopyPaste:
		return model.EventCopyPaste, a.flags.PreventCopyPaste
	}
	return "", false
}
