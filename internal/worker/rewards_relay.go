package worker

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-sessions/internal/events"
	"github.com/stemsi/exstem-sessions/internal/model"
)

// RelayHandler receives each decoded session event.
type RelayHandler func(ctx context.Context, ev model.SessionEvent) error

// RelayObserver is told about every event handed to the handler.
type RelayObserver interface {
	EventRelayed(eventType string)
}

// RewardsRelay consumes the in-process events topic and hands terminal session
// events to the rewards collaborator. A handler error nacks the message so the
// channel redelivers it.
type RewardsRelay struct {
	sub      message.Subscriber
	topic    string
	handle   RelayHandler
	observer RelayObserver
	log      zerolog.Logger
}

func NewRewardsRelay(sub message.Subscriber, topic string, handle RelayHandler, observer RelayObserver, log zerolog.Logger) *RewardsRelay {
	r := &RewardsRelay{
		sub:      sub,
		topic:    topic,
		handle:   handle,
		observer: observer,
		log:      log.With().Str("component", "rewards_relay").Logger(),
	}
	if r.handle == nil {
		r.handle = r.logEvent
	}
	return r
}

// Start blocks until ctx is cancelled or the subscription closes.
func (r *RewardsRelay) Start(ctx context.Context) {
	messages, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to subscribe to events topic")
		return
	}
	r.log.Info().Str("topic", r.topic).Msg("RewardsRelay started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("RewardsRelay stopped")
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.process(msg)
		}
	}
}

func (r *RewardsRelay) process(msg *message.Message) {
	ev, err := events.Decode(msg)
	if err != nil {
		// Poison message; redelivery cannot fix it.
		r.log.Error().Err(err).Msg("Dropping undecodable event")
		msg.Ack()
		return
	}

	if err := r.handle(msg.Context(), ev); err != nil {
		r.log.Warn().Err(err).
			Str("event_type", ev.Type).
			Str("session_id", ev.SessionID.String()).
			Msg("Rewards handler failed, requesting redelivery")
		msg.Nack()
		return
	}
	if r.observer != nil {
		r.observer.EventRelayed(ev.Type)
	}
	msg.Ack()
}

func (r *RewardsRelay) logEvent(_ context.Context, ev model.SessionEvent) error {
	e := r.log.Info().
		Str("event_type", ev.Type).
		Str("session_id", ev.SessionID.String()).
		Str("user_id", ev.UserID).
		Str("status", string(ev.Status))
	if ev.Score != nil {
		e = e.Float64("score", *ev.Score)
	}
	if ev.Passed != nil {
		e = e.Bool("passed", *ev.Passed)
	}
	e.Msg("Session event relayed to rewards")
	return nil
}
