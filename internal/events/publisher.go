// Package events publishes session events to the rewards/notification
// collaborator through watermill, over Kafka or an in-process channel.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/model"
)

// Metadata keys set on every message.
const (
	MetadataEventType = "event_type"
	MetadataSessionID = "session_id"
	MetadataTimestamp = "timestamp"
)

// Publisher sends session events to one topic.
type Publisher struct {
	pub   message.Publisher
	topic string
	log   zerolog.Logger
}

// NewPublisher wraps any watermill publisher.
func NewPublisher(pub message.Publisher, topic string) *Publisher {
	return &Publisher{
		pub:   pub,
		topic: topic,
		log:   log.With().Str("component", "event_publisher").Str("topic", topic).Logger(),
	}
}

// NewKafkaPublisher connects a publisher to the given Kafka brokers.
func NewKafkaPublisher(brokers []string, topic string) (*Publisher, error) {
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, NewLoggerAdapter(log.With().Str("component", "kafka").Logger()))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewPublisher(pub, topic), nil
}

// NewChannel creates the in-process pub/sub used when no broker is configured.
func NewChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256},
		NewLoggerAdapter(log.With().Str("component", "event_channel").Logger()))
}

// FromConfig builds the publisher selected by EVENTS_DRIVER. For the channel
// driver the returned subscriber reads the same in-process topic; it is nil
// otherwise. The none driver returns a nil publisher.
func FromConfig(cfg *config.Config) (*Publisher, message.Subscriber, error) {
	switch cfg.EventsDriver {
	case config.EventsDriverKafka:
		p, err := NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		return p, nil, err
	case config.EventsDriverChannel:
		ch := NewChannel()
		return NewPublisher(ch, cfg.EventsTopic), ch, nil
	case config.EventsDriverNone, "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown events driver %q", cfg.EventsDriver)
	}
}

// Publish sends ev as a JSON message keyed by a fresh message id.
func (p *Publisher) Publish(ctx context.Context, ev model.SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataEventType, ev.Type)
	msg.Metadata.Set(MetadataSessionID, ev.SessionID.String())
	msg.Metadata.Set(MetadataTimestamp, ev.OccurredAt.Format(time.RFC3339))
	msg.SetContext(ctx)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}

	p.log.Debug().
		Str("message_id", msg.UUID).
		Str("event_type", ev.Type).
		Str("session_id", ev.SessionID.String()).
		Msg("Published session event")
	return nil
}

// Close releases the underlying publisher.
func (p *Publisher) Close() error {
	return p.pub.Close()
}

// Decode parses a message produced by Publish.
func Decode(msg *message.Message) (model.SessionEvent, error) {
	var ev model.SessionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("decode session event %s: %w", msg.UUID, err)
	}
	return ev, nil
}
