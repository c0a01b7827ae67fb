package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/model"
)

func TestPublisher_RoundTripOverChannel(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msgs, err := ch.Subscribe(ctx, "exam.sessions")
	require.NoError(t, err)

	pub := NewPublisher(ch, "exam.sessions")
	score, passed := 80.0, true
	ev := model.SessionEvent{
		Type:         config.EventKey.SessionCompleted,
		SessionID:    uuid.New(),
		AssessmentID: uuid.New(),
		UserID:       "student-1",
		Status:       model.SessionStatusCompleted,
		Score:        &score,
		Passed:       &passed,
		OccurredAt:   time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(ctx, ev))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, ev.Type, msg.Metadata.Get(MetadataEventType))
		assert.Equal(t, ev.SessionID.String(), msg.Metadata.Get(MetadataSessionID))

		got, err := Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, ev.UserID, got.UserID)
		assert.Equal(t, 80.0, *got.Score)
		assert.True(t, ev.OccurredAt.Equal(got.OccurredAt))
	case <-ctx.Done():
		t.Fatal("event was not delivered")
	}
}

func TestFromConfig(t *testing.T) {
	pub, sub, err := FromConfig(&config.Config{EventsDriver: config.EventsDriverNone})
	require.NoError(t, err)
	assert.Nil(t, pub)
	assert.Nil(t, sub)

	pub, sub, err = FromConfig(&config.Config{EventsDriver: config.EventsDriverChannel, EventsTopic: "t"})
	require.NoError(t, err)
	assert.NotNil(t, pub)
	assert.NotNil(t, sub)
	assert.NoError(t, pub.Close())

	_, _, err = FromConfig(&config.Config{EventsDriver: "carrier-pigeon"})
	assert.Error(t, err)
}
