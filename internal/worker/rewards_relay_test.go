package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/events"
	"github.com/stemsi/exstem-sessions/internal/model"
)

type relayCounter struct {
	mu    sync.Mutex
	types []string
}

func (c *relayCounter) EventRelayed(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, eventType)
}

func (c *relayCounter) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.types...)
}

func TestRewardsRelay_DeliversAndRetries(t *testing.T) {
	ch := events.NewChannel()
	t.Cleanup(func() { _ = ch.Close() })
	pub := events.NewPublisher(ch, "exam.sessions")

	var (
		mu       sync.Mutex
		attempts int
		got      []model.SessionEvent
	)
	handler := func(_ context.Context, ev model.SessionEvent) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("rewards service unavailable")
		}
		got = append(got, ev)
		return nil
	}

	counter := &relayCounter{}
	relay := NewRewardsRelay(ch, "exam.sessions", handler, counter, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Start(ctx)

	// Let the relay subscribe before publishing; gochannel drops messages without subscribers.
	time.Sleep(50 * time.Millisecond)

	score := 80.0
	ev := model.SessionEvent{
		Type:         config.EventKey.SessionCompleted,
		SessionID:    uuid.New(),
		AssessmentID: uuid.New(),
		UserID:       "student-1",
		Status:       model.SessionStatusCompleted,
		Score:        &score,
		OccurredAt:   time.Now().UTC(),
	}
	require.NoError(t, pub.Publish(ctx, ev))

	require.Eventually(t, func() bool { return len(counter.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, attempts)
	require.Len(t, got, 1)
	assert.Equal(t, ev.SessionID, got[0].SessionID)
	assert.Equal(t, []string{config.EventKey.SessionCompleted}, counter.snapshot())
}
