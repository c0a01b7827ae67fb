package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-sessions/internal/config"
	"github.com/stemsi/exstem-sessions/internal/model"
)

// MonitorService fans session events out to instructors over Redis Pub/Sub so
// every replica's SSE streams see transitions made on any other replica.
type MonitorService struct {
	rdb *redis.Client
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client) *MonitorService {
	return &MonitorService{rdb: rdb}
}

// Notify publishes ev on its assessment's monitor channel.
func (s *MonitorService) Notify(ctx context.Context, ev model.SessionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode monitor event: %w", err)
	}
	channel := config.CacheKey.AssessmentMonitorChannel(ev.AssessmentID.String())
	return s.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe attaches to an assessment's monitor channel. The caller closes it.
func (s *MonitorService) Subscribe(ctx context.Context, assessmentID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.AssessmentMonitorChannel(assessmentID.String()))
}
