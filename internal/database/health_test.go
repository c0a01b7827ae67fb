package database

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestProbe(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	results, healthy := Probe(context.Background(), map[string]HealthCheck{
		"redis": RedisCheck(rdb),
	})
	assert.True(t, healthy)
	assert.Equal(t, map[string]string{"redis": "ok"}, results)

	results, healthy = Probe(context.Background(), map[string]HealthCheck{
		"redis":    RedisCheck(rdb),
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})
	assert.False(t, healthy)
	assert.Equal(t, "ok", results["redis"])
	assert.Equal(t, "connection refused", results["postgres"])

	mr.Close()
	_, healthy = Probe(context.Background(), map[string]HealthCheck{"redis": RedisCheck(rdb)})
	assert.False(t, healthy)
}

func TestProbe_NoChecksIsHealthy(t *testing.T) {
	results, healthy := Probe(context.Background(), nil)
	assert.True(t, healthy)
	assert.Empty(t, results)
}
