package database

import (
	"context"
	"time"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// healthTimeout bounds a single probe so /health never hangs on a dead peer.
const healthTimeout = 2 * time.Second

// Probe runs every check and returns "ok" or the error text per name.
func Probe(ctx context.Context, checks map[string]HealthCheck) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	healthy := true
	for name, check := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, healthTimeout)
		err := check(probeCtx)
		cancel()
		if err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}
