package authcore

import (
	"context"
	"time"

	"github.com/innerscope/authcore/store"
)

// HealthStatus is an on-demand backend health result. Redis fields are only
// meaningful when RedisConfigured is true.
type HealthStatus struct {
	StoreAvailable  bool
	StoreLatency    time.Duration
	RedisConfigured bool
	RedisAvailable  bool
	RedisLatency    time.Duration
}

// Healthy reports whether every configured backend answered.
func (h HealthStatus) Healthy() bool {
	return h.StoreAvailable && (!h.RedisConfigured || h.RedisAvailable)
}

// Health pings the store, if it supports store.Pinger, and the throttle
// backend. Stores without Ping are assumed available.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}

	var status HealthStatus
	if p, ok := e.store.(store.Pinger); ok {
		start := time.Now()
		err := p.Ping(ctx)
		status.StoreAvailable = err == nil
		status.StoreLatency = time.Since(start)
	} else {
		status.StoreAvailable = true
	}

	if e.rateLimiter != nil {
		status.RedisConfigured = true
		latency, err := e.rateLimiter.Ping(ctx)
		status.RedisAvailable = err == nil
		status.RedisLatency = latency
	}
	return status
}

// LoginAttempts returns the throttle counter for email. It is zero when rate
// limiting is not configured, and never reveals whether the account exists.
func (e *Engine) LoginAttempts(ctx context.Context, email string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if e.rateLimiter == nil || email == "" {
		return 0, nil
	}
	return e.rateLimiter.GetLoginAttempts(ctx, email)
}
