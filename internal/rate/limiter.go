package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. A zero Max disables the
// corresponding throttle.
type Config struct {
	EnableIPThrottle bool

	MaxLoginAttempts int
	LoginWindow      time.Duration

	MaxRegistrations   int
	RegistrationWindow time.Duration

	MaxResetRequests int
	ResetWindow      time.Duration

	MaxRefreshes  int
	RefreshWindow time.Duration
}

// Limiter enforces per-identifier and per-IP request budgets using Redis
// fixed-window counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin checks whether the identifier+IP pair is within
// the login attempt budget without consuming any of it.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.checkCounter(ctx, loginUserKey(identifier), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the identifier+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, identifier, ip string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if _, err := l.incrementWithTTL(ctx, loginUserKey(identifier), l.config.LoginWindow); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginWindow); err != nil {
			return err
		}
	}
	return nil
}

// ResetLogin clears the per-identifier counter after a successful login.
// The per-IP counter is left alone so one good account cannot launder
// attempts against others from the same address.
func (l *Limiter) ResetLogin(ctx context.Context, identifier string) error {
	if l.config.MaxLoginAttempts <= 0 {
		return nil
	}
	if err := l.redis.Del(ctx, loginUserKey(identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// EnforceRegistration consumes one unit of the per-IP registration budget.
func (l *Limiter) EnforceRegistration(ctx context.Context, ip string) error {
	if l.config.MaxRegistrations <= 0 || ip == "" {
		return nil
	}
	return l.enforce(ctx, registerIPKey(ip), l.config.MaxRegistrations, l.config.RegistrationWindow)
}

// EnforceResetRequest consumes one unit of the password-reset request budget
// for the identifier and, when enabled, the caller's IP. The budget is charged
// whether or not an account exists for identifier.
func (l *Limiter) EnforceResetRequest(ctx context.Context, identifier, ip string) error {
	if l.config.MaxResetRequests <= 0 {
		return nil
	}
	if err := l.enforce(ctx, resetUserKey(identifier), l.config.MaxResetRequests, l.config.ResetWindow); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		return l.enforce(ctx, resetIPKey(ip), l.config.MaxResetRequests, l.config.ResetWindow)
	}
	return nil
}

// EnforceRefresh consumes one unit of the per-user refresh budget.
func (l *Limiter) EnforceRefresh(ctx context.Context, userID string) error {
	if l.config.MaxRefreshes <= 0 {
		return nil
	}
	return l.enforce(ctx, refreshKey(userID), l.config.MaxRefreshes, l.config.RefreshWindow)
}

// Ping round-trips to Redis and reports the latency.
func (l *Limiter) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

// GetLoginAttempts returns the current attempt counter for an identifier.
// Missing keys return zero and do not reveal account existence.
func (l *Limiter) GetLoginAttempts(ctx context.Context, identifier string) (int, error) {
	count, err := l.redis.Get(ctx, loginUserKey(identifier)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) enforce(ctx context.Context, key string, maxAttempts int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func loginUserKey(identifier string) string { return "al:" + identifier }
func loginIPKey(ip string) string           { return "ali:" + ip }
func registerIPKey(ip string) string        { return "arg:" + ip }
func resetUserKey(identifier string) string { return "arp:" + identifier }
func resetIPKey(ip string) string           { return "arpi:" + ip }
func refreshKey(userID string) string       { return "ar:" + userID }
