package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/innerscope/authcore/csrf"
	"github.com/innerscope/authcore/internal/rate"
	"github.com/innerscope/authcore/jwt"
	"github.com/innerscope/authcore/password"
	"github.com/innerscope/authcore/store"
)

// dummyPassword is hashed whenever an operation must spend the same time as
// a real hash or verification but has no account to work on.
const dummyPassword = "authcore-timing-equalization-placeholder"

// Builder assembles an Engine. It is single use.
type Builder struct {
	config Config
	store  store.Store
	mailer Mailer
	hasher PasswordHasher
	redis  redis.UniversalClient
	logger *slog.Logger
	clock  func() time.Time

	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the persistence adapter. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithMailer sets the outbound email adapter. Without one, reset and
// verification emails are skipped with a warning.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithRedis enables the throttles configured in Config.RateLimit.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source used for expiry and lockout decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithAuditSink sets where audit events are delivered when Config.Audit is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
//
// Build computes the dummy digest used for timing equalization, so it costs
// one password hash.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		csrf:      csrf.New(),
		lockout:   cfg.Lockout.policy(),
		logger:    b.logger,
		now:       b.clock,
		newUserID: uuid.NewString,
	}
	if engine.logger == nil {
		engine.logger = slog.Default()
	}
	engine.logger = engine.logger.With("module", "authcore")
	if engine.now == nil {
		engine.now = time.Now
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	engine.tokens = jm

	engine.hasher = b.hasher
	if engine.hasher == nil {
		alg, err := newPasswordAlgorithm(cfg.Password)
		if err != nil {
			return nil, err
		}
		engine.hasher = password.NewPool(alg, cfg.Password.HashConcurrency)
	}

	dummy, err := engine.hasher.Hash(context.Background(), dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("compute dummy digest: %w", err)
	}
	engine.dummyDigest = dummy

	if b.redis != nil && cfg.RateLimit.Enabled {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:   cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:   cfg.RateLimit.MaxLoginAttempts,
			LoginWindow:        cfg.RateLimit.LoginWindow,
			MaxRegistrations:   cfg.RateLimit.MaxRegistrations,
			RegistrationWindow: cfg.RateLimit.RegistrationWindow,
			MaxResetRequests:   cfg.RateLimit.MaxResetRequests,
			ResetWindow:        cfg.RateLimit.ResetWindow,
			MaxRefreshes:       cfg.RateLimit.MaxRefreshes,
			RefreshWindow:      cfg.RateLimit.RefreshWindow,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.mail = newMailDispatcher(cfg.Mail, b.mailer, engine.logger,
		func() { engine.metricInc(MetricMailFailure) },
		func() { engine.metricInc(MetricMailDropped) },
	)

	b.built = true

	return engine, nil
}

func newPasswordAlgorithm(cfg PasswordConfig) (password.Algorithm, error) {
	if cfg.Algorithm == PasswordArgon2 {
		a, err := password.NewArgon2(cfg.Argon2)
		if err != nil {
			return nil, err
		}
		return a, nil
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	return bc, nil
}
