package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/innerscope/authcore"
	kafkaaudit "github.com/innerscope/authcore/audit/kafka"
	"github.com/innerscope/authcore/httpapi"
	"github.com/innerscope/authcore/mail"
	"github.com/innerscope/authcore/metrics/export/prometheus"
	"github.com/innerscope/authcore/store/postgres"
)

// Runtime owns the long-lived resources of the server process.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	engine     *authcore.Engine
	httpServer *http.Server
	closers    []io.Closer
}

// NewRuntime loads configuration from configPath and the environment,
// connects every dependency and assembles the HTTP server. On error every
// resource opened so far is released.
func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	logger.Info("bootstrapping authcore", "service_id", cfg.ServiceID, "http_port", cfg.HTTPPort)

	r := &Runtime{cfg: cfg, logger: logger}
	fail := func(err error) (*Runtime, error) {
		r.closeAll()
		return nil, err
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	r.closers = append(r.closers, sqlDB)

	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fail(err)
	}

	builder := authcore.New().
		WithConfig(cfg.EngineConfig()).
		WithStore(postgres.New(db)).
		WithLogger(logger)

	if cfg.RedisURL != "" {
		client, err := connectRedis(cfg.RedisURL)
		if err != nil {
			return fail(err)
		}
		r.closers = append(r.closers, client)
		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("connect redis: %w", err))
		}
		builder = builder.WithRedis(client)
	} else {
		logger.Warn("redis not configured; request throttling disabled")
	}

	if cfg.AuditEnabled {
		sink, err := r.auditSink()
		if err != nil {
			return fail(err)
		}
		builder = builder.WithAuditSink(sink)
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return fail(err)
	}
	builder = builder.WithMailer(mailer)

	engine, err := builder.Build()
	if err != nil {
		return fail(fmt.Errorf("build engine: %w", err))
	}
	r.engine = engine

	opts := httpapi.Options{
		CookieSecret:  []byte(cfg.CookieSecret),
		SecureCookies: cfg.SecureCookies,
		TrustProxy:    cfg.TrustProxy,
		AdminKey:      cfg.AdminKey,
		Logger:        logger,
	}
	if cfg.MetricsEnabled {
		opts.Metrics = prometheus.New(engine).Handler()
	}
	handler, err := httpapi.NewHandler(engine, opts)
	if err != nil {
		engine.Close()
		return fail(fmt.Errorf("init http handler: %w", err))
	}

	r.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	report := engine.SecurityReport()
	logger.Info("engine ready",
		"password_algorithm", report.PasswordAlgorithm,
		"access_ttl", report.AccessTTL.String(),
		"refresh_ttl", report.RefreshTTL.String(),
		"lockout_max_attempts", report.LockoutMaxAttempts,
		"revoke_family_on_reuse", report.RevokeFamilyOnReuse,
		"rate_limiting", report.RateLimitingActive,
		"audit", report.AuditEnabled,
		"metrics", report.MetricsEnabled,
	)
	return r, nil
}

func (r *Runtime) auditSink() (authcore.AuditSink, error) {
	if len(r.cfg.KafkaBrokers) == 0 {
		r.logger.Info("audit events written to stdout")
		return authcore.NewJSONWriterSink(os.Stdout), nil
	}
	sink, err := kafkaaudit.NewSink(kafkaaudit.Config{
		Brokers: r.cfg.KafkaBrokers,
		Topic:   r.cfg.KafkaTopic,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init kafka audit sink: %w", err)
	}
	r.closers = append(r.closers, sink)
	r.logger.Info("audit events published to kafka", "topic", r.cfg.KafkaTopic)
	return sink, nil
}

// Run serves HTTP until ctx is cancelled or SIGINT/SIGTERM arrives, then
// drains in-flight requests and releases every resource.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown incomplete", "error", err)
	}
	r.engine.Close()
	r.closeAll()
	r.logger.Info("shutdown complete")
	return runErr
}

// closeAll releases resources in reverse order of acquisition, so the audit
// sink is flushed before the database goes away.
func (r *Runtime) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			r.logger.Warn("close resource", "error", err)
		}
	}
	r.closers = nil
}

func connectRedis(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func newMailer(cfg Config, logger *slog.Logger) (authcore.Mailer, error) {
	links := mail.Links{ResetURL: cfg.ResetURL, VerifyURL: cfg.VerifyURL}
	if cfg.SMTPHost == "" {
		logger.Warn("smtp not configured; emails are logged instead of sent")
		return mail.NewLogMailer(links, logger), nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Links:    links,
		Timeout:  cfg.SMTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init smtp mailer: %w", err)
	}
	return m, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
