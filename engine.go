package authcore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/innerscope/authcore/csrf"
	"github.com/innerscope/authcore/internal"
	"github.com/innerscope/authcore/internal/limiters"
	"github.com/innerscope/authcore/internal/rate"
	"github.com/innerscope/authcore/jwt"
	"github.com/innerscope/authcore/store"
)

// Engine runs the session and credential flows. It is the only component
// that touches persistence; every multi-step mutation runs inside a single
// store transaction.
//
// Engine is safe for concurrent use.
type Engine struct {
	config      Config
	store       store.Store
	mail        *mailDispatcher
	hasher      PasswordHasher
	tokens      *jwt.Manager
	csrf        *csrf.Service
	lockout     limiters.LockoutPolicy
	rateLimiter *rate.Limiter
	audit       *auditDispatcher
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
	newUserID   func() string
	dummyDigest string
}

// Close delivers queued email, then flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.mail.Close()
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MailDropped reports emails discarded because the send queue was full.
func (e *Engine) MailDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.mail.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// CSRF exposes the double-submit token service used for sessions.
func (e *Engine) CSRF() *csrf.Service {
	return e.csrf
}

// Authenticate verifies an access credential and returns its payload.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (jwt.AccessPayload, error) {
	if e == nil || e.tokens == nil {
		return jwt.AccessPayload{}, ErrEngineNotReady
	}
	payload, err := e.tokens.VerifyAccess(accessToken)
	if err != nil {
		return jwt.AccessPayload{}, tokenError(err)
	}
	return payload, nil
}

// AccessTTL and RefreshTTL let transports align cookie lifetimes with credentials.
func (e *Engine) AccessTTL() time.Duration  { return e.tokens.AccessTTL() }
func (e *Engine) RefreshTTL() time.Duration { return e.tokens.RefreshTTL() }

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e *Engine) checkPasswordPolicy(pw string) error {
	if len(pw) < e.config.Password.MinLength {
		return validationError("password is too short")
	}
	if len(pw) > e.config.Password.MaxLength {
		return validationError("password is too long")
	}
	if !utf8.ValidString(pw) {
		return validationError("password must be valid UTF-8")
	}
	return nil
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

func lockoutState(u *store.User) limiters.LockoutState {
	return limiters.LockoutState{
		FailedAttempts: u.FailedLoginAttempts,
		LockoutUntil:   u.LockoutUntil,
		LastFailedAt:   u.LastFailedLoginAt,
	}
}

func applyLockoutState(u *store.User, s limiters.LockoutState) {
	u.FailedLoginAttempts = s.FailedAttempts
	u.LockoutUntil = s.LockoutUntil
	u.LastFailedLoginAt = s.LastFailedAt
}

// newRefreshRecord mints a refresh record and the matching signed credential
// pair. The record is not persisted.
func (e *Engine) newRefreshRecord(ctx context.Context, userID, familyID string) (*store.RefreshToken, TokenPair, error) {
	tokenID, err := internal.NewRefreshTokenID()
	if err != nil {
		return nil, TokenPair{}, err
	}
	if familyID == "" {
		if familyID, err = internal.NewFamilyID(); err != nil {
			return nil, TokenPair{}, err
		}
	}

	now := e.now()
	access, err := e.tokens.IssueAccess(userID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	refresh, err := e.tokens.IssueRefresh(userID, tokenID, familyID)
	if err != nil {
		return nil, TokenPair{}, err
	}

	record := &store.RefreshToken{
		ID:         tokenID,
		UserID:     userID,
		Token:      internal.HashToken(refresh),
		FamilyID:   familyID,
		DeviceInfo: truncate(userAgentFromContext(ctx), 255),
		IPAddress:  truncate(clientIPFromContext(ctx), 64),
		ExpiresAt:  now.Add(e.tokens.RefreshTTL()),
		CreatedAt:  now,
	}
	pair := TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(e.tokens.AccessTTL()),
		RefreshExpiresAt: record.ExpiresAt,
	}
	return record, pair, nil
}

func (e *Engine) newSession(user *store.User, pair TokenPair) (*Session, error) {
	csrfToken, err := e.csrf.Issue()
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)
	return &Session{User: newUserView(user), TokenPair: pair, CSRFToken: csrfToken}, nil
}

// sendMail queues delivery and returns at once; the outcome never reaches
// the caller.
func (e *Engine) sendMail(ctx context.Context, operation string, send func(context.Context, Mailer) error) {
	if e.mail == nil {
		e.logger.WarnContext(ctx, "mailer not configured", "operation", operation)
		return
	}
	e.mail.Enqueue(ctx, operation, send)
}

func (e *Engine) rateLimited(ctx context.Context, scope string, err error) error {
	if errors.Is(err, rate.ErrRateLimited) {
		e.emitRateLimit(ctx, scope)
		return ErrRateLimited
	}
	// Throttles fail open when Redis is unavailable.
	e.logger.WarnContext(ctx, "rate limiter unavailable", "operation", scope, "error", err)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
