package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/innerscope/authcore/store"
)

// Login authenticates email and password and opens a new session.
//
// Every failure returns ErrAuthentication, whether the account is unknown,
// locked, or the password is wrong, and each path performs exactly one
// password verification. An unknown email is verified against a dummy
// digest. A locked account still has its password checked, but the result is
// discarded and the attempt does not count toward the next lockout episode.
// Passwords longer than Password.MaxLength are verified like any other and
// then rejected as a wrong password.
func (e *Engine) Login(ctx context.Context, email, password string) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}()

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, validationError("email and password are required")
	}
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			if rlErr := e.rateLimited(ctx, "login", err); rlErr != nil {
				return nil, rlErr
			}
		}
	}

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if user == nil {
		if _, err := e.hasher.Verify(ctx, password, e.dummyDigest); err != nil {
			return nil, err
		}
		return nil, e.loginFailed(ctx, email, "", "unknown_account")
	}

	now := e.now()
	if locked, _ := e.lockout.IsLocked(lockoutState(user), now); locked {
		if _, err := e.hasher.Verify(ctx, password, user.PasswordHash); err != nil {
			return nil, err
		}
		e.metricInc(MetricLoginLocked)
		return nil, e.loginFailed(ctx, email, user.ID, "account_locked")
	}

	ok, err := e.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	// bcrypt only reads the first 72 bytes, so a longer input could match a
	// stored prefix. No accepted password is longer than MaxLength.
	if len(password) > e.config.Password.MaxLength {
		ok = false
	}
	if !ok {
		if err := e.recordLoginFailure(ctx, user.ID, now); err != nil {
			return nil, err
		}
		return nil, e.loginFailed(ctx, email, user.ID, "invalid_password")
	}

	dirty := false
	if !lockoutState(user).IsClear() {
		applyLockoutState(user, e.lockout.Reset())
		dirty = true
	}
	if e.config.Password.UpgradeOnLogin {
		if rehashed, ok := e.upgradeDigest(ctx, user.PasswordHash, password); ok {
			user.PasswordHash = rehashed
			dirty = true
			e.metricInc(MetricPasswordRehashed)
		}
	}
	if dirty {
		user.UpdatedAt = now
	}

	record, pair, err := e.newRefreshRecord(ctx, user.ID, "")
	if err != nil {
		return nil, err
	}
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		if dirty {
			if err := tx.UpdateUser(ctx, user); err != nil {
				return err
			}
		}
		return tx.CreateRefreshToken(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, email); err != nil {
			e.logger.WarnContext(ctx, "login throttle reset failed", "operation", "login", "error", err)
		}
	}

	session, err := e.newSession(user, pair)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, func() map[string]string {
		return map[string]string{"session_id": record.ID}
	})
	return session, nil
}

// recordLoginFailure re-reads the user under a row lock so concurrent
// failures serialise and none is lost, then persists the next lockout state.
func (e *Engine) recordLoginFailure(ctx context.Context, userID string, now time.Time) error {
	var lockedNow bool
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		u, err := tx.GetUserByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		before := lockoutState(u)
		wasLocked, _ := e.lockout.IsLocked(before, now)
		next := e.lockout.RecordFailure(before, now)
		isLocked, _ := e.lockout.IsLocked(next, now)
		lockedNow = isLocked && !wasLocked

		applyLockoutState(u, next)
		u.UpdatedAt = now
		return tx.UpdateUser(ctx, u)
	})
	if errors.Is(err, store.ErrNotFound) {
		// Deleted concurrently; nothing left to lock.
		return nil
	}
	if err != nil {
		return err
	}
	if lockedNow {
		e.metricInc(MetricLockoutStarted)
		e.emitAudit(ctx, auditEventAccountLocked, false, userID, nil, nil)
		e.logger.WarnContext(ctx, "account locked after repeated failures",
			"operation", "login",
			"outcome", "locked",
			"user_id", userID,
		)
	}
	return nil
}

func (e *Engine) loginFailed(ctx context.Context, email, userID, reason string) error {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, email, clientIPFromContext(ctx)); err != nil {
			e.logger.WarnContext(ctx, "login throttle increment failed", "operation", "login", "error", err)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, ErrAuthentication, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrAuthentication
}

// upgradeDigest rehashes password when the stored digest was produced with
// weaker parameters than the current ones. Failures keep the old digest.
func (e *Engine) upgradeDigest(ctx context.Context, digest, password string) (string, bool) {
	up, ok := e.hasher.(passwordUpgrader)
	if !ok {
		return "", false
	}
	needs, err := up.NeedsUpgrade(digest)
	if err != nil || !needs {
		return "", false
	}
	rehashed, err := e.hasher.Hash(ctx, password)
	if err != nil {
		e.logger.WarnContext(ctx, "password rehash failed", "operation", "login", "error", err)
		return "", false
	}
	return rehashed, true
}
