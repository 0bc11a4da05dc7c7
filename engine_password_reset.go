package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/innerscope/authcore/internal"
	"github.com/innerscope/authcore/store"
)

// RequestPasswordReset emails a single-use reset link when email belongs to
// an account. It returns nil whether or not the account exists; only the
// optional throttle, which is keyed on the input and never on the account,
// can make it fail.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" {
		return validationError("email is required")
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.EnforceResetRequest(ctx, email, clientIPFromContext(ctx)); err != nil {
			if rlErr := e.rateLimited(ctx, "password_reset", err); rlErr != nil {
				return rlErr
			}
		}
	}

	e.metricInc(MetricPasswordResetRequest)

	user, err := e.store.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.logger.ErrorContext(ctx, "password reset lookup failed", "operation", "password_reset_request", "error", err)
		}
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", nil, nil)
		return nil
	}

	token, err := internal.NewPasswordResetToken()
	if err != nil {
		e.logger.ErrorContext(ctx, "password reset token generation failed", "operation", "password_reset_request", "error", err)
		return nil
	}
	now := e.now()
	record := &store.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     internal.HashToken(token),
		ExpiresAt: now.Add(e.config.PasswordReset.TokenTTL),
		CreatedAt: now,
	}
	if err := e.store.CreatePasswordResetToken(ctx, record); err != nil {
		e.logger.ErrorContext(ctx, "password reset token persist failed",
			"operation", "password_reset_request",
			"user_id", user.ID,
			"error", err,
		)
		return nil
	}

	e.sendMail(ctx, "password_reset_request", func(ctx context.Context, m Mailer) error {
		return m.SendPasswordResetEmail(ctx, user.Email, token)
	})
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.ID, nil, nil)
	return nil
}

// ConfirmPasswordReset sets a new password using a reset token.
//
// An expired token is deleted and reported as ErrTokenExpired; an unknown or
// already used token is ErrTokenInvalid. Consuming the token, replacing the
// digest, clearing the lockout state and deleting every refresh record of
// the user happen in one transaction, so a token confirms at most once.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return e.resetConfirmFailed(ctx, "", ErrTokenInvalid)
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	record, err := e.store.GetPasswordResetToken(ctx, internal.HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return e.resetConfirmFailed(ctx, "", ErrTokenInvalid)
	}
	if err != nil {
		return err
	}

	now := e.now()
	if !now.Before(record.ExpiresAt) {
		if err := e.store.DeletePasswordResetToken(ctx, record.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logger.WarnContext(ctx, "expired reset token cleanup failed", "operation", "password_reset_confirm", "error", err)
		}
		return e.resetConfirmFailed(ctx, record.UserID, ErrTokenExpired)
	}
	if record.UsedAt != nil {
		return e.resetConfirmFailed(ctx, record.UserID, ErrTokenInvalid)
	}

	digest, err := e.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	var revoked int64
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		if err := tx.MarkPasswordResetTokenUsed(ctx, record.ID, now); err != nil {
			return err
		}
		u, err := tx.GetUserByIDForUpdate(ctx, record.UserID)
		if err != nil {
			return err
		}
		u.PasswordHash = digest
		applyLockoutState(u, e.lockout.Reset())
		u.UpdatedAt = now
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		revoked, err = tx.DeleteRefreshTokensByUser(ctx, u.ID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return e.resetConfirmFailed(ctx, record.UserID, ErrTokenInvalid)
	}
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, record.UserID, nil, nil)
	e.logger.InfoContext(ctx, "password reset confirmed",
		"operation", "password_reset_confirm",
		"outcome", "success",
		"user_id", record.UserID,
		"revoked", revoked,
	)
	return nil
}

func (e *Engine) resetConfirmFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, false, userID, err, nil)
	return err
}
