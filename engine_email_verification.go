package authcore

import (
	"context"
	"errors"

	"github.com/innerscope/authcore/internal"
	"github.com/innerscope/authcore/store"
)

// VerifyEmail consumes a verification token and marks its owner verified.
// Expiry and single-use rules match ConfirmPasswordReset.
func (e *Engine) VerifyEmail(ctx context.Context, token string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if token == "" {
		return e.verifyFailed(ctx, "", ErrTokenInvalid)
	}

	record, err := e.store.GetEmailVerificationToken(ctx, internal.HashToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return e.verifyFailed(ctx, "", ErrTokenInvalid)
	}
	if err != nil {
		return err
	}

	now := e.now()
	if !now.Before(record.ExpiresAt) {
		if err := e.store.DeleteEmailVerificationToken(ctx, record.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logger.WarnContext(ctx, "expired verification token cleanup failed", "operation", "verify_email", "error", err)
		}
		return e.verifyFailed(ctx, record.UserID, ErrTokenExpired)
	}
	if record.UsedAt != nil {
		return e.verifyFailed(ctx, record.UserID, ErrTokenInvalid)
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		if err := tx.MarkEmailVerificationTokenUsed(ctx, record.ID, now); err != nil {
			return err
		}
		u, err := tx.GetUserByIDForUpdate(ctx, record.UserID)
		if err != nil {
			return err
		}
		if u.EmailVerified {
			return nil
		}
		verifiedAt := now
		u.EmailVerified = true
		u.EmailVerifiedAt = &verifiedAt
		u.UpdatedAt = now
		return tx.UpdateUser(ctx, u)
	})
	if errors.Is(err, store.ErrNotFound) {
		return e.verifyFailed(ctx, record.UserID, ErrTokenInvalid)
	}
	if err != nil {
		return err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, record.UserID, nil, nil)
	return nil
}

// ResendEmailVerification issues a fresh verification token and emails it.
// It is a no-op for verified accounts and fails with ErrVerificationQuota
// once MaxPerHour tokens were issued within the configured window.
func (e *Engine) ResendEmailVerification(ctx context.Context, userID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}

	token, record, err := e.newEmailVerificationToken(user.ID)
	if err != nil {
		return err
	}
	cfg := e.config.EmailVerification
	verified := false
	// The user row lock serialises concurrent resends so the quota count and
	// the insert see each other.
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		locked, err := tx.GetUserByIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		if locked.EmailVerified {
			verified = true
			return nil
		}
		if cfg.MaxPerHour > 0 {
			issued, err := tx.CountEmailVerificationTokensSince(ctx, user.ID, e.now().Add(-cfg.Window))
			if err != nil {
				return err
			}
			if issued >= int64(cfg.MaxPerHour) {
				return ErrVerificationQuota
			}
		}
		return tx.CreateEmailVerificationToken(ctx, record)
	})
	switch {
	case errors.Is(err, ErrVerificationQuota):
		e.emitAudit(ctx, auditEventEmailVerificationRequest, false, user.ID, ErrVerificationQuota, nil)
		return ErrVerificationQuota
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case err != nil:
		return err
	case verified:
		return nil
	}

	e.sendMail(ctx, "resend_email_verification", func(ctx context.Context, m Mailer) error {
		return m.SendEmailVerificationEmail(ctx, user.Email, token)
	})
	e.metricInc(MetricEmailVerificationRequest)
	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, user.ID, nil, nil)
	return nil
}

func (e *Engine) verifyFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, false, userID, err, nil)
	return err
}
