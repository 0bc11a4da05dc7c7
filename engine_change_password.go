package authcore

import (
	"context"
	"errors"

	"github.com/innerscope/authcore/store"
)

// ChangePassword replaces the password of an authenticated user after
// checking the current one, and revokes every session of that user,
// including the caller's.
func (e *Engine) ChangePassword(ctx context.Context, userID, current, next string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if current == "" {
		return validationError("current password is required")
	}
	if err := e.checkPasswordPolicy(next); err != nil {
		return err
	}

	user, err := e.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	ok, err := e.hasher.Verify(ctx, current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChange, false, user.ID, ErrIncorrectPassword, nil)
		return ErrIncorrectPassword
	}

	digest, err := e.hasher.Hash(ctx, next)
	if err != nil {
		return err
	}

	now := e.now()
	var revoked int64
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		u, err := tx.GetUserByIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		u.PasswordHash = digest
		u.UpdatedAt = now
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		revoked, err = tx.DeleteRefreshTokensByUser(ctx, u.ID)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChange, true, user.ID, nil, nil)
	e.logger.InfoContext(ctx, "password changed",
		"operation", "change_password",
		"outcome", "success",
		"user_id", user.ID,
		"revoked", revoked,
	)
	return nil
}
