package authcore

import (
	"context"
	"errors"

	"github.com/innerscope/authcore/store"
)

// Logout ends the session identified by credential, but only when it belongs
// to userID. An invalid, expired, foreign, or already revoked credential is
// ignored and Logout returns nil.
func (e *Engine) Logout(ctx context.Context, userID, credential string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return validationError("user id is required")
	}

	payload, err := e.tokens.VerifyRefresh(credential)
	if err != nil || payload.UserID != userID {
		return nil
	}

	err = e.store.DeleteUserRefreshToken(ctx, payload.TokenID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, nil, func() map[string]string {
		return map[string]string{"session_id": payload.TokenID}
	})
	return nil
}

// LogoutAll deletes every refresh record of userID and returns how many
// there were.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int64, error) {
	if e == nil || e.store == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, validationError("user id is required")
	}

	n, err := e.store.DeleteRefreshTokensByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, nil, nil)
	e.logger.InfoContext(ctx, "all sessions revoked",
		"operation", "logout_all",
		"outcome", "success",
		"user_id", userID,
		"revoked", n,
	)
	return n, nil
}
