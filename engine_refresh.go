package authcore

import (
	"context"
	"errors"

	"github.com/innerscope/authcore/internal"
	"github.com/innerscope/authcore/internal/security"
	"github.com/innerscope/authcore/jwt"
	"github.com/innerscope/authcore/store"
)

// RefreshTokens rotates a refresh credential.
//
// The presented credential must verify, its record must still exist, belong
// to the same user, and match the stored digest. The old record is deleted
// and its replacement, which keeps the family id, is created in one
// transaction. Of two concurrent calls with the same credential at most one
// succeeds; the other observes the deleted record and gets ErrTokenInvalid.
func (e *Engine) RefreshTokens(ctx context.Context, credential string) (*TokenPair, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	payload, err := e.tokens.VerifyRefresh(credential)
	if err != nil {
		return nil, e.refreshFailed(ctx, "", tokenError(err), "signature")
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.EnforceRefresh(ctx, payload.UserID); err != nil {
			if rlErr := e.rateLimited(ctx, "refresh", err); rlErr != nil {
				return nil, rlErr
			}
		}
	}

	record, err := e.store.GetRefreshToken(ctx, payload.TokenID)
	if errors.Is(err, store.ErrNotFound) {
		e.handleRefreshReuse(ctx, payload)
		return nil, e.refreshFailed(ctx, payload.UserID, ErrTokenInvalid, "not_found")
	}
	if err != nil {
		return nil, err
	}

	if record.UserID != payload.UserID {
		return nil, e.refreshFailed(ctx, payload.UserID, ErrTokenInvalid, "owner_mismatch")
	}
	if record.IsRevoked || !security.EqualString(record.Token, internal.HashToken(credential)) {
		return nil, e.refreshFailed(ctx, payload.UserID, ErrTokenInvalid, "revoked")
	}
	if !e.now().Before(record.ExpiresAt) {
		if err := e.store.DeleteRefreshToken(ctx, record.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			e.logger.WarnContext(ctx, "expired refresh record cleanup failed", "operation", "refresh", "error", err)
		}
		return nil, e.refreshFailed(ctx, payload.UserID, ErrTokenExpired, "record_expired")
	}

	next, pair, err := e.newRefreshRecord(ctx, record.UserID, record.FamilyID)
	if err != nil {
		return nil, err
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		if err := tx.DeleteRefreshToken(ctx, record.ID); err != nil {
			return err
		}
		return tx.CreateRefreshToken(ctx, next)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, e.refreshFailed(ctx, payload.UserID, ErrTokenInvalid, "lost_race")
	}
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, record.UserID, nil, func() map[string]string {
		return map[string]string{"session_id": next.ID, "family_id": next.FamilyID}
	})
	return &pair, nil
}

// handleRefreshReuse runs when a correctly signed credential has no record,
// which means it was already rotated, logged out, or revoked. With
// RevokeFamilyOnReuse every live session of the same family is deleted.
func (e *Engine) handleRefreshReuse(ctx context.Context, payload jwt.RefreshPayload) {
	if !e.config.Security.RevokeFamilyOnReuse || payload.FamilyID == "" {
		return
	}

	n, err := e.store.DeleteRefreshTokenFamily(ctx, payload.UserID, payload.FamilyID)
	if err != nil {
		e.logger.ErrorContext(ctx, "refresh family revocation failed",
			"operation", "refresh",
			"outcome", "failure",
			"user_id", payload.UserID,
			"error", err,
		)
		return
	}
	if n == 0 {
		return
	}

	e.metricInc(MetricRefreshReuseDetected)
	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, payload.UserID, ErrTokenInvalid, func() map[string]string {
		return map[string]string{"family_id": payload.FamilyID}
	})
	e.logger.WarnContext(ctx, "refresh credential reuse detected",
		"operation", "refresh",
		"outcome", "family_revoked",
		"user_id", payload.UserID,
		"revoked", n,
	)
}

func (e *Engine) refreshFailed(ctx context.Context, userID string, err error, reason string) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}
