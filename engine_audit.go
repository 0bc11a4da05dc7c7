package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

const (
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterFailure          = "register_failure"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventAccountLocked            = "account_locked"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogoutSession            = "logout_session"
	auditEventLogoutAll                = "logout_all"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventPasswordChange           = "password_change"
	auditEventProfileUpdate            = "profile_update"
	auditEventAccountDeleted           = "account_deleted"
	auditEventRateLimitTriggered       = "rate_limit_triggered"
)

// AuditErrorCode is the coarse error classification carried by audit events.
type AuditErrorCode string

const (
	auditErrValidation    AuditErrorCode = "validation"
	auditErrRateLimited   AuditErrorCode = "rate_limited"
	auditErrQuota         AuditErrorCode = "quota_exceeded"
	auditErrCredentials   AuditErrorCode = "invalid_credentials"
	auditErrIncorrectPass AuditErrorCode = "incorrect_password"
	auditErrInvalidToken  AuditErrorCode = "invalid_token"
	auditErrExpiredToken  AuditErrorCode = "expired_token"
	auditErrDuplicate     AuditErrorCode = "duplicate"
	auditErrNotFound      AuditErrorCode = "not_found"
	auditErrInternal      AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.metricInc(MetricRateLimitHit)
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", ErrRateLimited, func() map[string]string {
		return map[string]string{"scope": scope}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrVerificationQuota):
		return auditErrQuota
	case errors.Is(err, ErrIncorrectPassword):
		return auditErrIncorrectPass
	case errors.Is(err, ErrTokenExpired):
		return auditErrExpiredToken
	}

	switch KindOf(err) {
	case KindValidation:
		return auditErrValidation
	case KindAuthentication:
		return auditErrCredentials
	case KindToken:
		return auditErrInvalidToken
	case KindConflict:
		return auditErrDuplicate
	case KindNotFound:
		return auditErrNotFound
	default:
		return auditErrInternal
	}
}
