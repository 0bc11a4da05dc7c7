package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/innerscope/authcore/internal"
	"github.com/innerscope/authcore/store"
)

// Register creates an account and its first session.
//
// When the email is already taken Register still hashes a placeholder
// password before returning ErrConflict, so the two outcomes cost the same.
// The user, the first refresh record and an email-verification token are
// written in one transaction. The verification email is sent afterwards and
// its failure does not fail the registration.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, err
	}
	if err := e.checkPasswordPolicy(in.Password); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, err
	}
	if err := e.validateBirthYear(in.BirthYear); err != nil {
		return nil, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.EnforceRegistration(ctx, clientIPFromContext(ctx)); err != nil {
			if rlErr := e.rateLimited(ctx, "register", err); rlErr != nil {
				return nil, rlErr
			}
		}
	}

	existing, err := e.store.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		_, _ = e.hasher.Hash(ctx, dummyPassword)
		e.metricInc(MetricRegisterConflict)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrConflict, nil)
		return nil, ErrConflict
	}

	digest, err := e.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	now := e.now()
	user := &store.User{
		ID:           e.newUserID(),
		Email:        email,
		PasswordHash: digest,
		Name:         strings.TrimSpace(in.Name),
		Gender:       strings.TrimSpace(in.Gender),
		BirthYear:    in.BirthYear,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	record, pair, err := e.newRefreshRecord(ctx, user.ID, "")
	if err != nil {
		return nil, err
	}
	verifyToken, verifyRecord, err := e.newEmailVerificationToken(user.ID)
	if err != nil {
		return nil, err
	}

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}
		if err := tx.CreateRefreshToken(ctx, record); err != nil {
			return err
		}
		return tx.CreateEmailVerificationToken(ctx, verifyRecord)
	})
	if err != nil {
		// Lost a race with a concurrent registration of the same address.
		if errors.Is(err, store.ErrConflict) {
			e.metricInc(MetricRegisterConflict)
			return nil, ErrConflict
		}
		return nil, err
	}

	e.sendMail(ctx, "register", func(ctx context.Context, m Mailer) error {
		return m.SendEmailVerificationEmail(ctx, user.Email, verifyToken)
	})

	session, err := e.newSession(user, pair)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, user.ID, nil, nil)
	e.logger.InfoContext(ctx, "account registered",
		"operation", "register",
		"outcome", "success",
		"user_id", user.ID,
	)
	return session, nil
}

// newEmailVerificationToken returns the plaintext token for the email and the
// record to persist, which only carries its digest.
func (e *Engine) newEmailVerificationToken(userID string) (string, *store.EmailVerificationToken, error) {
	token, err := internal.NewEmailVerificationToken()
	if err != nil {
		return "", nil, err
	}
	now := e.now()
	return token, &store.EmailVerificationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     internal.HashToken(token),
		ExpiresAt: now.Add(e.config.EmailVerification.TokenTTL),
		CreatedAt: now,
	}, nil
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	if len(email) > 254 {
		return validationError("email is too long")
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return validationError("email is invalid")
	}
	return nil
}
