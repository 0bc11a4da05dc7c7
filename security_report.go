package authcore

import "time"

// SecurityReport summarises the security-relevant settings an Engine runs
// with. It never includes secrets.
type SecurityReport struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	PasswordAlgorithm    PasswordAlgorithm
	BcryptCost           int
	Argon2               PasswordConfigReport
	MinPasswordLength    int
	LockoutMaxAttempts   int
	LockoutInitial       time.Duration
	LockoutMax           time.Duration
	RevokeFamilyOnReuse  bool
	RateLimitingActive   bool
	AuditEnabled         bool
	MetricsEnabled       bool
	PasswordResetTTL     time.Duration
	EmailVerificationTTL time.Duration
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	r := SecurityReport{
		SigningAlgorithm:     "HS256",
		AccessTTL:            e.config.JWT.AccessTTL,
		RefreshTTL:           e.config.JWT.RefreshTTL,
		PasswordAlgorithm:    e.config.Password.Algorithm,
		MinPasswordLength:    e.config.Password.MinLength,
		LockoutMaxAttempts:   e.config.Lockout.MaxAttempts,
		LockoutInitial:       e.config.Lockout.InitialDuration,
		LockoutMax:           e.config.Lockout.MaxDuration,
		RevokeFamilyOnReuse:  e.config.Security.RevokeFamilyOnReuse,
		RateLimitingActive:   e.rateLimiter != nil,
		AuditEnabled:         e.audit != nil,
		MetricsEnabled:       e.metrics.Enabled(),
		PasswordResetTTL:     e.config.PasswordReset.TokenTTL,
		EmailVerificationTTL: e.config.EmailVerification.TokenTTL,
	}
	switch e.config.Password.Algorithm {
	case PasswordArgon2:
		a := e.config.Password.Argon2
		r.Argon2 = PasswordConfigReport{
			Memory:      a.Memory,
			Time:        a.Time,
			Parallelism: a.Parallelism,
			SaltLength:  a.SaltLength,
			KeyLength:   a.KeyLength,
		}
	default:
		r.BcryptCost = e.config.Password.BcryptCost
	}
	return r
}
