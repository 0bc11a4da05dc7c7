package authcore

import (
	"errors"
	"time"

	"github.com/innerscope/authcore/internal/limiters"
	"github.com/innerscope/authcore/password"
)

// Config is the complete tuning surface of an Engine. Obtain a baseline from
// DefaultConfig, override fields, and pass it to Builder.WithConfig.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT               JWTConfig
	Password          PasswordConfig
	Lockout           LockoutConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Security          SecurityConfig
	RateLimit         RateLimitConfig
	Mail              MailConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the two HMAC signing secrets and credential lifetimes.
// AccessSecret and RefreshSecret must each be at least 32 bytes and differ.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordAlgorithm selects the hashing scheme for new digests.
type PasswordAlgorithm string

const (
	PasswordBcrypt PasswordAlgorithm = "bcrypt"
	PasswordArgon2 PasswordAlgorithm = "argon2"
)

// PasswordConfig controls hashing cost and the length policy for new passwords.
type PasswordConfig struct {
	Algorithm  PasswordAlgorithm
	BcryptCost int
	Argon2     password.Argon2Config
	// MinLength and MaxLength are measured in bytes.
	MinLength int
	MaxLength int
	// HashConcurrency bounds simultaneous hash operations. Zero means GOMAXPROCS.
	HashConcurrency int
	// UpgradeOnLogin rehashes a digest produced with weaker parameters after a
	// successful login.
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig is the progressive lockout policy applied to failed logins.
type LockoutConfig struct {
	MaxAttempts     int
	InitialDuration time.Duration
	MaxDuration     time.Duration
	ResetWindow     time.Duration
}

/*
====================================
ONE-TIME TOKEN CONFIG
====================================
*/

// PasswordResetConfig controls reset-token lifetime.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

// EmailVerificationConfig controls verification-token lifetime and how many
// tokens a user may be issued within Window.
type EmailVerificationConfig struct {
	TokenTTL   time.Duration
	MaxPerHour int
	Window     time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds optional hardening switches.
type SecurityConfig struct {
	// RevokeFamilyOnReuse deletes every session descended from the same login
	// when an already-rotated refresh credential is presented again.
	RevokeFamilyOnReuse bool
}

// RateLimitConfig configures the optional Redis throttles. It has no effect
// unless the Builder is given a Redis client.
type RateLimitConfig struct {
	Enabled            bool
	EnableIPThrottle   bool
	MaxLoginAttempts   int
	LoginWindow        time.Duration
	MaxRegistrations   int
	RegistrationWindow time.Duration
	MaxResetRequests   int
	ResetWindow        time.Duration
	MaxRefreshes       int
	RefreshWindow      time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// MailConfig controls background email delivery. Messages are queued and
// sent by a single worker; a full queue drops the message.
type MailConfig struct {
	QueueSize int
	// SendTimeout bounds one delivery attempt.
	SendTimeout time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production baseline. Signing secrets are left
// empty and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	lockout := limiters.DefaultLockoutPolicy()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
		},
		Password: PasswordConfig{
			Algorithm:      PasswordBcrypt,
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			MinLength:      8,
			MaxLength:      password.MaxBcryptPasswordBytes,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts:     lockout.MaxAttempts,
			InitialDuration: lockout.InitialDuration,
			MaxDuration:     lockout.MaxDuration,
			ResetWindow:     lockout.ResetWindow,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		EmailVerification: EmailVerificationConfig{
			TokenTTL:   24 * time.Hour,
			MaxPerHour: 5,
			Window:     time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:            true,
			EnableIPThrottle:   true,
			MaxLoginAttempts:   20,
			LoginWindow:        15 * time.Minute,
			MaxRegistrations:   10,
			RegistrationWindow: time.Hour,
			MaxResetRequests:   5,
			ResetWindow:        time.Hour,
			MaxRefreshes:       60,
			RefreshWindow:      time.Minute,
		},
		Mail: MailConfig{
			QueueSize:   256,
			SendTimeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c LockoutConfig) policy() limiters.LockoutPolicy {
	return limiters.LockoutPolicy{
		MaxAttempts:     c.MaxAttempts,
		InitialDuration: c.InitialDuration,
		MaxDuration:     c.MaxDuration,
		ResetWindow:     c.ResetWindow,
	}
}

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	if len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT secrets must be at least 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}

	// Password
	switch c.Password.Algorithm {
	case PasswordBcrypt:
		if c.Password.BcryptCost != 0 &&
			(c.Password.BcryptCost < password.MinBcryptCost || c.Password.BcryptCost > password.MaxBcryptCost) {
			return errors.New("Password BcryptCost is out of range")
		}
		if c.Password.MaxLength > password.MaxBcryptPasswordBytes {
			return errors.New("Password MaxLength exceeds the bcrypt input limit")
		}
	case PasswordArgon2:
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2'")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.HashConcurrency < 0 {
		return errors.New("Password HashConcurrency must be >= 0")
	}

	// Lockout
	if err := c.Lockout.policy().Validate(); err != nil {
		return err
	}

	// One-time tokens
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}
	if c.EmailVerification.TokenTTL <= 0 {
		return errors.New("EmailVerification TokenTTL must be > 0")
	}
	if c.EmailVerification.MaxPerHour < 1 {
		return errors.New("EmailVerification MaxPerHour must be >= 1")
	}
	if c.EmailVerification.Window <= 0 {
		return errors.New("EmailVerification Window must be > 0")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.LoginWindow <= 0 {
			return errors.New("RateLimit LoginWindow must be > 0")
		}
		if c.RateLimit.MaxRegistrations > 0 && c.RateLimit.RegistrationWindow <= 0 {
			return errors.New("RateLimit RegistrationWindow must be > 0")
		}
		if c.RateLimit.MaxResetRequests > 0 && c.RateLimit.ResetWindow <= 0 {
			return errors.New("RateLimit ResetWindow must be > 0")
		}
		if c.RateLimit.MaxRefreshes > 0 && c.RateLimit.RefreshWindow <= 0 {
			return errors.New("RateLimit RefreshWindow must be > 0")
		}
	}

	// Mail
	if c.Mail.QueueSize <= 0 {
		return errors.New("Mail QueueSize must be > 0")
	}
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail SendTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
