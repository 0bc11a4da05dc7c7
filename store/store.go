package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by point lookups, conditional updates and deletes
	// that matched no record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("record conflict")
)

// User is an account row.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Name                string
	Gender              string
	BirthYear           *int
	EmailVerified       bool
	EmailVerifiedAt     *time.Time
	FailedLoginAttempts int
	LockoutUntil        *time.Time
	LastFailedLoginAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RefreshToken is the server-side record of one live session. Token holds the
// SHA-256 digest of the signed refresh credential issued for it.
type RefreshToken struct {
	ID         string
	UserID     string
	Token      string
	FamilyID   string
	DeviceInfo string
	IPAddress  string
	IsRevoked  bool
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// OneTimeToken is the shared shape of password-reset and email-verification
// tokens.
type OneTimeToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// PasswordResetToken is a single-use credential authorising one password reset.
type PasswordResetToken OneTimeToken

// EmailVerificationToken is a single-use credential proving mailbox ownership.
type EmailVerificationToken OneTimeToken

// Repository is the record-level persistence contract. Implementations must
// return ErrNotFound and ErrConflict, possibly wrapped, for the conditions
// they describe.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	// GetUserByIDForUpdate reads the user and holds a row lock on it until the
	// surrounding transaction ends. Read-modify-write of user fields inside
	// WithinTx must use it.
	GetUserByIDForUpdate(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	// DeleteUser removes the user and, by cascade, every token record it owns.
	DeleteUser(ctx context.Context, id string) error

	CreateRefreshToken(ctx context.Context, t *RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	// DeleteRefreshToken returns ErrNotFound when no row was deleted.
	DeleteRefreshToken(ctx context.Context, id string) error
	// DeleteUserRefreshToken deletes id only if it belongs to userID.
	DeleteUserRefreshToken(ctx context.Context, id, userID string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) (int64, error)
	DeleteRefreshTokenFamily(ctx context.Context, userID, familyID string) (int64, error)

	CreatePasswordResetToken(ctx context.Context, t *PasswordResetToken) error
	GetPasswordResetToken(ctx context.Context, token string) (*PasswordResetToken, error)
	// MarkPasswordResetTokenUsed sets UsedAt only if it is still unset and
	// returns ErrNotFound otherwise.
	MarkPasswordResetTokenUsed(ctx context.Context, id string, at time.Time) error
	DeletePasswordResetToken(ctx context.Context, id string) error

	CreateEmailVerificationToken(ctx context.Context, t *EmailVerificationToken) error
	GetEmailVerificationToken(ctx context.Context, token string) (*EmailVerificationToken, error)
	MarkEmailVerificationTokenUsed(ctx context.Context, id string, at time.Time) error
	DeleteEmailVerificationToken(ctx context.Context, id string) error
	CountEmailVerificationTokensSince(ctx context.Context, userID string, since time.Time) (int64, error)
}

// Store is a Repository that can also run a group of operations atomically.
type Store interface {
	Repository
	// WithinTx runs fn against a transactional Repository. The transaction
	// commits when fn returns nil and rolls back when it returns an error or
	// panics. fn must use only the Repository it is given.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}
