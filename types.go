package authcore

import (
	"context"
	"time"

	"github.com/innerscope/authcore/store"
)

// Mailer delivers the out-of-band links of the credential flows. Engine
// treats delivery as best effort: failures are logged and never change the
// outcome of the calling operation.
type Mailer interface {
	SendPasswordResetEmail(ctx context.Context, to, token string) error
	SendEmailVerificationEmail(ctx context.Context, to, token string) error
}

// PasswordHasher hashes and verifies passwords without blocking callers
// beyond their context. password.Pool is the standard implementation.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, digest string) (bool, error)
}

type passwordUpgrader interface {
	NeedsUpgrade(digest string) (bool, error)
}

// UserView is the outward representation of an account. It never carries
// the password digest or lockout bookkeeping.
type UserView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	Gender        string    `json:"gender,omitempty"`
	BirthYear     *int      `json:"birthYear,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func newUserView(u *store.User) UserView {
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Gender:        u.Gender,
		BirthYear:     u.BirthYear,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// TokenPair is a freshly issued access and refresh credential.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Session is the result of a successful registration or login.
type Session struct {
	User UserView
	TokenPair
	CSRFToken string
}

// RegisterInput carries the fields accepted at sign-up.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Gender    string
	BirthYear *int
}

// ProfileUpdate lists the profile fields to change. Nil fields are left as is.
type ProfileUpdate struct {
	Name      *string
	Gender    *string
	BirthYear *int
}
