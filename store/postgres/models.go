package postgres

import (
	"time"

	"github.com/innerscope/authcore/store"
)

type userModel struct {
	ID                  string     `gorm:"column:id;primaryKey"`
	Email               string     `gorm:"column:email"`
	PasswordHash        string     `gorm:"column:password_hash"`
	Name                string     `gorm:"column:name"`
	Gender              string     `gorm:"column:gender"`
	BirthYear           *int       `gorm:"column:birth_year"`
	EmailVerified       bool       `gorm:"column:email_verified"`
	EmailVerifiedAt     *time.Time `gorm:"column:email_verified_at"`
	FailedLoginAttempts int        `gorm:"column:failed_login_attempts"`
	LockoutUntil        *time.Time `gorm:"column:lockout_until"`
	LastFailedLoginAt   *time.Time `gorm:"column:last_failed_login_at"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type refreshTokenModel struct {
	ID         string    `gorm:"column:id;primaryKey"`
	UserID     string    `gorm:"column:user_id"`
	Token      string    `gorm:"column:token"`
	FamilyID   string    `gorm:"column:family_id"`
	DeviceInfo string    `gorm:"column:device_info"`
	IPAddress  string    `gorm:"column:ip_address"`
	IsRevoked  bool      `gorm:"column:is_revoked"`
	ExpiresAt  time.Time `gorm:"column:expires_at"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (refreshTokenModel) TableName() string { return "refresh_tokens" }

type oneTimeTokenModel struct {
	ID        string     `gorm:"column:id;primaryKey"`
	UserID    string     `gorm:"column:user_id"`
	Token     string     `gorm:"column:token"`
	ExpiresAt time.Time  `gorm:"column:expires_at"`
	UsedAt    *time.Time `gorm:"column:used_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

type passwordResetTokenModel struct{ oneTimeTokenModel }

func (passwordResetTokenModel) TableName() string { return "password_reset_tokens" }

type emailVerificationTokenModel struct{ oneTimeTokenModel }

func (emailVerificationTokenModel) TableName() string { return "email_verification_tokens" }

func toUserModel(u *store.User) userModel {
	return userModel{
		ID:                  u.ID,
		Email:               u.Email,
		PasswordHash:        u.PasswordHash,
		Name:                u.Name,
		Gender:              u.Gender,
		BirthYear:           u.BirthYear,
		EmailVerified:       u.EmailVerified,
		EmailVerifiedAt:     u.EmailVerifiedAt,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockoutUntil:        u.LockoutUntil,
		LastFailedLoginAt:   u.LastFailedLoginAt,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func (m userModel) toStore() *store.User {
	return &store.User{
		ID:                  m.ID,
		Email:               m.Email,
		PasswordHash:        m.PasswordHash,
		Name:                m.Name,
		Gender:              m.Gender,
		BirthYear:           m.BirthYear,
		EmailVerified:       m.EmailVerified,
		EmailVerifiedAt:     m.EmailVerifiedAt,
		FailedLoginAttempts: m.FailedLoginAttempts,
		LockoutUntil:        m.LockoutUntil,
		LastFailedLoginAt:   m.LastFailedLoginAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toRefreshModel(t *store.RefreshToken) refreshTokenModel {
	return refreshTokenModel{
		ID:         t.ID,
		UserID:     t.UserID,
		Token:      t.Token,
		FamilyID:   t.FamilyID,
		DeviceInfo: t.DeviceInfo,
		IPAddress:  t.IPAddress,
		IsRevoked:  t.IsRevoked,
		ExpiresAt:  t.ExpiresAt,
		CreatedAt:  t.CreatedAt,
	}
}

func (m refreshTokenModel) toStore() *store.RefreshToken {
	return &store.RefreshToken{
		ID:         m.ID,
		UserID:     m.UserID,
		Token:      m.Token,
		FamilyID:   m.FamilyID,
		DeviceInfo: m.DeviceInfo,
		IPAddress:  m.IPAddress,
		IsRevoked:  m.IsRevoked,
		ExpiresAt:  m.ExpiresAt,
		CreatedAt:  m.CreatedAt,
	}
}

func toOneTimeModel(t store.OneTimeToken) oneTimeTokenModel {
	return oneTimeTokenModel{
		ID:        t.ID,
		UserID:    t.UserID,
		Token:     t.Token,
		ExpiresAt: t.ExpiresAt,
		UsedAt:    t.UsedAt,
		CreatedAt: t.CreatedAt,
	}
}

func (m oneTimeTokenModel) toStore() store.OneTimeToken {
	return store.OneTimeToken{
		ID:        m.ID,
		UserID:    m.UserID,
		Token:     m.Token,
		ExpiresAt: m.ExpiresAt,
		UsedAt:    m.UsedAt,
		CreatedAt: m.CreatedAt,
	}
}
