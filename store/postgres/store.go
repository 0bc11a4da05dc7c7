package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/innerscope/authcore/store"
)

// Store is a store.Store over a gorm connection.
type Store struct {
	repo
}

var _ store.Store = (*Store)(nil)

// New wraps db. The caller owns db and closes it.
func New(db *gorm.DB) *Store {
	return &Store{repo: repo{db: db}}
}

// WithinTx implements store.Store with a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &repo{db: tx})
	})
}

// repo implements store.Repository against either the pool or a transaction.
type repo struct {
	db *gorm.DB
}

func (r *repo) CreateUser(ctx context.Context, u *store.User) error {
	rec := toUserModel(u)
	return translate("create user", r.db.WithContext(ctx).Create(&rec).Error)
}

func (r *repo) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, translate("get user", err)
	}
	return rec.toStore(), nil
}

// GetUserByIDForUpdate issues SELECT ... FOR UPDATE. Outside a transaction
// the lock is released as soon as the statement completes.
func (r *repo) GetUserByIDForUpdate(ctx context.Context, id string) (*store.User, error) {
	var rec userModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&rec).Error
	if err != nil {
		return nil, translate("lock user", err)
	}
	return rec.toStore(), nil
}

func (r *repo) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		return nil, translate("get user by email", err)
	}
	return rec.toStore(), nil
}

func (r *repo) UpdateUser(ctx context.Context, u *store.User) error {
	res := r.db.WithContext(ctx).
		Model(&userModel{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"email":                 u.Email,
			"password_hash":         u.PasswordHash,
			"name":                  u.Name,
			"gender":                u.Gender,
			"birth_year":            u.BirthYear,
			"email_verified":        u.EmailVerified,
			"email_verified_at":     u.EmailVerifiedAt,
			"failed_login_attempts": u.FailedLoginAttempts,
			"lockout_until":         u.LockoutUntil,
			"last_failed_login_at":  u.LastFailedLoginAt,
			"updated_at":            u.UpdatedAt,
		})
	if res.Error != nil {
		return translate("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("update user", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *repo) DeleteUser(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&userModel{})
	return affectedOne("delete user", res)
}

func (r *repo) CreateRefreshToken(ctx context.Context, t *store.RefreshToken) error {
	rec := toRefreshModel(t)
	return translate("create refresh token", r.db.WithContext(ctx).Create(&rec).Error)
}

func (r *repo) GetRefreshToken(ctx context.Context, id string) (*store.RefreshToken, error) {
	var rec refreshTokenModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, translate("get refresh token", err)
	}
	return rec.toStore(), nil
}

func (r *repo) DeleteRefreshToken(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&refreshTokenModel{})
	return affectedOne("delete refresh token", res)
}

func (r *repo) DeleteUserRefreshToken(ctx context.Context, id, userID string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&refreshTokenModel{})
	return affectedOne("delete refresh token", res)
}

func (r *repo) DeleteRefreshTokensByUser(ctx context.Context, userID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&refreshTokenModel{})
	if res.Error != nil {
		return 0, translate("delete user refresh tokens", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repo) DeleteRefreshTokenFamily(ctx context.Context, userID, familyID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND family_id = ?", userID, familyID).
		Delete(&refreshTokenModel{})
	if res.Error != nil {
		return 0, translate("delete refresh token family", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repo) CreatePasswordResetToken(ctx context.Context, t *store.PasswordResetToken) error {
	rec := passwordResetTokenModel{toOneTimeModel(store.OneTimeToken(*t))}
	return translate("create password reset token", r.db.WithContext(ctx).Create(&rec).Error)
}

func (r *repo) GetPasswordResetToken(ctx context.Context, token string) (*store.PasswordResetToken, error) {
	var rec passwordResetTokenModel
	if err := r.db.WithContext(ctx).Where("token = ?", token).Take(&rec).Error; err != nil {
		return nil, translate("get password reset token", err)
	}
	out := store.PasswordResetToken(rec.toStore())
	return &out, nil
}

func (r *repo) MarkPasswordResetTokenUsed(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&passwordResetTokenModel{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	return affectedOne("mark password reset token used", res)
}

func (r *repo) DeletePasswordResetToken(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&passwordResetTokenModel{})
	return affectedOne("delete password reset token", res)
}

func (r *repo) CreateEmailVerificationToken(ctx context.Context, t *store.EmailVerificationToken) error {
	rec := emailVerificationTokenModel{toOneTimeModel(store.OneTimeToken(*t))}
	return translate("create email verification token", r.db.WithContext(ctx).Create(&rec).Error)
}

func (r *repo) GetEmailVerificationToken(ctx context.Context, token string) (*store.EmailVerificationToken, error) {
	var rec emailVerificationTokenModel
	if err := r.db.WithContext(ctx).Where("token = ?", token).Take(&rec).Error; err != nil {
		return nil, translate("get email verification token", err)
	}
	out := store.EmailVerificationToken(rec.toStore())
	return &out, nil
}

func (r *repo) MarkEmailVerificationTokenUsed(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&emailVerificationTokenModel{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", at)
	return affectedOne("mark email verification token used", res)
}

func (r *repo) DeleteEmailVerificationToken(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&emailVerificationTokenModel{})
	return affectedOne("delete email verification token", res)
}

func (r *repo) CountEmailVerificationTokensSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&emailVerificationTokenModel{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&n).Error
	if err != nil {
		return 0, translate("count email verification tokens", err)
	}
	return n, nil
}

func affectedOne(what string, res *gorm.DB) error {
	if res.Error != nil {
		return translate(what, res.Error)
	}
	if res.RowsAffected == 0 {
		return translate(what, gorm.ErrRecordNotFound)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
