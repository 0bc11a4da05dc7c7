package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/innerscope/authcore/store"
)

// dataset holds the records. It is not safe for concurrent use; Store
// serialises access.
type dataset struct {
	users         map[string]*store.User
	emails        map[string]string
	refresh       map[string]*store.RefreshToken
	resets        map[string]*store.PasswordResetToken
	verifications map[string]*store.EmailVerificationToken
}

var _ store.Repository = (*dataset)(nil)

func newDataset() *dataset {
	return &dataset{
		users:         map[string]*store.User{},
		emails:        map[string]string{},
		refresh:       map[string]*store.RefreshToken{},
		resets:        map[string]*store.PasswordResetToken{},
		verifications: map[string]*store.EmailVerificationToken{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.users {
		c.users[k] = copyUser(v)
	}
	for k, v := range d.emails {
		c.emails[k] = v
	}
	for k, v := range d.refresh {
		r := *v
		c.refresh[k] = &r
	}
	for k, v := range d.resets {
		r := *v
		r.UsedAt = copyTime(v.UsedAt)
		c.resets[k] = &r
	}
	for k, v := range d.verifications {
		r := *v
		r.UsedAt = copyTime(v.UsedAt)
		c.verifications[k] = &r
	}
	return c
}

func (d *dataset) CreateUser(_ context.Context, u *store.User) error {
	if _, ok := d.users[u.ID]; ok {
		return fmt.Errorf("user id %q: %w", u.ID, store.ErrConflict)
	}
	if _, ok := d.emails[u.Email]; ok {
		return fmt.Errorf("user email: %w", store.ErrConflict)
	}
	d.users[u.ID] = copyUser(u)
	d.emails[u.Email] = u.ID
	return nil
}

func (d *dataset) GetUserByID(_ context.Context, id string) (*store.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return copyUser(u), nil
}

// GetUserByIDForUpdate needs no row lock: WithinTx already holds the store
// mutex for the whole transaction.
func (d *dataset) GetUserByIDForUpdate(ctx context.Context, id string) (*store.User, error) {
	return d.GetUserByID(ctx, id)
}

func (d *dataset) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	id, ok := d.emails[email]
	if !ok {
		return nil, notFound("user", email)
	}
	return copyUser(d.users[id]), nil
}

func (d *dataset) UpdateUser(_ context.Context, u *store.User) error {
	current, ok := d.users[u.ID]
	if !ok {
		return notFound("user", u.ID)
	}
	if current.Email != u.Email {
		if _, taken := d.emails[u.Email]; taken {
			return fmt.Errorf("user email: %w", store.ErrConflict)
		}
		delete(d.emails, current.Email)
		d.emails[u.Email] = u.ID
	}
	d.users[u.ID] = copyUser(u)
	return nil
}

func (d *dataset) DeleteUser(_ context.Context, id string) error {
	u, ok := d.users[id]
	if !ok {
		return notFound("user", id)
	}
	delete(d.users, id)
	delete(d.emails, u.Email)
	for k, t := range d.refresh {
		if t.UserID == id {
			delete(d.refresh, k)
		}
	}
	for k, t := range d.resets {
		if t.UserID == id {
			delete(d.resets, k)
		}
	}
	for k, t := range d.verifications {
		if t.UserID == id {
			delete(d.verifications, k)
		}
	}
	return nil
}

func (d *dataset) CreateRefreshToken(_ context.Context, t *store.RefreshToken) error {
	if _, ok := d.users[t.UserID]; !ok {
		return notFound("user", t.UserID)
	}
	if _, ok := d.refresh[t.ID]; ok {
		return fmt.Errorf("refresh token %q: %w", t.ID, store.ErrConflict)
	}
	r := *t
	d.refresh[t.ID] = &r
	return nil
}

func (d *dataset) GetRefreshToken(_ context.Context, id string) (*store.RefreshToken, error) {
	t, ok := d.refresh[id]
	if !ok {
		return nil, notFound("refresh token", id)
	}
	r := *t
	return &r, nil
}

func (d *dataset) DeleteRefreshToken(_ context.Context, id string) error {
	if _, ok := d.refresh[id]; !ok {
		return notFound("refresh token", id)
	}
	delete(d.refresh, id)
	return nil
}

func (d *dataset) DeleteUserRefreshToken(_ context.Context, id, userID string) error {
	t, ok := d.refresh[id]
	if !ok || t.UserID != userID {
		return notFound("refresh token", id)
	}
	delete(d.refresh, id)
	return nil
}

func (d *dataset) DeleteRefreshTokensByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	for k, t := range d.refresh {
		if t.UserID == userID {
			delete(d.refresh, k)
			n++
		}
	}
	return n, nil
}

func (d *dataset) DeleteRefreshTokenFamily(_ context.Context, userID, familyID string) (int64, error) {
	var n int64
	for k, t := range d.refresh {
		if t.UserID == userID && t.FamilyID == familyID {
			delete(d.refresh, k)
			n++
		}
	}
	return n, nil
}

func (d *dataset) CreatePasswordResetToken(_ context.Context, t *store.PasswordResetToken) error {
	if _, ok := d.users[t.UserID]; !ok {
		return notFound("user", t.UserID)
	}
	for _, existing := range d.resets {
		if existing.ID == t.ID || existing.Token == t.Token {
			return fmt.Errorf("password reset token: %w", store.ErrConflict)
		}
	}
	r := *t
	d.resets[t.ID] = &r
	return nil
}

func (d *dataset) GetPasswordResetToken(_ context.Context, token string) (*store.PasswordResetToken, error) {
	for _, t := range d.resets {
		if t.Token == token {
			r := *t
			r.UsedAt = copyTime(t.UsedAt)
			return &r, nil
		}
	}
	return nil, notFound("password reset token", "")
}

func (d *dataset) MarkPasswordResetTokenUsed(_ context.Context, id string, at time.Time) error {
	t, ok := d.resets[id]
	if !ok || t.UsedAt != nil {
		return notFound("unused password reset token", id)
	}
	used := at
	t.UsedAt = &used
	return nil
}

func (d *dataset) DeletePasswordResetToken(_ context.Context, id string) error {
	if _, ok := d.resets[id]; !ok {
		return notFound("password reset token", id)
	}
	delete(d.resets, id)
	return nil
}

func (d *dataset) CreateEmailVerificationToken(_ context.Context, t *store.EmailVerificationToken) error {
	if _, ok := d.users[t.UserID]; !ok {
		return notFound("user", t.UserID)
	}
	for _, existing := range d.verifications {
		if existing.ID == t.ID || existing.Token == t.Token {
			return fmt.Errorf("email verification token: %w", store.ErrConflict)
		}
	}
	r := *t
	d.verifications[t.ID] = &r
	return nil
}

func (d *dataset) GetEmailVerificationToken(_ context.Context, token string) (*store.EmailVerificationToken, error) {
	for _, t := range d.verifications {
		if t.Token == token {
			r := *t
			r.UsedAt = copyTime(t.UsedAt)
			return &r, nil
		}
	}
	return nil, notFound("email verification token", "")
}

func (d *dataset) MarkEmailVerificationTokenUsed(_ context.Context, id string, at time.Time) error {
	t, ok := d.verifications[id]
	if !ok || t.UsedAt != nil {
		return notFound("unused email verification token", id)
	}
	used := at
	t.UsedAt = &used
	return nil
}

func (d *dataset) DeleteEmailVerificationToken(_ context.Context, id string) error {
	if _, ok := d.verifications[id]; !ok {
		return notFound("email verification token", id)
	}
	delete(d.verifications, id)
	return nil
}

func (d *dataset) CountEmailVerificationTokensSince(_ context.Context, userID string, since time.Time) (int64, error) {
	var n int64
	for _, t := range d.verifications {
		if t.UserID == userID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func copyUser(u *store.User) *store.User {
	c := *u
	c.EmailVerifiedAt = copyTime(u.EmailVerifiedAt)
	c.LockoutUntil = copyTime(u.LockoutUntil)
	c.LastFailedLoginAt = copyTime(u.LastFailedLoginAt)
	if u.BirthYear != nil {
		y := *u.BirthYear
		c.BirthYear = &y
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
