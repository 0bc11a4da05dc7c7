package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/innerscope/authcore/store"
)

// Store is a process-local store.Store. Transactions run against a private
// copy of the data that replaces the live copy on commit, and are serialised
// with every other operation.
type Store struct {
	mu   sync.Mutex
	data *dataset
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{data: newDataset()}
}

// WithinTx implements store.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.data.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) locked(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	return s.locked(func(d *dataset) error { return d.CreateUser(ctx, u) })
}

func (s *Store) GetUserByID(ctx context.Context, id string) (u *store.User, err error) {
	err = s.locked(func(d *dataset) error { u, err = d.GetUserByID(ctx, id); return err })
	return u, err
}

func (s *Store) GetUserByIDForUpdate(ctx context.Context, id string) (u *store.User, err error) {
	err = s.locked(func(d *dataset) error { u, err = d.GetUserByIDForUpdate(ctx, id); return err })
	return u, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (u *store.User, err error) {
	err = s.locked(func(d *dataset) error { u, err = d.GetUserByEmail(ctx, email); return err })
	return u, err
}

func (s *Store) UpdateUser(ctx context.Context, u *store.User) error {
	return s.locked(func(d *dataset) error { return d.UpdateUser(ctx, u) })
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.locked(func(d *dataset) error { return d.DeleteUser(ctx, id) })
}

func (s *Store) CreateRefreshToken(ctx context.Context, t *store.RefreshToken) error {
	return s.locked(func(d *dataset) error { return d.CreateRefreshToken(ctx, t) })
}

func (s *Store) GetRefreshToken(ctx context.Context, id string) (t *store.RefreshToken, err error) {
	err = s.locked(func(d *dataset) error { t, err = d.GetRefreshToken(ctx, id); return err })
	return t, err
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) error {
	return s.locked(func(d *dataset) error { return d.DeleteRefreshToken(ctx, id) })
}

func (s *Store) DeleteUserRefreshToken(ctx context.Context, id, userID string) error {
	return s.locked(func(d *dataset) error { return d.DeleteUserRefreshToken(ctx, id, userID) })
}

func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID string) (n int64, err error) {
	err = s.locked(func(d *dataset) error { n, err = d.DeleteRefreshTokensByUser(ctx, userID); return err })
	return n, err
}

func (s *Store) DeleteRefreshTokenFamily(ctx context.Context, userID, familyID string) (n int64, err error) {
	err = s.locked(func(d *dataset) error { n, err = d.DeleteRefreshTokenFamily(ctx, userID, familyID); return err })
	return n, err
}

func (s *Store) CreatePasswordResetToken(ctx context.Context, t *store.PasswordResetToken) error {
	return s.locked(func(d *dataset) error { return d.CreatePasswordResetToken(ctx, t) })
}

func (s *Store) GetPasswordResetToken(ctx context.Context, token string) (t *store.PasswordResetToken, err error) {
	err = s.locked(func(d *dataset) error { t, err = d.GetPasswordResetToken(ctx, token); return err })
	return t, err
}

func (s *Store) MarkPasswordResetTokenUsed(ctx context.Context, id string, at time.Time) error {
	return s.locked(func(d *dataset) error { return d.MarkPasswordResetTokenUsed(ctx, id, at) })
}

func (s *Store) DeletePasswordResetToken(ctx context.Context, id string) error {
	return s.locked(func(d *dataset) error { return d.DeletePasswordResetToken(ctx, id) })
}

func (s *Store) CreateEmailVerificationToken(ctx context.Context, t *store.EmailVerificationToken) error {
	return s.locked(func(d *dataset) error { return d.CreateEmailVerificationToken(ctx, t) })
}

func (s *Store) GetEmailVerificationToken(ctx context.Context, token string) (t *store.EmailVerificationToken, err error) {
	err = s.locked(func(d *dataset) error { t, err = d.GetEmailVerificationToken(ctx, token); return err })
	return t, err
}

func (s *Store) MarkEmailVerificationTokenUsed(ctx context.Context, id string, at time.Time) error {
	return s.locked(func(d *dataset) error { return d.MarkEmailVerificationTokenUsed(ctx, id, at) })
}

func (s *Store) DeleteEmailVerificationToken(ctx context.Context, id string) error {
	return s.locked(func(d *dataset) error { return d.DeleteEmailVerificationToken(ctx, id) })
}

func (s *Store) CountEmailVerificationTokensSince(ctx context.Context, userID string, since time.Time) (n int64, err error) {
	err = s.locked(func(d *dataset) error { n, err = d.CountEmailVerificationTokensSince(ctx, userID, since); return err })
	return n, err
}

// Stats reports record counts, for tests and diagnostics.
type Stats struct {
	Users              int
	RefreshTokens      int
	PasswordResets     int
	EmailVerifications int
}

// Stats returns the current record counts.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Users:              len(s.data.users),
		RefreshTokens:      len(s.data.refresh),
		PasswordResets:     len(s.data.resets),
		EmailVerifications: len(s.data.verifications),
	}
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, store.ErrNotFound)
}
