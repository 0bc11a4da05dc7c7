package authcore

import (
	"context"
	"errors"
	"strings"

	"github.com/innerscope/authcore/store"
)

const maxProfileFieldLength = 100

// GetUser returns the public view of an account.
func (e *Engine) GetUser(ctx context.Context, userID string) (*UserView, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	u, err := e.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	view := newUserView(u)
	return &view, nil
}

// UpdateProfile applies the non-nil fields of update. An empty update
// returns the current profile unchanged.
func (e *Engine) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*UserView, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	var name, gender string
	if update.Name != nil {
		name = strings.TrimSpace(*update.Name)
		if len(name) > maxProfileFieldLength {
			return nil, validationError("name is too long")
		}
	}
	if update.Gender != nil {
		gender = strings.TrimSpace(*update.Gender)
		if len(gender) > maxProfileFieldLength {
			return nil, validationError("gender is too long")
		}
	}
	if err := e.validateBirthYear(update.BirthYear); err != nil {
		return nil, err
	}

	var updated *store.User
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx store.Repository) error {
		u, err := tx.GetUserByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if update.Name == nil && update.Gender == nil && update.BirthYear == nil {
			updated = u
			return nil
		}
		if update.Name != nil {
			u.Name = name
		}
		if update.Gender != nil {
			u.Gender = gender
		}
		if update.BirthYear != nil {
			year := *update.BirthYear
			u.BirthYear = &year
		}
		u.UpdatedAt = e.now()
		if err := tx.UpdateUser(ctx, u); err != nil {
			return err
		}
		updated = u
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricProfileUpdated)
	e.emitAudit(ctx, auditEventProfileUpdate, true, userID, nil, nil)
	view := newUserView(updated)
	return &view, nil
}

// DeleteAccount removes the user and every token record it owns.
func (e *Engine) DeleteAccount(ctx context.Context, userID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	err := e.store.DeleteUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, userID, nil, nil)
	e.logger.InfoContext(ctx, "account deleted",
		"operation", "delete_account",
		"outcome", "success",
		"user_id", userID,
	)
	return nil
}

func (e *Engine) validateBirthYear(year *int) error {
	if year == nil {
		return nil
	}
	if *year < 1900 || *year > e.now().Year() {
		return validationError("birth year is out of range")
	}
	return nil
}
