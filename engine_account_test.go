package authcore

import (
	"context"
	"testing"
)

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "profile@example.com")
	ctx := context.Background()

	name := "  Robin "
	year := 1985
	view, err := env.engine.UpdateProfile(ctx, s.User.ID, ProfileUpdate{Name: &name, BirthYear: &year})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if view.Name != "Robin" || view.BirthYear == nil || *view.BirthYear != 1985 {
		t.Fatalf("unexpected view: %+v", view)
	}

	year = 2000
	if *view.BirthYear != 1985 {
		t.Fatal("view must not alias caller input")
	}

	unchanged, err := env.engine.UpdateProfile(ctx, s.User.ID, ProfileUpdate{})
	if err != nil {
		t.Fatalf("empty update failed: %v", err)
	}
	if unchanged.Name != "Robin" {
		t.Fatalf("empty update changed profile: %+v", unchanged)
	}
}

func TestUpdateProfileRejects(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "reject@example.com")
	ctx := context.Background()

	future := env.clock.Now().Year() + 1
	_, err := env.engine.UpdateProfile(ctx, s.User.ID, ProfileUpdate{BirthYear: &future})
	assertErrorIs(t, err, ErrValidation)

	name := "x"
	_, err = env.engine.UpdateProfile(ctx, "missing", ProfileUpdate{Name: &name})
	assertErrorIs(t, err, ErrNotFound)
}

func TestDeleteAccountCascades(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "gone@example.com")
	ctx := context.Background()
	if err := env.engine.RequestPasswordReset(ctx, "gone@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	if err := env.engine.DeleteAccount(ctx, s.User.ID); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	stats := env.store.Stats()
	if stats.Users != 0 || stats.RefreshTokens != 0 || stats.PasswordResets != 0 || stats.EmailVerifications != 0 {
		t.Fatalf("expected no records left, got %+v", stats)
	}

	_, err := env.engine.GetUser(ctx, s.User.ID)
	assertErrorIs(t, err, ErrNotFound)
	assertErrorIs(t, env.engine.DeleteAccount(ctx, s.User.ID), ErrNotFound)

	_, err = env.engine.RefreshTokens(ctx, s.RefreshToken)
	assertErrorIs(t, err, ErrTokenInvalid)

	env.register(t, "gone@example.com")
}
