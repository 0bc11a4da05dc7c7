package authcore

import (
	"context"
	"testing"
)

func TestLogoutRevokesOwnSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "out@example.com")
	ctx := context.Background()

	if err := env.engine.Logout(ctx, s.User.ID, s.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	_, err := env.engine.RefreshTokens(ctx, s.RefreshToken)
	assertErrorIs(t, err, ErrTokenInvalid)

	if err := env.engine.Logout(ctx, s.User.ID, s.RefreshToken); err != nil {
		t.Fatalf("second Logout should be a no-op, got %v", err)
	}
}

func TestLogoutIgnoresForeignCredential(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice@example.com")
	bob := env.register(t, "bob@example.com")
	ctx := context.Background()

	if err := env.engine.Logout(ctx, bob.User.ID, alice.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.RefreshTokens(ctx, alice.RefreshToken); err != nil {
		t.Fatalf("another user must not be able to end alice's session: %v", err)
	}
}

func TestLogoutIgnoresInvalidCredential(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "invalid@example.com")

	if err := env.engine.Logout(context.Background(), s.User.ID, "garbage"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if env.store.Stats().RefreshTokens != 1 {
		t.Fatal("no record should be deleted")
	}
}

func TestLogoutAllCountsSessions(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "all@example.com")
	other := env.register(t, "other@example.com")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.engine.Login(ctx, "all@example.com", testPassword); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
	}

	n, err := env.engine.LogoutAll(ctx, s.User.ID)
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked sessions, got %d", n)
	}
	if env.store.Stats().RefreshTokens != 1 {
		t.Fatalf("only the other user's session should remain, got %d", env.store.Stats().RefreshTokens)
	}
	if _, err := env.engine.RefreshTokens(ctx, other.RefreshToken); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}

	n, err = env.engine.LogoutAll(ctx, s.User.ID)
	if err != nil || n != 0 {
		t.Fatalf("expected 0 on second call, got %d, %v", n, err)
	}
}
