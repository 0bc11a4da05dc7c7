package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRefreshRotatesAndRejectsReuse(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "test@example.com")
	ctx := context.Background()

	pair, err := env.engine.RefreshTokens(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens failed: %v", err)
	}
	if pair.RefreshToken == s.RefreshToken {
		t.Fatal("expected a new refresh credential")
	}

	_, err = env.engine.RefreshTokens(ctx, s.RefreshToken)
	assertErrorIs(t, err, ErrTokenInvalid)

	if _, err := env.engine.RefreshTokens(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotated credential should still work: %v", err)
	}
	if env.store.Stats().RefreshTokens != 1 {
		t.Fatalf("rotation must keep exactly one record, got %d", env.store.Stats().RefreshTokens)
	}
}

func TestRefreshKeepsFamily(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "family@example.com")

	first, err := env.engine.tokens.VerifyRefresh(s.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	pair, err := env.engine.RefreshTokens(context.Background(), s.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens failed: %v", err)
	}
	second, err := env.engine.tokens.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	if second.FamilyID != first.FamilyID {
		t.Fatalf("family changed: %q -> %q", first.FamilyID, second.FamilyID)
	}
	if second.TokenID == first.TokenID {
		t.Fatal("token id must change on rotation")
	}
}

func TestRefreshRaceHasSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "race@example.com")

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		invalid int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.engine.RefreshTokens(context.Background(), s.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case KindOf(err) == KindToken:
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if success != 1 || invalid != callers-1 {
		t.Fatalf("expected 1 winner and %d token errors, got %d/%d", callers-1, success, invalid)
	}
	if env.store.Stats().RefreshTokens != 1 {
		t.Fatalf("expected one live record, got %d", env.store.Stats().RefreshTokens)
	}
}

func TestRefreshRejectsOwnerMismatch(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice@example.com")
	bob := env.register(t, "bob@example.com")

	p, err := env.engine.tokens.VerifyRefresh(alice.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	forged, err := env.engine.tokens.IssueRefresh(bob.User.ID, p.TokenID, p.FamilyID)
	if err != nil {
		t.Fatalf("IssueRefresh failed: %v", err)
	}

	_, err = env.engine.RefreshTokens(context.Background(), forged)
	assertErrorIs(t, err, ErrTokenInvalid)

	if _, err := env.engine.RefreshTokens(context.Background(), alice.RefreshToken); err != nil {
		t.Fatalf("owner's credential must be unaffected: %v", err)
	}
}

func TestRefreshRejectsDigestMismatch(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "digest@example.com")

	p, err := env.engine.tokens.VerifyRefresh(s.RefreshToken)
	if err != nil {
		t.Fatalf("VerifyRefresh failed: %v", err)
	}
	other, err := env.engine.tokens.IssueRefresh(p.UserID, p.TokenID, "another-family")
	if err != nil {
		t.Fatalf("IssueRefresh failed: %v", err)
	}

	_, err = env.engine.RefreshTokens(context.Background(), other)
	assertErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshRecordExpiry(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "expiry@example.com")

	// The signature is checked against wall time; only the record expires.
	env.clock.Advance(env.engine.RefreshTTL() + time.Second)

	_, err := env.engine.RefreshTokens(context.Background(), s.RefreshToken)
	assertErrorIs(t, err, ErrTokenExpired)
	if env.store.Stats().RefreshTokens != 0 {
		t.Fatal("expired record should be deleted")
	}
}

func TestRefreshRejectsWrongCredentials(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "wrong@example.com")
	ctx := context.Background()

	for name, cred := range map[string]string{
		"empty":   "",
		"garbage": "not.a.jwt",
		"access":  s.AccessToken,
	} {
		_, err := env.engine.RefreshTokens(ctx, cred)
		if KindOf(err) != KindToken {
			t.Fatalf("%s: expected token error, got %v", name, err)
		}
	}
}

func TestRefreshReuseRevokesFamilyWhenEnabled(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.Security.RevokeFamilyOnReuse = true })
	s := env.register(t, "reuse@example.com")
	other, err := env.engine.Login(context.Background(), "reuse@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	ctx := context.Background()

	pair, err := env.engine.RefreshTokens(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens failed: %v", err)
	}

	_, err = env.engine.RefreshTokens(ctx, s.RefreshToken)
	assertErrorIs(t, err, ErrTokenInvalid)

	_, err = env.engine.RefreshTokens(ctx, pair.RefreshToken)
	assertErrorIs(t, err, ErrTokenInvalid)

	if _, err := env.engine.RefreshTokens(ctx, other.RefreshToken); err != nil {
		t.Fatalf("sessions of other families must survive: %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected one reuse detection, got %d", got)
	}
}

func TestRefreshReuseLeavesFamilyByDefault(t *testing.T) {
	env := newTestEnv(t)
	s := env.register(t, "noreuse@example.com")
	ctx := context.Background()

	pair, err := env.engine.RefreshTokens(ctx, s.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens failed: %v", err)
	}
	_, _ = env.engine.RefreshTokens(ctx, s.RefreshToken)

	if _, err := env.engine.RefreshTokens(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("latest credential should survive reuse of an old one: %v", err)
	}
}
