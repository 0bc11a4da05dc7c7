package limiters

import (
	"errors"
	"time"
)

// LockoutPolicy decides when repeated failed logins lock an account and for
// how long. It is pure: callers load the state, apply the policy and persist
// the result.
type LockoutPolicy struct {
	// MaxAttempts is the number of failures that starts a lockout episode.
	MaxAttempts int
	// InitialDuration is the length of the first episode.
	InitialDuration time.Duration
	// MaxDuration caps the exponential growth of later episodes.
	MaxDuration time.Duration
	// ResetWindow restarts the failure count when the previous failure is older
	// than the window and no lock is active. Zero disables decay.
	ResetWindow time.Duration
}

// LockoutState is the persisted per-account lockout bookkeeping.
type LockoutState struct {
	FailedAttempts int
	LockoutUntil   *time.Time
	LastFailedAt   *time.Time
}

// DefaultLockoutPolicy locks after 5 failures for 15 minutes, doubling up to
// 24 hours, and forgets failures after a quiet day.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:     5,
		InitialDuration: 15 * time.Minute,
		MaxDuration:     24 * time.Hour,
		ResetWindow:     24 * time.Hour,
	}
}

// Validate rejects policies that can never lock or that shrink over time.
func (p LockoutPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.New("lockout max attempts must be >= 1")
	}
	if p.InitialDuration <= 0 {
		return errors.New("lockout initial duration must be > 0")
	}
	if p.MaxDuration < p.InitialDuration {
		return errors.New("lockout max duration must be >= initial duration")
	}
	if p.ResetWindow < 0 {
		return errors.New("lockout reset window must be >= 0")
	}
	return nil
}

// IsLocked reports whether the state carries an unexpired lock at now, and
// how long it has left.
func (p LockoutPolicy) IsLocked(s LockoutState, now time.Time) (bool, time.Duration) {
	if s.LockoutUntil == nil || !now.Before(*s.LockoutUntil) {
		return false, 0
	}
	return true, s.LockoutUntil.Sub(now)
}

// DurationFor returns the length of lockout episode n (1-based):
// InitialDuration * 2^(n-1), capped at MaxDuration.
func (p LockoutPolicy) DurationFor(episode int) time.Duration {
	if episode < 1 {
		return 0
	}
	d := p.InitialDuration
	for i := 1; i < episode; i++ {
		if d >= p.MaxDuration/2 {
			return p.MaxDuration
		}
		d *= 2
	}
	if d > p.MaxDuration {
		return p.MaxDuration
	}
	return d
}

// RecordFailure returns the state after one more failed login at now. A new
// episode starts every time the count reaches a multiple of MaxAttempts.
func (p LockoutPolicy) RecordFailure(s LockoutState, now time.Time) LockoutState {
	attempts := s.FailedAttempts
	if attempts < 0 {
		attempts = 0
	}
	if locked, _ := p.IsLocked(s, now); !locked && p.ResetWindow > 0 &&
		s.LastFailedAt != nil && now.Sub(*s.LastFailedAt) > p.ResetWindow {
		attempts = 0
	}
	attempts++

	last := now
	next := LockoutState{
		FailedAttempts: attempts,
		LockoutUntil:   s.LockoutUntil,
		LastFailedAt:   &last,
	}
	if attempts%p.MaxAttempts == 0 {
		until := now.Add(p.DurationFor(attempts / p.MaxAttempts))
		next.LockoutUntil = &until
	}
	return next
}

// Reset is the state after a successful login.
func (p LockoutPolicy) Reset() LockoutState {
	return LockoutState{}
}

// IsClear reports whether s already equals the reset state.
func (s LockoutState) IsClear() bool {
	return s.FailedAttempts == 0 && s.LockoutUntil == nil && s.LastFailedAt == nil
}
