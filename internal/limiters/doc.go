// Package limiters holds the progressive account lockout policy.
//
// [LockoutPolicy] is a pure function of the persisted [LockoutState] and the
// current time. Episode n lasts InitialDuration * 2^(n-1), capped at
// MaxDuration, and a successful login resets the state.
//
// This package performs no I/O. Request throttling lives in internal/rate.
package limiters
