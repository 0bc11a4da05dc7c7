// Package internal contains helpers private to authcore, chiefly secure random
// token generation.
//
// # Sub-packages
//
//   - limiters: the progressive account lockout policy
//   - rate: Redis-backed fixed-window throttles
//   - security: constant-time comparison
//   - bootstrap: configuration loading and server wiring
package internal
