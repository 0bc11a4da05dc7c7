// Package rate provides Redis-backed request throttles for the credential
// flows.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - al:   login per-identifier
//   - ali:  login per-IP
//   - arg:  registration per-IP
//   - arp:  password-reset request per-identifier
//   - arpi: password-reset request per-IP
//   - ar:   refresh per-user
//
// Login budgets are checked up front and only charged on failure; the other
// budgets are charged on every request.
package rate
