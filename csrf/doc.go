// Package csrf implements the double-submit cookie defence used on
// state-changing authenticated routes.
//
// The server sets [CookieName] on login and registration, and the client
// copies the value into [HeaderName] on every mutating request.
package csrf
