// Package httpapi serves the authcore flows over HTTP with chi.
//
// Routes live under /auth/v1. Register and login return the access
// credential and a CSRF token in the body; the refresh credential travels
// only in a signed HttpOnly cookie scoped to /auth/v1, and the CSRF token is
// also set in a readable cookie. Every cookie-authenticated state change
// (refresh, logout, and the account routes) requires the X-CSRF-Token header
// to match that cookie.
//
// Engine errors are mapped by kind: validation 400, credentials and tokens
// 401, conflict 409, not found 404, throttling 429. Anything unclassified is
// logged and answered with a generic 500.
package httpapi
