// Package middleware adapts authcore credential checks to net/http.
//
// [RequireAccess] reads a bearer access credential, verifies it through the
// Engine, and stores the caller's user ID in the request context.
// [RequireCSRF] enforces the double-submit check on state-changing requests.
//
// Neither middleware parses tokens itself; decisions are delegated to the
// Engine and the csrf package.
package middleware
