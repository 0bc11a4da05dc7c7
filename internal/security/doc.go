// Package security holds timing-safe primitives shared by the credential flows.
package security
