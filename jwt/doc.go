// Package jwt issues and verifies the signed access and refresh credentials
// used for sessions. Each credential carries a type tag and is signed with a
// secret dedicated to its kind.
package jwt
