package security

import "crypto/subtle"

// Equal reports whether a and b hold the same bytes. The comparison time
// depends only on the lengths of the inputs, never on their contents.
// Inputs of different length are unequal.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// EqualString is Equal for strings.
func EqualString(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
