package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

const (
	resetTokenSize        = 32
	verificationTokenSize = 32
	refreshTokenIDSize    = 16
	familyIDSize          = 16
)

// RandomToken returns byteLength bytes from crypto/rand, hex encoded in lower case.
func RandomToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", errors.New("token length must be positive")
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func NewPasswordResetToken() (string, error) {
	return RandomToken(resetTokenSize)
}

func NewEmailVerificationToken() (string, error) {
	return RandomToken(verificationTokenSize)
}

func NewRefreshTokenID() (string, error) {
	return RandomToken(refreshTokenIDSize)
}

func NewFamilyID() (string, error) {
	return RandomToken(familyIDSize)
}

// HashToken returns the hex SHA-256 digest of a presented credential, the form
// in which refresh credentials are persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
