package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinBcryptCost is the lowest accepted bcrypt work factor.
	MinBcryptCost = 10
	// MaxBcryptCost is the highest accepted bcrypt work factor.
	MaxBcryptCost = 14
	// DefaultBcryptCost is used when no cost is configured.
	DefaultBcryptCost = 12
	// MaxBcryptPasswordBytes is the input limit of the bcrypt algorithm.
	MaxBcryptPasswordBytes = 72
)

// ErrPasswordTooLong is returned when a password exceeds the algorithm's input limit.
var ErrPasswordTooLong = errors.New("password exceeds maximum length")

// Bcrypt hashes passwords with a bounded bcrypt work factor.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt hasher. A zero cost selects DefaultBcryptCost;
// any other value outside [MinBcryptCost, MaxBcryptCost] is rejected.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < MinBcryptCost || cost > MaxBcryptCost {
		return nil, fmt.Errorf("bcrypt cost must be within [%d, %d]", MinBcryptCost, MaxBcryptCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Cost reports the configured work factor.
func (b *Bcrypt) Cost() int { return b.cost }

func (b *Bcrypt) Hash(password string) (string, error) {
	if len(password) > MaxBcryptPasswordBytes {
		return "", ErrPasswordTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. A mismatch is not an error;
// a malformed digest is.
func (b *Bcrypt) Verify(password string, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// NeedsUpgrade reports whether digest was produced with a lower cost than
// the current configuration.
func (b *Bcrypt) NeedsUpgrade(digest string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return false, err
	}
	return cost < b.cost, nil
}
