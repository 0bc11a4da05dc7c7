package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Lower bounds accepted both for configuration and for stored digests.
const (
	minArgon2MemoryKB    uint32 = 8 * 1024
	minArgon2Time        uint32 = 1
	minArgon2Parallelism uint8  = 1
	minArgon2SaltLength  uint32 = 16
	minArgon2KeyLength   uint32 = 16
)

const phcPrefix = "$argon2id$"

// ErrMalformedDigest is returned for digests that are not Argon2id PHC
// strings this package can verify.
var ErrMalformedDigest = errors.New("malformed argon2id digest")

var phcEncoding = base64.RawStdEncoding

// Argon2Config holds the Argon2id cost parameters.
type Argon2Config struct {
	// Memory is in KiB.
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters used when Argon2 is selected
// without explicit tuning.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < minArgon2MemoryKB:
		return fmt.Errorf("argon2 memory must be >= %d KiB", minArgon2MemoryKB)
	case c.Time < minArgon2Time:
		return fmt.Errorf("argon2 time must be >= %d", minArgon2Time)
	case c.Parallelism < minArgon2Parallelism:
		return fmt.Errorf("argon2 parallelism must be >= %d", minArgon2Parallelism)
	case c.SaltLength < minArgon2SaltLength:
		return fmt.Errorf("argon2 salt length must be >= %d", minArgon2SaltLength)
	case c.KeyLength < minArgon2KeyLength:
		return fmt.Errorf("argon2 key length must be >= %d", minArgon2KeyLength)
	}
	return nil
}

// Argon2 hashes passwords with Argon2id and encodes digests as PHC strings:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
type Argon2 struct {
	config Argon2Config
}

// NewArgon2 rejects parameters below the package minimums.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash derives a digest from the raw password bytes. No Unicode
// normalization is applied.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2 salt: %w", err)
	}
	d := phcDigest{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        salt,
	}
	d.key = d.derive(password, a.config.KeyLength)
	return d.String(), nil
}

// Verify reports whether password matches digest. A mismatch is not an
// error; a malformed digest is.
func (a *Argon2) Verify(password string, digest string) (bool, error) {
	d, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	computed := d.derive(password, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// NeedsUpgrade reports whether digest was produced with weaker parameters
// than the current configuration, or with a different key length.
func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	d, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	weaker := d.memory < a.config.Memory ||
		d.time < a.config.Time ||
		d.parallelism < a.config.Parallelism
	return weaker || uint32(len(d.key)) != a.config.KeyLength, nil
}

type phcDigest struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (d phcDigest) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.parallelism, keyLen)
}

func (d phcDigest) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version,
		d.memory, d.time, d.parallelism,
		phcEncoding.EncodeToString(d.salt),
		phcEncoding.EncodeToString(d.key),
	)
}

func parsePHC(encoded string) (phcDigest, error) {
	rest, ok := strings.CutPrefix(encoded, phcPrefix)
	if !ok {
		return phcDigest{}, fmt.Errorf("%w: not argon2id", ErrMalformedDigest)
	}
	// v=19 $ params $ salt $ key
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return phcDigest{}, fmt.Errorf("%w: expected 4 sections, got %d", ErrMalformedDigest, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || fields[0] != fmt.Sprintf("v=%d", version) {
		return phcDigest{}, fmt.Errorf("%w: bad version", ErrMalformedDigest)
	}
	if version != argon2.Version {
		return phcDigest{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedDigest, version)
	}

	var d phcDigest
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &d.memory, &d.time, &d.parallelism); err != nil ||
		fields[1] != fmt.Sprintf("m=%d,t=%d,p=%d", d.memory, d.time, d.parallelism) {
		return phcDigest{}, fmt.Errorf("%w: bad parameters", ErrMalformedDigest)
	}
	if d.memory < minArgon2MemoryKB || d.time < minArgon2Time || d.parallelism < minArgon2Parallelism {
		return phcDigest{}, fmt.Errorf("%w: parameters below minimum", ErrMalformedDigest)
	}

	var err error
	if d.salt, err = decodePHCField(fields[2]); err != nil || uint32(len(d.salt)) < minArgon2SaltLength {
		return phcDigest{}, fmt.Errorf("%w: bad salt", ErrMalformedDigest)
	}
	if d.key, err = decodePHCField(fields[3]); err != nil || len(d.key) == 0 {
		return phcDigest{}, fmt.Errorf("%w: bad key", ErrMalformedDigest)
	}
	return d, nil
}

// decodePHCField accepts both unpadded (PHC) and padded base64, so digests
// written with either encoding keep verifying.
func decodePHCField(s string) ([]byte, error) {
	return phcEncoding.DecodeString(strings.TrimRight(s, "="))
}
