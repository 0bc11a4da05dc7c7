package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the smallest accepted HMAC secret, in bytes.
const MinSecretLength = 32

var (
	// ErrInvalid is returned for malformed, forged, or wrong-type credentials.
	ErrInvalid = errors.New("token invalid")
	// ErrExpired is returned for well-formed credentials past their expiry.
	ErrExpired = errors.New("token expired")
)

// Config defines the signing secrets, lifetimes, and optional registered-claim
// checks of a Manager.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

// Manager signs and verifies access and refresh credentials. Access and
// refresh credentials are signed with different secrets so that one can never
// be accepted where the other is expected.
type Manager struct {
	config Config
	now    func() time.Time
}

type claims struct {
	Type     Kind   `json:"type"`
	UserID   string `json:"uid"`
	TokenID  string `json:"tid,omitempty"`
	FamilyID string `json:"fid,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a Manager.
//
// NewManager returns an error when either secret is shorter than
// MinSecretLength, when both secrets are equal, or when a lifetime is not positive.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must not be shorter than access TTL")
	}
	if len(cfg.AccessSecret) < MinSecretLength || len(cfg.RefreshSecret) < MinSecretLength {
		return nil, fmt.Errorf("signing secrets must be at least %d bytes", MinSecretLength)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	return &Manager{config: cfg, now: time.Now}, nil
}

// AccessTTL reports the configured access-credential lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL reports the configured refresh-credential lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// IssueAccess signs a short-lived access credential for userID.
func (m *Manager) IssueAccess(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	return m.sign(m.config.AccessSecret, m.config.AccessTTL, claims{Type: KindAccess, UserID: userID})
}

// IssueRefresh signs a refresh credential bound to the persisted record tokenID
// and its rotation family.
func (m *Manager) IssueRefresh(userID, tokenID, familyID string) (string, error) {
	if userID == "" || tokenID == "" {
		return "", errors.New("empty user or token id")
	}
	return m.sign(m.config.RefreshSecret, m.config.RefreshTTL, claims{
		Type:     KindRefresh,
		UserID:   userID,
		TokenID:  tokenID,
		FamilyID: familyID,
	})
}

// VerifyAccess checks signature, expiry and type of an access credential.
//
// VerifyAccess returns ErrExpired for expired credentials and ErrInvalid for
// everything else, including a correctly signed refresh payload.
func (m *Manager) VerifyAccess(token string) (AccessPayload, error) {
	payload, err := m.verify(m.config.AccessSecret, token)
	if err != nil {
		return AccessPayload{}, err
	}
	access, ok := payload.(AccessPayload)
	if !ok {
		return AccessPayload{}, ErrInvalid
	}
	return access, nil
}

// VerifyRefresh checks signature, expiry and type of a refresh credential.
func (m *Manager) VerifyRefresh(token string) (RefreshPayload, error) {
	payload, err := m.verify(m.config.RefreshSecret, token)
	if err != nil {
		return RefreshPayload{}, err
	}
	refresh, ok := payload.(RefreshPayload)
	if !ok {
		return RefreshPayload{}, ErrInvalid
	}
	return refresh, nil
}

func (m *Manager) sign(secret []byte, ttl time.Duration, c claims) (string, error) {
	now := m.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		c.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}

func (m *Manager) verify(secret []byte, tokenStr string) (Payload, error) {
	if tokenStr == "" {
		return nil, ErrInvalid
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if c.IssuedAt != nil && c.IssuedAt.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return nil, ErrInvalid
	}
	return decodePayload(c)
}
