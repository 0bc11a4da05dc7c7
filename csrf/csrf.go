package csrf

import (
	"github.com/innerscope/authcore/internal"
	"github.com/innerscope/authcore/internal/security"
)

// TokenBytes is the entropy of an issued token before hex encoding.
const TokenBytes = 32

const (
	// CookieName is the readable cookie carrying the token to the browser.
	CookieName = "csrf_token"
	// HeaderName is the request header the client echoes the token in.
	HeaderName = "X-CSRF-Token"
)

// Service issues and checks double-submit tokens. It keeps no state: a
// request is accepted when the header copy matches the cookie copy.
type Service struct{}

// New returns a Service.
func New() *Service { return &Service{} }

// Issue returns a fresh random token.
func (s *Service) Issue() (string, error) {
	return internal.RandomToken(TokenBytes)
}

// Validate reports whether the header and cookie tokens are present and
// identical. The comparison runs in constant time for equal-length inputs.
func (s *Service) Validate(headerToken, cookieToken string) bool {
	if headerToken == "" || cookieToken == "" {
		return false
	}
	return security.EqualString(headerToken, cookieToken)
}
