package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/innerscope/authcore/csrf"
	"github.com/innerscope/authcore/internal/security"
)

const (
	refreshCookieName = "refresh_token"
	refreshCookiePath = "/auth/v1"
	minCookieSecret   = 32
)

var errBadCookie = errors.New("cookie signature invalid")

// cookieSigner appends an HMAC-SHA256 tag to cookie values. The tag covers
// the cookie name so a value cannot be replayed under another name.
type cookieSigner struct {
	key []byte
}

func newCookieSigner(secret []byte) (*cookieSigner, error) {
	if len(secret) < minCookieSecret {
		return nil, fmt.Errorf("httpapi: cookie secret must be at least %d bytes", minCookieSecret)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &cookieSigner{key: key}, nil
}

func (s *cookieSigner) mac(name, value string) string {
	m := hmac.New(sha256.New, s.key)
	m.Write([]byte(name))
	m.Write([]byte{'='})
	m.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}

func (s *cookieSigner) sign(name, value string) string {
	return value + "." + s.mac(name, value)
}

func (s *cookieSigner) verify(name, signed string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i <= 0 || i == len(signed)-1 {
		return "", errBadCookie
	}
	value, tag := signed[:i], signed[i+1:]
	if !security.EqualString(tag, s.mac(name, value)) {
		return "", errBadCookie
	}
	return value, nil
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, refreshToken, csrfToken string) {
	maxAge := int(h.opts.RefreshCookieTTL / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    h.cookies.sign(refreshCookieName, refreshToken),
		Path:     refreshCookiePath,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	if csrfToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     csrf.CookieName,
			Value:    csrfToken,
			Path:     "/",
			MaxAge:   maxAge,
			Secure:   h.opts.SecureCookies,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshCredential returns the verified refresh credential from the
// request cookie, or "" when it is absent or tampered with.
func (h *Handler) refreshCredential(r *http.Request) string {
	c, err := r.Cookie(refreshCookieName)
	if err != nil || c.Value == "" {
		return ""
	}
	value, err := h.cookies.verify(refreshCookieName, c.Value)
	if err != nil {
		return ""
	}
	return value
}
