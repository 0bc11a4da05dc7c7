package middleware

import (
	"net/http"

	"github.com/innerscope/authcore/csrf"
)

// RequireCSRF rejects unsafe requests whose X-CSRF-Token header does not
// match the csrf_token cookie. GET, HEAD and OPTIONS pass through.
func RequireCSRF(svc *csrf.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			var cookieToken string
			if c, err := r.Cookie(csrf.CookieName); err == nil {
				cookieToken = c.Value
			}
			if svc == nil || !svc.Validate(r.Header.Get(csrf.HeaderName), cookieToken) {
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
