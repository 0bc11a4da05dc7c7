package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/innerscope/authcore"
	"github.com/innerscope/authcore/jwt"
)

// Authenticator verifies access credentials. *authcore.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (jwt.AccessPayload, error)
}

type userIDContextKey struct{}

// UserIDFromContext returns the user ID stored by RequireAccess.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDContextKey{}).(string)
	return id, ok && id != ""
}

// WithUserID stores userID the way RequireAccess does. Handlers under test use
// it to skip credential issuance.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey{}, userID)
}

// RequireAccess rejects requests without a valid bearer access credential
// with 401. An expired credential is reported as such so clients know to
// refresh.
func RequireAccess(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			payload, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, authcore.ErrTokenExpired) {
					http.Error(w, "token expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), payload.UserID)))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
