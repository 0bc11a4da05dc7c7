package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/innerscope/authcore"
	"github.com/innerscope/authcore/csrf"
	"github.com/innerscope/authcore/jwt"
	"github.com/innerscope/authcore/middleware"
)

// Service is the subset of *authcore.Engine the handlers call.
type Service interface {
	Register(ctx context.Context, in authcore.RegisterInput) (*authcore.Session, error)
	Login(ctx context.Context, email, password string) (*authcore.Session, error)
	RefreshTokens(ctx context.Context, credential string) (*authcore.TokenPair, error)
	Logout(ctx context.Context, userID, credential string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
	ResendEmailVerification(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, current, next string) error
	GetUser(ctx context.Context, userID string) (*authcore.UserView, error)
	UpdateProfile(ctx context.Context, userID string, update authcore.ProfileUpdate) (*authcore.UserView, error)
	DeleteAccount(ctx context.Context, userID string) error
	Authenticate(ctx context.Context, accessToken string) (jwt.AccessPayload, error)
	Health(ctx context.Context) authcore.HealthStatus
	CSRF() *csrf.Service
}

var _ Service = (*authcore.Engine)(nil)

// Options configures cookies, proxies and the operator endpoints.
type Options struct {
	// CookieSecret signs the refresh cookie. At least 32 bytes.
	CookieSecret []byte
	// RefreshCookieTTL defaults to seven days.
	RefreshCookieTTL time.Duration
	// SecureCookies sets the Secure attribute; disable only for local HTTP.
	SecureCookies bool
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// AdminKey guards the metrics endpoint. Empty leaves it unmounted.
	AdminKey string
	// Metrics serves the exposition at GET /metrics.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Handler binds the HTTP routes to a Service.
type Handler struct {
	service Service
	opts    Options
	cookies *cookieSigner
	logger  *slog.Logger
}

// NewHandler validates opts and returns a Handler.
func NewHandler(service Service, opts Options) (*Handler, error) {
	if service == nil {
		return nil, errors.New("httpapi: nil service")
	}
	signer, err := newCookieSigner(opts.CookieSecret)
	if err != nil {
		return nil, err
	}
	if opts.RefreshCookieTTL <= 0 {
		opts.RefreshCookieTTL = 7 * 24 * time.Hour
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		opts:    opts,
		cookies: signer,
		logger:  logger.With("module", "http"),
	}, nil
}

// NewRouter registers the routes and middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)
	r.Use(h.clientContextMiddleware)

	r.Get("/healthz", h.healthz)
	if h.opts.AdminKey != "" && h.opts.Metrics != nil {
		r.With(h.adminKeyMiddleware).Get("/metrics", h.opts.Metrics.ServeHTTP)
	}

	requireCSRF := middleware.RequireCSRF(h.service.CSRF())
	requireAccess := middleware.RequireAccess(h.service)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/password/reset-request", h.passwordResetRequest)
		r.Post("/password/reset", h.passwordReset)
		r.Post("/email/verify", h.emailVerify)

		r.With(requireCSRF).Post("/refresh", h.refresh)

		r.Group(func(r chi.Router) {
			r.Use(requireAccess)
			r.Use(requireCSRF)
			r.Post("/logout", h.logout)
			r.Post("/logout-all", h.logoutAll)
			r.Post("/email/verify-request", h.emailVerifyRequest)
			r.Post("/password/change", h.changePassword)
			r.Get("/me", h.me)
			r.Patch("/me", h.updateProfile)
			r.Delete("/me", h.deleteAccount)
		})
	})

	return r
}
