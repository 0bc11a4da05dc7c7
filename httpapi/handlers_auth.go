package httpapi

import (
	"net/http"
	"time"

	"github.com/innerscope/authcore"
	"github.com/innerscope/authcore/middleware"
)

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	BirthYear *int   `json:"birthYear"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User            authcore.UserView `json:"user"`
	AccessToken     string            `json:"accessToken"`
	AccessExpiresAt time.Time         `json:"accessExpiresAt"`
	CSRFToken       string            `json:"csrfToken"`
}

type refreshResponse struct {
	AccessToken     string    `json:"accessToken"`
	AccessExpiresAt time.Time `json:"accessExpiresAt"`
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, s *authcore.Session) {
	h.setSessionCookies(w, s.RefreshToken, s.CSRFToken)
	writeSuccess(w, status, sessionResponse{
		User:            s.User,
		AccessToken:     s.AccessToken,
		AccessExpiresAt: s.AccessExpiresAt,
		CSRFToken:       s.CSRFToken,
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "register", err)
		return
	}

	session, err := h.service.Register(r.Context(), authcore.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		Gender:    req.Gender,
		BirthYear: req.BirthYear,
	})
	if err != nil {
		h.writeMappedError(r.Context(), w, "register", err)
		return
	}
	h.writeSession(w, http.StatusCreated, session)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "login", err)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeMappedError(r.Context(), w, "login", err)
		return
	}
	h.writeSession(w, http.StatusOK, session)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	credential := h.refreshCredential(r)
	if credential == "" {
		h.writeMappedError(r.Context(), w, "refresh", authcore.ErrTokenInvalid)
		return
	}

	pair, err := h.service.RefreshTokens(r.Context(), credential)
	if err != nil {
		h.writeMappedError(r.Context(), w, "refresh", err)
		return
	}
	h.setSessionCookies(w, pair.RefreshToken, "")
	writeSuccess(w, http.StatusOK, refreshResponse{
		AccessToken:     pair.AccessToken,
		AccessExpiresAt: pair.AccessExpiresAt,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.service.Logout(r.Context(), userID, h.refreshCredential(r)); err != nil {
		h.writeMappedError(r.Context(), w, "logout", err)
		return
	}
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	n, err := h.service.LogoutAll(r.Context(), userID)
	if err != nil {
		h.writeMappedError(r.Context(), w, "logout_all", err)
		return
	}
	h.clearSessionCookies(w)
	writeSuccess(w, http.StatusOK, map[string]int64{"sessionsRevoked": n})
}
