package httpapi

import (
	"net/http"

	"github.com/innerscope/authcore/middleware"
)

type emailRequest struct {
	Email string `json:"email"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type passwordResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// passwordResetRequest answers identically whether or not the account exists.
func (h *Handler) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "password_reset_request", err)
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.writeMappedError(r.Context(), w, "password_reset_request", err)
		return
	}
	writeMessage(w, http.StatusAccepted, "if the account exists, a reset email has been sent")
}

func (h *Handler) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "password_reset", err)
		return
	}
	if err := h.service.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.writeMappedError(r.Context(), w, "password_reset", err)
		return
	}
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "password updated")
}

func (h *Handler) emailVerify(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "email_verify", err)
		return
	}
	if err := h.service.VerifyEmail(r.Context(), req.Token); err != nil {
		h.writeMappedError(r.Context(), w, "email_verify", err)
		return
	}
	writeMessage(w, http.StatusOK, "email verified")
}

func (h *Handler) emailVerifyRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.service.ResendEmailVerification(r.Context(), userID); err != nil {
		h.writeMappedError(r.Context(), w, "email_verify_request", err)
		return
	}
	writeMessage(w, http.StatusAccepted, "verification email sent")
}

// changePassword revokes every session, including the caller's.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "change_password", err)
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeMappedError(r.Context(), w, "change_password", err)
		return
	}
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "password changed")
}
