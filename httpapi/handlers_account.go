package httpapi

import (
	"net/http"

	"github.com/innerscope/authcore"
	"github.com/innerscope/authcore/middleware"
)

type profileRequest struct {
	Name      *string `json:"name"`
	Gender    *string `json:"gender"`
	BirthYear *int    `json:"birthYear"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.writeMappedError(r.Context(), w, "get_user", err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeValidationError(r.Context(), w, "update_profile", err)
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	user, err := h.service.UpdateProfile(r.Context(), userID, authcore.ProfileUpdate{
		Name:      req.Name,
		Gender:    req.Gender,
		BirthYear: req.BirthYear,
	})
	if err != nil {
		h.writeMappedError(r.Context(), w, "update_profile", err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.service.DeleteAccount(r.Context(), userID); err != nil {
		h.writeMappedError(r.Context(), w, "delete_account", err)
		return
	}
	h.clearSessionCookies(w)
	writeMessage(w, http.StatusOK, "account deleted")
}
