package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/innerscope/authcore"
)

const maxBodyBytes = 1 << 20

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON value")
	}
	return nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, authcore.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	case errors.Is(err, authcore.ErrVerificationQuota):
		return http.StatusTooManyRequests, "QUOTA_EXCEEDED", err.Error()
	case errors.Is(err, authcore.ErrIncorrectPassword):
		return http.StatusUnauthorized, "INCORRECT_PASSWORD", err.Error()
	case errors.Is(err, authcore.ErrTokenExpired):
		return http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired"
	}

	switch authcore.KindOf(err) {
	case authcore.KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case authcore.KindAuthentication:
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password"
	case authcore.KindToken:
		return http.StatusUnauthorized, "INVALID_TOKEN", "invalid or revoked token"
	case authcore.KindConflict:
		return http.StatusConflict, "CONFLICT", err.Error()
	case authcore.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

func (h *Handler) writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapError(err)
	h.logOperationError(ctx, operation, status, code, err)
	writeError(w, status, code, msg)
}

func (h *Handler) writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	h.logOperationError(ctx, operation, http.StatusBadRequest, "VALIDATION_ERROR", err)
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

func (h *Handler) logOperationError(ctx context.Context, operation string, status int, code string, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", status,
		"error_code", code,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if status >= 500 {
		h.logger.ErrorContext(ctx, "http operation failed", fields...)
		return
	}
	h.logger.InfoContext(ctx, "http operation rejected", fields...)
}
