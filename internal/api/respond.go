package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/reflekt-app/reflekt/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto HTTP statuses. The confirmation
// error carries the answer count so the client can warn before a
// destructive profile edit.
func writeError(w http.ResponseWriter, err error) {
	var confirm *services.ConfirmRequiredError
	if errors.As(err, &confirm) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            "confirm_required",
			"message":          confirm.Error(),
			"answer_count":     confirm.AnswerCount,
			"confirm_required": true,
		})
		return
	}
	if se, ok := services.AsServiceError(err); ok {
		writeJSON(w, statusFor(se.Code), map[string]any{
			"error":   string(se.Code),
			"message": se.Message,
		})
		return
	}
	log.Printf("api: internal error: %v", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	case services.ErrorBadGateway:
		return http.StatusBadGateway
	case services.ErrorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, services.NewInvalidError("invalid request body"))
		return false
	}
	return true
}
