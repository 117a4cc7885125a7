package http

import (
	"encoding/json"
	"net/http"

	"recurring-billing-backend/internal/logger"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// writeError writes {"error": msg}. 5xx bodies carry only msg; the cause is logged.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string, cause error) {
	if status >= 500 && cause != nil {
		logger.ErrorContext(r.Context(), "Request failed",
			"status", status,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", cause)
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
