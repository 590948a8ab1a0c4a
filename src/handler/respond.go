package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"warehouseops/src/apperrors"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

// statusFor maps the engine error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrPartialEffect):
		return http.StatusBadGateway
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := logger.WithFields(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}).WithError(err)

	if status == http.StatusInternalServerError {
		entry.Error("request failed")
		writeJSON(w, status, errorResponse{Error: "Internal Server Error"})
		return
	}
	entry.Warn("request rejected")
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
