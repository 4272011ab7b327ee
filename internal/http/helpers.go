package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"spendwatch/internal/core"
)

type errorResponse struct {
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Status:    status,
		Message:   msg,
		Timestamp: time.Now(),
		Path:      r.URL.Path,
	})
}

// writeDomainError maps engine errors onto HTTP statuses: bad input is the
// client's fault, a misbehaving rate source is upstream's.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrUnsupportedCurrency):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrDuplicateLimit):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrNoUsableRate):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, core.ErrRateProvider):
		writeError(w, r, http.StatusBadGateway, err.Error())
	case isValidationError(err):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.ErrorContext(r.Context(), "Internal error", "error", err, "url", r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		core.ErrEmptyAccount,
		core.ErrAccountTooLong,
		core.ErrInvalidCurrency,
		core.ErrInvalidAmount,
		core.ErrUnknownCategory,
		core.ErrFutureDatetime,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
