package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"spendify/internal/core"
	"spendify/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become a
// 500 with a generic message; the detail stays in the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.Is(err, core.ErrNotAuthenticated):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, core.ErrNotInGroup),
		errors.Is(err, core.ErrGroupNotFound),
		errors.Is(err, store.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrAlreadyMember),
		errors.Is(err, core.ErrGroupFull):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrNameTooLong),
		errors.Is(err, core.ErrNoteTooLong),
		errors.Is(err, core.ErrEmptyGroupName),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrUnknownFrequency),
		errors.Is(err, core.ErrUnknownCategory),
		errors.Is(err, core.ErrInvalidTemplateState):
		status, message = http.StatusBadRequest, err.Error()
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}

	writeJSON(w, status, errorBody{Error: message})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
