package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/campuspay/backend/internal/services"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// writeServiceError maps a ledger error onto its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	if errors.Is(err, services.ErrConflictRetry) {
		w.Header().Set("Retry-After", "1")
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An Internal Error Occurred"
	}
	services.SendErrorResponse(w, message, status, nil)
}

// decodeJSON reads exactly one JSON object from the body and validates it.
// It writes the error response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}
