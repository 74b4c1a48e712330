package resource

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/orchestrator"
	"github.com/restforge/restforge/internal/engine/validation"
	"github.com/restforge/restforge/internal/storage/sqlstore"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error  ErrorDetail `json:"error"`
	Status int         `json:"status"`
}

// ErrorDetail contains detailed error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	// Encoding failures after the header is written can only be logged by
	// the caller; the status line is already on the wire.
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:  ErrorDetail{Code: code, Message: message},
		Status: status,
	})
}

// writeFailure maps engine errors onto HTTP status codes. Validation errors
// carry their per-field messages in the details payload.
func writeFailure(w http.ResponseWriter, err error) {
	var verrs *validation.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: ErrorDetail{
				Code:    "VALIDATION_FAILED",
				Message: verrs.Error(),
				Details: verrs.Fields,
			},
			Status: http.StatusUnprocessableEntity,
		})
		return
	}

	switch {
	case orchestrator.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "the requested resource was not found")
	case sqlstore.IsUniqueViolation(err):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	case sqlstore.IsForeignKeyViolation(err):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	case descriptor.IsConfigError(err):
		writeError(w, http.StatusInternalServerError, "CONFIGURATION_ERROR", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}
