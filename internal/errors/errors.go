// Package errors defines the JSON error surface of the HTTP API.
package errors

import (
	"encoding/json"
	"net/http"
)

// Stable error codes returned by the API.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeNotImplemented     = "NOT_IMPLEMENTED"
)

// ErrorBody is the inner payload of an error response.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the envelope every error response uses.
type HTTPErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// WriteError writes a JSON error response with the given status and code.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorDetails(w, status, code, message, nil)
}

// WriteErrorDetails writes a JSON error response carrying extra context.
func WriteErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: ErrorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// RespondWithError maps an arbitrary error to a 500 response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, err.Error())
}
