package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ekaya-inc/ekaya-askdb/pkg/audit"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse writes a JSON error response carrying the request id from
// r's context, and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) error {
	body := ErrorBody{Error: errorCode, Message: message}
	if r != nil {
		body.RequestID = audit.RequestFromContext(r.Context()).RequestID
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(body)
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}
