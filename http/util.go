package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON shape of every error reply.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
	Code   string `json:"code,omitempty"`
}

// respondError writes an error response with the given status code and message.
func respondError(w http.ResponseWriter, status int, message string) {
	respondErrorReason(w, status, message, "")
}

// respondErrorReason writes an error response carrying a machine-readable
// rejection reason alongside the message.
func respondErrorReason(w http.ResponseWriter, status int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(&ErrorResponse{
		Error:  message,
		Reason: reason,
	})
}

// respondOk writes a successful JSON response with status 200.
func respondOk(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}
