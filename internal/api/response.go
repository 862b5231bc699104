// Package api provides the HTTP server for brain: task queries, entry
// sections, the MCP endpoint, the OAuth routes, and the websocket events feed.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	brainerrors "github.com/brainsh/brain/internal/errors"
)

// APIError is the standard error response format.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSONResponse writes a successful JSON response.
func JSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// JSONResponseStatus writes a JSON response with a specific status code.
func JSONResponseStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JSONError writes a plain error response.
func JSONError(w http.ResponseWriter, message string, status int) {
	JSONResponseStatus(w, APIError{Error: "internal", Message: message}, status)
}

// HandleError inspects the error type and writes the appropriate response.
func HandleError(w http.ResponseWriter, err error) {
	var brainErr *brainerrors.BrainError
	if errors.As(err, &brainErr) {
		JSONResponseStatus(w, APIError{
			Error:   string(brainErr.Code),
			Message: brainErr.What,
			Details: brainErr.Details,
		}, brainErr.HTTPStatus())
		return
	}
	JSONError(w, err.Error(), http.StatusInternalServerError)
}
