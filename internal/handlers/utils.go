package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// SuccessResponse is the envelope for successful operations.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the envelope for failed operations. Field, when set,
// names the request field the error belongs to so clients can attach
// the message to a specific form input instead of sniffing the text.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func userIDFromContext(ctx context.Context) (int, error) {
	id, ok := ctx.Value(contextSubjectKey).(int)
	if !ok || id < 1 {
		return 0, errors.New("missing subject")
	}
	return id, nil
}

func contextWithUserID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, contextSubjectKey, id)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, data any, message string) {
	writeJSON(w, status, SuccessResponse{Success: true, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}

func writeFieldError(w http.ResponseWriter, status int, field, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message, Field: field})
}
