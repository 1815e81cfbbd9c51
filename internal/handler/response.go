package handler

// RESPONSE HELPERS:
// Every endpoint answers with the same JSON envelope:
//
//	{"success": true,  "message": "User created successfully", "user": {...}}
//	{"success": true,  "users": [...], "count": 2}
//	{"success": false, "message": "User not found"}
//
// The client application already parses this shape, so it is kept stable.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/career-connect/internal/apperror"
	"github.com/sakif/career-connect/internal/model"
)

// Client-facing messages.
const (
	MsgCreated          = "User created successfully"
	MsgUpdated          = "User updated successfully"
	MsgDeleted          = "User deleted successfully"
	MsgNotFound         = "User not found"
	MsgInvalidJSON      = "Invalid JSON body"
	MsgStoreUnavailable = "Database unavailable. Please try again later."
	MsgInternal         = "Internal server error"
)

// Envelope is the response body of every /api/users endpoint.
type Envelope struct {
	Success bool               `json:"success"`
	Message string             `json:"message,omitempty"`
	User    *model.UserProfile `json:"user,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// ListEnvelope is the list response. users and count are always present,
// even when the collection is empty.
type ListEnvelope struct {
	Success bool                `json:"success"`
	Users   []model.UserProfile `json:"users"`
	Count   int                 `json:"count"`
}

// writeJSON sends a JSON response with the given status code.
// Headers and status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorWriter maps service errors to HTTP.
//
// exposeInternal controls whether the raw text of unclassified errors is
// returned in the "error" field. It is a diagnostic aid for development and
// must stay off in deployments that face untrusted clients.
type errorWriter struct {
	logger         *slog.Logger
	exposeInternal bool
}

// write maps err to its status code:
//
//	ErrValidation  → 400
//	ErrNotFound    → 404
//	ErrConflict    → 409
//	ErrUnavailable → 503
//	anything else  → 500
func (ew errorWriter) write(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			writeJSON(w, http.StatusBadRequest, Envelope{Message: appErr.Message})
			return
		case errors.Is(err, apperror.ErrNotFound):
			writeJSON(w, http.StatusNotFound, Envelope{Message: MsgNotFound})
			return
		case errors.Is(err, apperror.ErrConflict):
			writeJSON(w, http.StatusConflict, Envelope{Message: appErr.Message})
			return
		case errors.Is(err, apperror.ErrUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, ew.internal(MsgStoreUnavailable, err))
			return
		}
	}

	ew.logger.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ew.internal(MsgInternal, err))
}

func (ew errorWriter) internal(message string, err error) Envelope {
	env := Envelope{Message: message}
	if ew.exposeInternal {
		env.Error = err.Error()
	}
	return env
}
