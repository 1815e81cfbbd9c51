package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/career-connect/internal/model"
	"github.com/sakif/career-connect/internal/service"
)

// maxBodyBytes caps request bodies. Profiles are small documents.
const maxBodyBytes = 1 << 20

// UserService is the subset of *service.UserService the handler calls.
type UserService interface {
	Upsert(ctx context.Context, input map[string]any) (*model.UserProfile, service.Outcome, error)
	GetByExternalID(ctx context.Context, uid string) (*model.UserProfile, error)
	ListAll(ctx context.Context) ([]model.UserProfile, error)
	PartialUpdate(ctx context.Context, uid string, patch map[string]any) (*model.UserProfile, error)
	Delete(ctx context.Context, uid string) error
}

// UserHandler serves /api/users.
//
// Handlers only translate HTTP to service calls and back: decode the body,
// read {uid} from the path, map errors to status codes.
type UserHandler struct {
	users  UserService
	logger *slog.Logger
	errs   errorWriter
}

// NewUserHandler creates a UserHandler. exposeInternalErrors puts the raw
// error text of 500/503 answers into the envelope's "error" field.
func NewUserHandler(users UserService, logger *slog.Logger, exposeInternalErrors bool) *UserHandler {
	return &UserHandler{
		users:  users,
		logger: logger,
		errs:   errorWriter{logger: logger, exposeInternal: exposeInternalErrors},
	}
}

// Routes mounts the handlers on r. Mount the result under /api/users.
func (h *UserHandler) Routes(r chi.Router) {
	r.Post("/", h.HandleUpsert)
	r.Get("/", h.HandleList)
	r.Get("/{uid}", h.HandleGet)
	r.Put("/{uid}", h.HandleUpdate)
	r.Delete("/{uid}", h.HandleDelete)
}

// HandleUpsert creates or updates a profile.
//
// HTTP: POST /api/users
// BODY: {"uid": "abc", "email": "a@x.com", ...any other fields}
//
// Both branches answer 200; the message tells them apart.
func (h *UserHandler) HandleUpsert(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeObject(w, r)
	if !ok {
		return
	}

	user, outcome, err := h.users.Upsert(r.Context(), input)
	if err != nil {
		h.errs.write(w, err)
		return
	}

	msg := MsgUpdated
	if outcome == service.OutcomeCreated {
		msg = MsgCreated
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: msg, User: user})
}

// HandleGet returns one profile.
//
// HTTP: GET /api/users/{uid}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByExternalID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		h.errs.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, User: user})
}

// HandleList returns every profile.
//
// HTTP: GET /api/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll(r.Context())
	if err != nil {
		h.errs.write(w, err)
		return
	}
	if users == nil {
		users = []model.UserProfile{}
	}

	writeJSON(w, http.StatusOK, ListEnvelope{Success: true, Users: users, Count: len(users)})
}

// HandleUpdate merges the body into an existing profile.
//
// HTTP: PUT /api/users/{uid}
// BODY: {"age": 31}  (only the supplied keys change)
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	patch, ok := h.decodeObject(w, r)
	if !ok {
		return
	}

	user, err := h.users.PartialUpdate(r.Context(), chi.URLParam(r, "uid"), patch)
	if err != nil {
		h.errs.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: MsgUpdated, User: user})
}

// HandleDelete removes a profile.
//
// HTTP: DELETE /api/users/{uid}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "uid")); err != nil {
		h.errs.write(w, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: MsgDeleted})
}

// decodeObject reads a JSON object body. An empty body decodes as {}.
// Anything else (malformed JSON, an array, a bare string, trailing data after
// the object) is answered with 400 and ok=false.
func (h *UserHandler) decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := dec.Decode(&body)
	if err == nil {
		if _, tokErr := dec.Token(); !errors.Is(tokErr, io.EOF) {
			err = errors.New("unexpected data after JSON object")
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid user JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, Envelope{Message: MsgInvalidJSON})
		return nil, false
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, true
}
