package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the root banner and the /health probe.
type HealthHandler struct {
	storeFn        func() Pinger
	logger         *slog.Logger
	now            func() time.Time
	exposeInternal bool
}

// NewHealthHandler creates a HealthHandler. store returns nil while the
// store connection is still being established. exposeInternalErrors puts the
// ping error text into the "error" field, as on /api/users.
func NewHealthHandler(store func() Pinger, logger *slog.Logger, exposeInternalErrors bool) *HealthHandler {
	return &HealthHandler{storeFn: store, logger: logger, now: time.Now, exposeInternal: exposeInternalErrors}
}

// HandleRoot answers GET / with a banner.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":   "Career Connect AI Server is running!",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

// HandleHealth answers GET /health after pinging the store.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	timestamp := h.now().UTC().Format(time.RFC3339Nano)

	store := h.storeFn()
	if store == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":    "Error",
			"database":  "Disconnected",
			"timestamp": timestamp,
		})
		return
	}

	if err := store.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		body := map[string]string{
			"status":    "Error",
			"database":  "Disconnected",
			"timestamp": timestamp,
		}
		if h.exposeInternal {
			body["error"] = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"database":  "Connected",
		"timestamp": timestamp,
	})
}
