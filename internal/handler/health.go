package handler

import (
	"net/http"

	"github.com/parley-ai/chat-platform/internal/queue"
	"github.com/parley-ai/chat-platform/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store *store.Store
	queue queue.Dispatcher
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(st *store.Store, q queue.Dispatcher) *HealthHandler {
	return &HealthHandler{
		store: st,
		queue: q,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unreachable",
		})
		return
	}

	// The local dispatcher has no external connection to probe.
	if checker, ok := h.queue.(interface{ IsConnected() bool }); ok && !checker.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "queue not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
