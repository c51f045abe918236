package handler

import (
	"net/http"

	"github.com/parley-ai/chat-platform/internal/config"
)

// ModelsHandler serves the AI model catalog.
type ModelsHandler struct {
	defaultModel string
}

// NewModelsHandler creates a new models handler.
func NewModelsHandler(defaultModel string) *ModelsHandler {
	return &ModelsHandler{defaultModel: defaultModel}
}

// List handles GET /api/v1/ai/models
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"models":  config.EnabledModels(),
		"default": h.defaultModel,
	})
}
