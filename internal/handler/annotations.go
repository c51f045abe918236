package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/parley-ai/chat-platform/internal/middleware"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/service"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
)

// AnnotationHandler handles the summary, topics and categorize endpoints.
// All three share the same contract: 200 with the cached result, or 202
// when a generation job was dispatched.
type AnnotationHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewAnnotationHandler creates a new annotation handler.
func NewAnnotationHandler(chatSvc *service.ChatService, log *logger.Logger) *AnnotationHandler {
	return &AnnotationHandler{
		chatService: chatSvc,
		logger:      log,
	}
}

type annotationFunc func(ctx context.Context, userID, conversationID string) (*model.AnnotationResponse, error)

func (h *AnnotationHandler) handle(w http.ResponseWriter, r *http.Request, fn annotationFunc) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := conversationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := fn(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to handle annotation request")
		writeError(w, http.StatusInternalServerError, "failed to handle annotation request")
		return
	}

	status := http.StatusOK
	if !resp.Cached {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// Summary handles POST /api/v1/conversations/:id/summary
func (h *AnnotationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.chatService.Summarize)
}

// Topics handles POST /api/v1/conversations/:id/topics
func (h *AnnotationHandler) Topics(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.chatService.Topics)
}

// Categorize handles POST /api/v1/conversations/:id/categorize
func (h *AnnotationHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.chatService.Categorize)
}
