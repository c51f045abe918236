package handler

import (
	"errors"
	"net/http"

	"github.com/parley-ai/chat-platform/internal/middleware"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/service"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
)

// MessageHandler handles message send and poll endpoints.
type MessageHandler struct {
	chatService *service.ChatService
	logger      *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(chatSvc *service.ChatService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		chatService: chatSvc,
		logger:      log,
	}
}

// Send handles POST /api/v1/conversations/:id/messages
//
// A successful send returns 202 Accepted: the user message is stored and
// a turn job is dispatched, but the assistant reply arrives later via
// polling.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := conversationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp, err := h.chatService.SendMessage(ctx, userID, id, &req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, service.ErrConversationBusy):
			writeError(w, http.StatusConflict, "conversation is already processing a message")
		case errors.Is(err, service.ErrEmptyMessage):
			writeError(w, http.StatusUnprocessableEntity, "message is empty after sanitization")
		case errors.Is(err, service.ErrUnknownModel):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Error("failed to send message")
			writeError(w, http.StatusInternalServerError, "failed to send message")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// Poll handles GET /api/v1/conversations/:id/poll
func (h *MessageHandler) Poll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	id, err := conversationID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.chatService.Poll(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to poll conversation")
		writeError(w, http.StatusInternalServerError, "failed to poll conversation")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
