// Package service provides business logic between the HTTP handlers and
// the store, cache and job queue.
package service

import (
	"context"

	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/metrics"
	"go.uber.org/zap"
)

// ConversationService handles conversation CRUD.
type ConversationService struct {
	store  *store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st *store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, logger: log}
}

// Create creates a new conversation owned by userID.
func (s *ConversationService) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, userID, title)
	if err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)
	return conv, nil
}

// Get retrieves an owned conversation.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	return s.store.GetOwned(ctx, userID, conversationID)
}

// List retrieves the user's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, userID string) (*model.ListConversationsResponse, error) {
	conversations, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.ListConversationsResponse{
		Conversations: conversations,
		Total:         len(conversations),
	}, nil
}

// Rename updates the title of an owned conversation.
func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) (*model.Conversation, error) {
	if err := s.store.Rename(ctx, userID, conversationID, title); err != nil {
		return nil, err
	}
	return s.store.GetOwned(ctx, userID, conversationID)
}

// Delete soft-deletes an owned conversation. Messages are retained for
// audit but become unreachable.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if err := s.store.SoftDelete(ctx, userID, conversationID); err != nil {
		return err
	}
	s.logger.Info("conversation deleted",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID),
	)
	return nil
}
