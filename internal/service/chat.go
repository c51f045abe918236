package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/parley-ai/chat-platform/internal/cache"
	"github.com/parley-ai/chat-platform/internal/config"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/queue"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/metrics"
	"go.uber.org/zap"
)

// Service-level sentinel errors mapped to HTTP statuses by the handlers.
var (
	// ErrConversationBusy is returned when a send arrives while a turn job
	// is still in flight for the conversation.
	ErrConversationBusy = errors.New("conversation is already processing a message")
	// ErrEmptyMessage is returned when sanitization strips the message to
	// nothing.
	ErrEmptyMessage = errors.New("message is empty after sanitization")
	// ErrUnknownModel is returned when the requested model is not in the
	// enabled catalog.
	ErrUnknownModel = errors.New("requested model is not available")
)

// ChatService handles message sending, polling and annotation dispatch.
type ChatService struct {
	store      *store.Store
	queue      queue.Dispatcher
	cache      *cache.ResponseCache
	pollWindow int
	logger     *logger.Logger
}

// NewChatService creates a new chat service.
func NewChatService(st *store.Store, q queue.Dispatcher, c *cache.ResponseCache, pollWindow int, log *logger.Logger) *ChatService {
	return &ChatService{
		store:      st,
		queue:      q,
		cache:      c,
		pollWindow: pollWindow,
		logger:     log,
	}
}

// SendMessage persists the user message, flips the conversation into
// processing and dispatches a turn job. It returns ErrConversationBusy
// when a job is already in flight, so at most one generation runs per
// conversation at a time.
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID string, req *model.SendMessageRequest) (*model.SendMessageResponse, error) {
	content := SanitizeMessage(req.Message)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	if req.Model != "" {
		info, ok := config.LookupModel(req.Model)
		if !ok || !info.Enabled {
			return nil, fmt.Errorf("%w: %s", ErrUnknownModel, req.Model)
		}
	}

	msg, err := s.store.AppendUserTurn(ctx, userID, conversationID, content)
	if err != nil {
		if errors.Is(err, store.ErrConversationBusy) {
			return nil, ErrConversationBusy
		}
		return nil, err
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	job := queue.NewJob(queue.KindTurn, conversationID, userID, content)
	job.Model = req.Model
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// The user message is already durable; restore the conversation so
		// the client can retry the send instead of polling forever.
		if rbErr := s.store.SetStatus(ctx, conversationID, model.StatusActive); rbErr != nil {
			s.logger.Error("could not restore conversation status after enqueue failure",
				zap.String("conversation_id", conversationID),
				zap.Error(rbErr),
			)
		}
		return nil, fmt.Errorf("could not enqueue turn job: %w", err)
	}

	s.logger.Info("turn job dispatched",
		zap.String("conversation_id", conversationID),
		zap.String("job_id", job.ID),
		zap.String("model", req.Model),
	)
	return &model.SendMessageResponse{
		Status:      model.StatusProcessing,
		UserMessage: msg,
	}, nil
}

// Poll returns the conversation status and its most recent messages in
// chronological order. Clients poll this after a 202 until the status is
// terminal.
func (s *ChatService) Poll(ctx context.Context, userID, conversationID string) (*model.PollResponse, error) {
	conv, err := s.store.GetOwned(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.RecentMessages(ctx, conversationID, s.pollWindow)
	if err != nil {
		return nil, err
	}
	return &model.PollResponse{
		Status:   conv.Status,
		Messages: messages,
	}, nil
}

// Summarize returns the cached summary when present, otherwise dispatches
// a summary job and reports that generation is in progress.
func (s *ChatService) Summarize(ctx context.Context, userID, conversationID string) (*model.AnnotationResponse, error) {
	if _, err := s.store.GetOwned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if summary, ok := s.cache.Get(cache.SummaryKey(conversationID)); ok {
		metrics.CacheOpsTotal.WithLabelValues("hit").Inc()
		return &model.AnnotationResponse{Summary: summary, Cached: true}, nil
	}
	metrics.CacheOpsTotal.WithLabelValues("miss").Inc()
	return s.dispatchAnnotation(ctx, queue.KindSummary, conversationID, userID)
}

// Topics returns the cached topic list when present, otherwise dispatches
// a topics job.
func (s *ChatService) Topics(ctx context.Context, userID, conversationID string) (*model.AnnotationResponse, error) {
	if _, err := s.store.GetOwned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if topics, ok := s.cache.GetStrings(cache.TopicsKey(conversationID)); ok {
		metrics.CacheOpsTotal.WithLabelValues("hit").Inc()
		return &model.AnnotationResponse{Topics: topics, Cached: true}, nil
	}
	metrics.CacheOpsTotal.WithLabelValues("miss").Inc()
	return s.dispatchAnnotation(ctx, queue.KindTopics, conversationID, userID)
}

// Categorize returns the cached category when present, otherwise
// dispatches a categorize job.
func (s *ChatService) Categorize(ctx context.Context, userID, conversationID string) (*model.AnnotationResponse, error) {
	if _, err := s.store.GetOwned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if category, ok := s.cache.Get(cache.CategoryKey(conversationID)); ok {
		metrics.CacheOpsTotal.WithLabelValues("hit").Inc()
		return &model.AnnotationResponse{Category: category, Cached: true}, nil
	}
	metrics.CacheOpsTotal.WithLabelValues("miss").Inc()
	return s.dispatchAnnotation(ctx, queue.KindCategorize, conversationID, userID)
}

func (s *ChatService) dispatchAnnotation(ctx context.Context, kind queue.Kind, conversationID, userID string) (*model.AnnotationResponse, error) {
	job := queue.NewJob(kind, conversationID, userID, "")
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("could not enqueue %s job: %w", kind, err)
	}
	s.logger.Info("annotation job dispatched",
		zap.String("conversation_id", conversationID),
		zap.String("kind", string(kind)),
		zap.String("job_id", job.ID),
	)
	return &model.AnnotationResponse{Cached: false, Status: "generating"}, nil
}
