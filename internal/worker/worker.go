// Package worker executes dispatched conversation jobs: generating the
// assistant turn off the request path and producing best-effort
// annotations.
package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/parley-ai/chat-platform/internal/cache"
	"github.com/parley-ai/chat-platform/internal/config"
	"github.com/parley-ai/chat-platform/internal/llm"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/queue"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/metrics"
)

// rateLimitNotice is the synthetic assistant reply persisted when the
// upstream provider throttles a turn. The conversation completes so the
// user is not stuck behind a retry loop.
const rateLimitNotice = "The AI service hit its rate limit while answering. " +
	"Your message was saved, please try again in a few moments."

// Options configures worker behavior.
type Options struct {
	MaxAttempts   int
	RetryBackoff  time.Duration
	HistoryWindow int
	Generation    llm.GenerationConfig
}

// Worker turns dispatched jobs into persisted assistant messages and
// cached annotations.
type Worker struct {
	store  *store.Store
	client *llm.Client
	cache  *cache.ResponseCache
	opts   Options
	logger *logger.Logger

	// locks serializes job execution per conversation: at most one
	// in-flight turn per conversation, even if dispatch misbehaves.
	// Entries are refcounted and evicted once the last holder releases,
	// so the map stays bounded by in-flight work.
	locksMu sync.Mutex
	locks   map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a worker.
func New(st *store.Store, client *llm.Client, rc *cache.ResponseCache, opts Options, log *logger.Logger) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 5 * time.Second
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	return &Worker{
		store:  st,
		client: client,
		cache:  rc,
		opts:   opts,
		logger: log,
		locks:  make(map[string]*convLock),
	}
}

// Handle processes one job to a terminal outcome. It satisfies
// queue.Handler.
func (w *Worker) Handle(ctx context.Context, job queue.Job) {
	unlock := w.lock(job.ConversationID)
	defer unlock()

	switch job.Kind {
	case queue.KindTurn:
		w.handleTurn(ctx, job)
	case queue.KindSummary, queue.KindTopics, queue.KindCategorize:
		w.handleAnnotation(ctx, job)
	default:
		w.logger.Error("unknown job kind", zap.String("kind", string(job.Kind)))
	}
}

func (w *Worker) lock(conversationID string) func() {
	w.locksMu.Lock()
	cl, ok := w.locks[conversationID]
	if !ok {
		cl = &convLock{}
		w.locks[conversationID] = cl
	}
	cl.refs++
	w.locksMu.Unlock()

	cl.mu.Lock()
	return func() {
		cl.mu.Unlock()
		w.locksMu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(w.locks, conversationID)
		}
		w.locksMu.Unlock()
	}
}

// handleTurn runs the turn state machine with the bounded fixed-backoff
// retry policy. Exhaustion marks the conversation failed and fires the
// failure hook (structured log + metric).
func (w *Worker) handleTurn(ctx context.Context, job queue.Job) {
	log := w.logger.WithConversation(job.ConversationID, job.UserID)

	policy := backoff.WithMaxRetries(
		backoff.NewConstantBackOff(w.opts.RetryBackoff),
		uint64(w.opts.MaxAttempts-1),
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			metrics.JobRetriesTotal.WithLabelValues(string(job.Kind)).Inc()
		}
		return w.runTurn(ctx, job, log)
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		metrics.JobsTotal.WithLabelValues(string(job.Kind), "failed").Inc()
		if serr := w.store.SetStatus(ctx, job.ConversationID, model.StatusFailed); serr != nil && !errors.Is(serr, store.ErrNotFound) {
			log.Error("failed to mark conversation failed", zap.Error(serr))
		}
		log.Error("turn job failed after all retries",
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return
	}

	metrics.JobsTotal.WithLabelValues(string(job.Kind), "succeeded").Inc()
}

// runTurn performs a single turn attempt. Returning a non-nil error
// schedules a retry; backoff.Permanent short-circuits to failure.
func (w *Worker) runTurn(ctx context.Context, job queue.Job, log *logger.Logger) error {
	conv, err := w.store.GetByID(ctx, job.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		// Conversation deleted while the job was queued; nothing to do.
		log.Warn("turn job for missing conversation dropped")
		return nil
	}
	if err != nil {
		return err
	}

	// Idempotency: a previous attempt may have persisted the reply and
	// crashed before acknowledging. The user message of this turn is
	// always last until the reply lands, so an assistant tail means the
	// turn is already complete.
	last, err := w.store.LastMessage(ctx, conv.ID)
	if err != nil {
		return err
	}
	if last != nil && last.Role == model.RoleAssistant {
		if conv.Status == model.StatusProcessing {
			if err := w.store.SetStatus(ctx, conv.ID, model.StatusCompleted); err != nil {
				return err
			}
		}
		log.Info("turn already completed by earlier attempt, skipping")
		return nil
	}

	key := cache.Key(conv.ID, job.Message)
	if reply, ok := w.cache.Get(key); ok {
		metrics.RecordCacheHit()
		if _, err := w.store.CompleteTurn(ctx, conv.ID, reply, model.StatusCompleted); err != nil {
			return err
		}
		log.Info("assistant reply served from cache",
			zap.Bool("cached", true),
			zap.Int("total_tokens", 0),
		)
		w.maybeGenerateTitle(ctx, conv, log)
		return nil
	}
	metrics.RecordCacheMiss()

	history, err := w.store.RecentMessages(ctx, conv.ID, w.opts.HistoryWindow)
	if err != nil {
		return err
	}
	chat := make([]llm.ChatMessage, len(history))
	for i, m := range history {
		chat[i] = llm.ChatMessage{Role: string(m.Role), Content: m.Content}
	}

	gen := w.opts.Generation
	if job.Model != "" {
		gen.Model = job.Model
	}

	res, err := w.client.Generate(ctx, chat, gen)
	if err != nil {
		switch llm.KindOf(err) {
		case llm.KindRateLimited:
			// Deliberate policy: substitute a notice and complete the
			// turn so the user is unblocked; retrying against a
			// throttled provider would only burn quota.
			log.Warn("upstream rate limited, substituting fallback reply", zap.Error(err))
			if _, cerr := w.store.CompleteTurn(ctx, conv.ID, rateLimitNotice, model.StatusCompleted); cerr != nil {
				return cerr
			}
			return nil
		default:
			log.Error("completion failed", zap.String("kind", string(llm.KindOf(err))), zap.Error(err))
			if serr := w.store.SetStatus(ctx, conv.ID, model.StatusError); serr != nil {
				log.Error("failed to mark conversation errored", zap.Error(serr))
			}
			return err
		}
	}

	if _, err := w.store.CompleteTurn(ctx, conv.ID, res.Content, model.StatusCompleted); err != nil {
		return err
	}
	w.cache.Put(key, res.Content)

	log.Info("turn completed",
		zap.String("model", res.Model),
		zap.Int("total_tokens", res.TotalTokens),
		zap.Int64("duration_ms", res.LatencyMs),
		zap.Float64("cost_usd", config.EstimateCost(gen.Model, res.PromptTokens, res.CompletionTokens)),
		zap.Bool("cached", false),
	)
	metrics.MessagesTotal.WithLabelValues(string(model.RoleAssistant)).Inc()

	w.maybeGenerateTitle(ctx, conv, log)
	return nil
}

// maybeGenerateTitle runs best-effort title auto-generation once the
// conversation reaches exactly two messages (first full exchange).
func (w *Worker) maybeGenerateTitle(ctx context.Context, conv *model.Conversation, log *logger.Logger) {
	count, err := w.store.CountMessages(ctx, conv.ID)
	if err != nil || count != 2 {
		return
	}
	if conv.Title != "" && !strings.Contains(strings.ToLower(conv.Title), "new conversation") {
		return
	}

	messages, err := w.store.RecentMessages(ctx, conv.ID, 3)
	if err != nil {
		return
	}
	var parts []string
	for _, m := range messages {
		parts = append(parts, m.Content)
	}

	title, ok := w.client.GenerateTitle(ctx, strings.Join(parts, " "))
	if !ok || title == "" {
		return
	}
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	if err := w.store.SetTitle(ctx, conv.ID, title); err != nil {
		log.Error("failed to store auto-generated title", zap.Error(err))
		return
	}
	log.Info("auto-generated conversation title", zap.String("title", title))
}

// handleAnnotation produces a summary, topic list or category and caches
// it. Annotations are best effort: the completion helpers degrade to
// static fallbacks, so annotation jobs always resolve in one attempt.
func (w *Worker) handleAnnotation(ctx context.Context, job queue.Job) {
	log := w.logger.WithConversation(job.ConversationID, job.UserID)

	if _, err := w.store.GetByID(ctx, job.ConversationID); err != nil {
		log.Warn("annotation job for missing conversation dropped", zap.Error(err))
		return
	}

	messages, err := w.store.Messages(ctx, job.ConversationID)
	if err != nil {
		log.Error("failed to load messages for annotation", zap.Error(err))
		metrics.JobsTotal.WithLabelValues(string(job.Kind), "failed").Inc()
		return
	}

	switch job.Kind {
	case queue.KindSummary:
		summary := "No messages in this conversation yet."
		if len(messages) > 0 {
			summary = w.client.Summarize(ctx, transcript(messages))
		}
		w.cache.Put(cache.SummaryKey(job.ConversationID), summary)
	case queue.KindTopics:
		topics := w.client.ExtractTopics(ctx, transcript(messages))
		if topics == nil {
			topics = []string{}
		}
		w.cache.PutStrings(cache.TopicsKey(job.ConversationID), topics)
	case queue.KindCategorize:
		category := "General"
		if len(messages) > 0 {
			head := messages
			if len(head) > 10 {
				head = head[:10]
			}
			category = w.client.Categorize(ctx, transcript(head))
		}
		w.cache.Put(cache.CategoryKey(job.ConversationID), category)
	}

	metrics.JobsTotal.WithLabelValues(string(job.Kind), "succeeded").Inc()
	log.Info("annotation generated", zap.String("kind", string(job.Kind)))
}

// transcript renders messages as "Role: content" lines for annotation
// prompts.
func transcript(messages []model.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := string(m.Role)
		if role != "" {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
