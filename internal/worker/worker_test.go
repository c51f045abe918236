package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/chat-platform/internal/cache"
	"github.com/parley-ai/chat-platform/internal/llm"
	"github.com/parley-ai/chat-platform/internal/model"
	"github.com/parley-ai/chat-platform/internal/queue"
	"github.com/parley-ai/chat-platform/internal/store"
	"github.com/parley-ai/chat-platform/pkg/logger"
)

// scriptedProvider returns queued results and errors, one per call.
type scriptedProvider struct {
	calls   int
	results []*llm.CompletionResult
	errs    []error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResult, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.results) {
		return p.results[i], nil
	}
	return &llm.CompletionResult{Content: "fallback scripted reply", Model: req.Config.Model, TotalTokens: 8}, nil
}

func result(content string) *llm.CompletionResult {
	return &llm.CompletionResult{Content: content, Model: "test-model", PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10}
}

type fixture struct {
	store  *store.Store
	cache  *cache.ResponseCache
	worker *Worker
}

func newFixture(t *testing.T, provider llm.Provider) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	defaults := llm.GenerationConfig{Model: "test-model", Temperature: 0.7, MaxTokens: 100}
	client := llm.NewClient(provider, defaults, 5*time.Second, logger.NewNop())
	rc := cache.New(time.Minute)

	w := New(st, client, rc, Options{
		MaxAttempts:   3,
		RetryBackoff:  time.Millisecond,
		HistoryWindow: 10,
		Generation:    defaults,
	}, logger.NewNop())

	return &fixture{store: st, cache: rc, worker: w}
}

// startTurn creates a conversation with a pending user message and
// returns the matching turn job.
func startTurn(t *testing.T, f *fixture, text string) (*model.Conversation, queue.Job) {
	t.Helper()
	ctx := context.Background()

	conv, err := f.store.CreateConversation(ctx, "user-1", "Chat about something")
	require.NoError(t, err)
	_, err = f.store.AppendUserTurn(ctx, "user-1", conv.ID, text)
	require.NoError(t, err)

	return conv, queue.NewJob(queue.KindTurn, conv.ID, "user-1", text)
}

func TestHandleTurnCompletesConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &scriptedProvider{results: []*llm.CompletionResult{result("the answer")}})

	conv, job := startTurn(t, f, "a question")
	f.worker.Handle(ctx, job)

	got, err := f.store.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	messages, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleAssistant, messages[1].Role)
	assert.Equal(t, "the answer", messages[1].Content)

	// The reply is now cached for identical re-sends.
	reply, ok := f.cache.Get(cache.Key(conv.ID, "a question"))
	require.True(t, ok)
	assert.Equal(t, "the answer", reply)
}

func TestHandleTurnServesFromCache(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{}
	f := newFixture(t, provider)

	conv, job := startTurn(t, f, "a cached question")
	f.cache.Put(cache.Key(conv.ID, "a cached question"), "the cached answer")

	f.worker.Handle(ctx, job)

	assert.Zero(t, provider.calls, "cache hit must not call the provider")

	messages, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "the cached answer", messages[1].Content)

	got, err := f.store.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestHandleTurnRateLimitFallback(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{errs: []error{&llm.Error{Kind: llm.KindRateLimited, Message: "throttled"}}}
	f := newFixture(t, provider)

	conv, job := startTurn(t, f, "a question")
	f.worker.Handle(ctx, job)

	// Rate limiting is not retried: one call, fallback reply, completed.
	assert.Equal(t, 1, provider.calls)

	got, err := f.store.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	messages, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, rateLimitNotice, messages[1].Content)

	// The fallback must never be cached as a real answer.
	_, ok := f.cache.Get(cache.Key(conv.ID, "a question"))
	assert.False(t, ok)
}

func TestHandleTurnRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{
		errs:    []error{&llm.Error{Kind: llm.KindUpstream, Message: "flaky"}, nil},
		results: []*llm.CompletionResult{nil, result("recovered answer")},
	}
	f := newFixture(t, provider)

	conv, job := startTurn(t, f, "a question")
	f.worker.Handle(ctx, job)

	assert.Equal(t, 2, provider.calls)

	got, err := f.store.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	messages, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "recovered answer", messages[1].Content)
}

func TestHandleTurnExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{errs: []error{
		&llm.Error{Kind: llm.KindUpstream, Message: "down"},
		&llm.Error{Kind: llm.KindUpstream, Message: "down"},
		&llm.Error{Kind: llm.KindUpstream, Message: "down"},
	}}
	f := newFixture(t, provider)

	conv, job := startTurn(t, f, "a question")
	f.worker.Handle(ctx, job)

	assert.Equal(t, 3, provider.calls)

	got, err := f.store.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)

	// No assistant message was persisted.
	messages, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleUser, messages[0].Role)
}

func TestHandleTurnIsIdempotent(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{results: []*llm.CompletionResult{result("the answer")}}
	f := newFixture(t, provider)

	conv, job := startTurn(t, f, "a question")
	f.worker.Handle(ctx, job)
	f.worker.Handle(ctx, job)

	// Redelivery must not duplicate the assistant reply.
	messages, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
	assert.Equal(t, 1, provider.calls)
}

func TestHandleTurnDropsMissingConversation(t *testing.T) {
	ctx := context.Background()
	provider := &scriptedProvider{}
	f := newFixture(t, provider)

	job := queue.NewJob(queue.KindTurn, "no-such-conversation", "user-1", "hello")
	f.worker.Handle(ctx, job)

	assert.Zero(t, provider.calls)
}

func TestTitleAutoGeneration(t *testing.T) {
	ctx := context.Background()

	t.Run("generated after first exchange", func(t *testing.T) {
		provider := &scriptedProvider{results: []*llm.CompletionResult{
			result("the answer"),
			result("Planning A Trip"),
		}}
		f := newFixture(t, provider)

		conv, err := f.store.CreateConversation(ctx, "user-1", "New Conversation")
		require.NoError(t, err)
		_, err = f.store.AppendUserTurn(ctx, "user-1", conv.ID, "help me plan a trip")
		require.NoError(t, err)

		f.worker.Handle(ctx, queue.NewJob(queue.KindTurn, conv.ID, "user-1", "help me plan a trip"))

		got, err := f.store.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "Planning A Trip", got.Title)
	})

	t.Run("long titles are bounded on rune boundaries", func(t *testing.T) {
		provider := &scriptedProvider{results: []*llm.CompletionResult{
			result("the answer"),
			result(strings.Repeat("é", 150)),
		}}
		f := newFixture(t, provider)

		conv, err := f.store.CreateConversation(ctx, "user-1", "New Conversation")
		require.NoError(t, err)
		_, err = f.store.AppendUserTurn(ctx, "user-1", conv.ID, "hello")
		require.NoError(t, err)

		f.worker.Handle(ctx, queue.NewJob(queue.KindTurn, conv.ID, "user-1", "hello"))

		got, err := f.store.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(got.Title))
		assert.Equal(t, 100, utf8.RuneCountInString(got.Title))
	})

	t.Run("custom titles are kept", func(t *testing.T) {
		provider := &scriptedProvider{results: []*llm.CompletionResult{result("the answer")}}
		f := newFixture(t, provider)

		conv, err := f.store.CreateConversation(ctx, "user-1", "My handpicked title")
		require.NoError(t, err)
		_, err = f.store.AppendUserTurn(ctx, "user-1", conv.ID, "hello")
		require.NoError(t, err)

		f.worker.Handle(ctx, queue.NewJob(queue.KindTurn, conv.ID, "user-1", "hello"))

		got, err := f.store.GetByID(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "My handpicked title", got.Title)
		// Only the turn completion called the provider.
		assert.Equal(t, 1, provider.calls)
	})
}

func TestHandleAnnotations(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, f *fixture) *model.Conversation {
		conv, err := f.store.CreateConversation(ctx, "user-1", "Chat")
		require.NoError(t, err)
		_, err = f.store.AppendUserTurn(ctx, "user-1", conv.ID, "let's talk about travel budgets")
		require.NoError(t, err)
		_, err = f.store.CompleteTurn(ctx, conv.ID, "sure, here is a plan", model.StatusCompleted)
		require.NoError(t, err)
		return conv
	}

	t.Run("summary is generated and cached", func(t *testing.T) {
		f := newFixture(t, &scriptedProvider{results: []*llm.CompletionResult{result("A chat about travel budgets.")}})
		conv := seed(t, f)

		f.worker.Handle(ctx, queue.NewJob(queue.KindSummary, conv.ID, "user-1", ""))

		summary, ok := f.cache.Get(cache.SummaryKey(conv.ID))
		require.True(t, ok)
		assert.Equal(t, "A chat about travel budgets.", summary)
	})

	t.Run("topics are parsed and cached", func(t *testing.T) {
		f := newFixture(t, &scriptedProvider{results: []*llm.CompletionResult{result("travel, budgets, planning")}})
		conv := seed(t, f)

		f.worker.Handle(ctx, queue.NewJob(queue.KindTopics, conv.ID, "user-1", ""))

		topics, ok := f.cache.GetStrings(cache.TopicsKey(conv.ID))
		require.True(t, ok)
		assert.Equal(t, []string{"travel", "budgets", "planning"}, topics)
	})

	t.Run("category is generated and cached", func(t *testing.T) {
		f := newFixture(t, &scriptedProvider{results: []*llm.CompletionResult{result("Personal")}})
		conv := seed(t, f)

		f.worker.Handle(ctx, queue.NewJob(queue.KindCategorize, conv.ID, "user-1", ""))

		category, ok := f.cache.Get(cache.CategoryKey(conv.ID))
		require.True(t, ok)
		assert.Equal(t, "Personal", category)
	})

	t.Run("empty conversation gets static fallbacks", func(t *testing.T) {
		provider := &scriptedProvider{}
		f := newFixture(t, provider)
		conv, err := f.store.CreateConversation(ctx, "user-1", "Empty")
		require.NoError(t, err)

		f.worker.Handle(ctx, queue.NewJob(queue.KindSummary, conv.ID, "user-1", ""))
		f.worker.Handle(ctx, queue.NewJob(queue.KindCategorize, conv.ID, "user-1", ""))

		summary, ok := f.cache.Get(cache.SummaryKey(conv.ID))
		require.True(t, ok)
		assert.Equal(t, "No messages in this conversation yet.", summary)

		category, ok := f.cache.Get(cache.CategoryKey(conv.ID))
		require.True(t, ok)
		assert.Equal(t, "General", category)

		assert.Zero(t, provider.calls)
	})
}

func TestConversationLockEntriesAreEvicted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &scriptedProvider{})

	conv, job := startTurn(t, f, "a question")
	f.worker.Handle(ctx, job)

	f.worker.locksMu.Lock()
	assert.Empty(t, f.worker.locks)
	f.worker.locksMu.Unlock()

	// Concurrent jobs on the same conversation share one entry and
	// still leave the map empty once both finish.
	var wg sync.WaitGroup
	for range [2]struct{}{} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.worker.Handle(ctx, queue.NewJob(queue.KindSummary, conv.ID, "user-1", ""))
		}()
	}
	wg.Wait()

	f.worker.locksMu.Lock()
	assert.Empty(t, f.worker.locks)
	f.worker.locksMu.Unlock()
}
