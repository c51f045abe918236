// Package llm provides completion provider interfaces and implementations.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/parley-ai/chat-platform/pkg/logger"
	"github.com/parley-ai/chat-platform/pkg/metrics"
	"go.uber.org/zap"
)

// SystemPrompt is the fixed instruction prepended to every conversation
// turn sent upstream.
const SystemPrompt = "You are a highly knowledgeable and helpful AI assistant. " +
	"You can assist with a wide range of topics including programming, web development, " +
	"general knowledge, problem-solving, and creative tasks. When discussing code or " +
	"technical topics, provide clear explanations with practical examples. Be accurate, " +
	"concise, and adapt your responses to the user's level of understanding."

// GenerationConfig carries the generation parameters for a single call.
// It is resolved once at the request or job boundary and passed down
// explicitly; providers never consult global state.
type GenerationConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatMessage is one turn in the prompt sent upstream.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Messages []ChatMessage
	Config   GenerationConfig
}

// CompletionResult represents a completion response with token usage.
type CompletionResult struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	Cached           bool
}

// Provider is the interface for completion backends.
type Provider interface {
	// Complete sends a completion request and returns the response.
	// Failures are returned as *Error with a classified Kind.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error)

	// Name returns the provider name.
	Name() string
}

// Client wraps a Provider with the per-call timeout, the fixed system
// prompt, and the best-effort annotation helpers.
type Client struct {
	provider Provider
	defaults GenerationConfig
	timeout  time.Duration
	logger   *logger.Logger
}

// NewClient creates a completion client around provider.
func NewClient(provider Provider, defaults GenerationConfig, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		provider: provider,
		defaults: defaults,
		timeout:  timeout,
		logger:   log,
	}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.provider }

// Generate produces one assistant reply for a conversation turn. history
// is the recent message window in chronological order, with the new user
// message as its last element; the system prompt is prepended here.
func (c *Client) Generate(ctx context.Context, history []ChatMessage, cfg GenerationConfig) (*CompletionResult, error) {
	if cfg.Model == "" {
		cfg.Model = c.defaults.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = c.defaults.MaxTokens
	}

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: "system", Content: SystemPrompt})
	messages = append(messages, history...)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.provider.Complete(ctx, &CompletionRequest{Messages: messages, Config: cfg})
	if err != nil {
		metrics.RecordLLMCall(c.provider.Name(), cfg.Model, "error", 0, 0, 0)
		return nil, err
	}
	if res.Content == "" {
		metrics.RecordLLMCall(c.provider.Name(), cfg.Model, "error", 0, 0, 0)
		return nil, &Error{Kind: KindUpstream, Message: "empty completion"}
	}

	metrics.RecordLLMCall(c.provider.Name(), res.Model, "success",
		float64(res.LatencyMs)/1000, res.PromptTokens, res.CompletionTokens)

	if res.TotalTokens > 5000 {
		c.logger.Warn("high token usage detected",
			zap.String("model", res.Model),
			zap.Int("tokens", res.TotalTokens),
		)
	}

	return res, nil
}

// oneShot runs a single low-budget instruction call used by the
// annotation helpers.
func (c *Client) oneShot(ctx context.Context, instruction, input string, maxTokens int, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.provider.Complete(ctx, &CompletionRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: instruction},
			{Role: "user", Content: input},
		},
		Config: GenerationConfig{
			Model:       c.defaults.Model,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		},
	})
	if err != nil {
		return "", err
	}
	return res.Content, nil
}

// GenerateTitle produces a short title from a conversation excerpt. The
// second return value is false when generation failed and the existing
// title should be left unchanged.
func (c *Client) GenerateTitle(ctx context.Context, excerpt string) (string, bool) {
	out, err := c.oneShot(ctx,
		"Generate a short, concise title (max 6 words) for this conversation. Return only the title, no quotes or extra text.",
		"Conversation excerpt: "+excerpt,
		20, 0.7)
	if err != nil {
		c.logger.Error("failed to generate title", zap.Error(err))
		return "", false
	}
	return strings.Trim(strings.TrimSpace(out), `"'`), true
}

// Summarize produces a 2-3 sentence summary of a conversation transcript.
// On failure it degrades to a static notice.
func (c *Client) Summarize(ctx context.Context, transcript string) string {
	out, err := c.oneShot(ctx,
		"Summarize this conversation in 2-3 concise sentences. Focus on the main topics discussed and key points.",
		"Conversation:\n"+transcript,
		150, 0.5)
	if err != nil {
		c.logger.Error("failed to generate summary", zap.Error(err))
		return "Unable to generate summary at this time."
	}
	return out
}

// Categorize assigns the conversation one of a fixed category set. On
// failure it degrades to "General".
func (c *Client) Categorize(ctx context.Context, excerpt string) string {
	out, err := c.oneShot(ctx,
		"Categorize this conversation into ONE of these categories: Tech, Programming, Personal, Work, Education, Creative, Other. Return only the category name.",
		"Conversation: "+excerpt,
		10, 0.3)
	if err != nil {
		c.logger.Error("failed to categorize conversation", zap.Error(err))
		return "General"
	}
	return strings.TrimSpace(out)
}

// ExtractTopics extracts 3-5 key topics from a transcript. On failure it
// degrades to an empty list.
func (c *Client) ExtractTopics(ctx context.Context, transcript string) []string {
	out, err := c.oneShot(ctx,
		"Extract 3-5 key topics from this conversation. Return as comma-separated list. Be concise.",
		"Conversation: "+transcript,
		50, 0.5)
	if err != nil {
		c.logger.Error("failed to extract topics", zap.Error(err))
		return nil
	}

	var topics []string
	for _, t := range strings.Split(out, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
