package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// StubProvider is a deterministic offline generator used in mock mode and
// in tests. Identical input always yields an identical reply.
type StubProvider struct{}

// NewStubProvider creates a new stub provider.
func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

// Name returns the provider name.
func (p *StubProvider) Name() string {
	return "stub"
}

var (
	stubGreeting = regexp.MustCompile(`(?i)\b(hi|hello|hey)\b`)
	stubHelp     = regexp.MustCompile(`(?i)\b(help|support|assist|problem|issue)\b`)
	stubCode     = regexp.MustCompile(`(?i)\b(go|golang|code|programming|api|database)\b`)
)

// Complete produces a contextual canned reply keyed off the last user
// message. Token usage is estimated at four characters per token.
func (p *StubProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResult, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindTimeout, Err: err}
	}

	var prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}

	content := p.reply(prompt)

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += (len(m.Content) + 3) / 4
	}
	completionTokens := (len(content) + 3) / 4

	return &CompletionResult{
		Content:          content,
		Model:            req.Config.Model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
	}, nil
}

func (p *StubProvider) reply(prompt string) string {
	switch {
	case stubGreeting.MatchString(prompt):
		return "Hello! I'm the offline assistant. Real completions are disabled in this environment, but the full conversation pipeline is running. How can I help?"
	case stubHelp.MatchString(prompt):
		return "I'd be happy to help. I'm running in offline mode, so my answers are simulated, but message handling, persistence and polling all behave exactly as in production."
	case stubCode.MatchString(prompt):
		return "That's a technical question. In offline mode I can't reason about it, but with a real provider configured you would get a detailed answer with code examples here."
	default:
		excerpt := prompt
		if runes := []rune(excerpt); len(runes) > 120 {
			excerpt = string(runes[:120]) + "..."
		}
		return fmt.Sprintf("I received your message: %q. This reply was generated by the offline stub provider.", strings.TrimSpace(excerpt))
	}
}
