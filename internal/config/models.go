package config

// ModelPricing holds per-1K-token prices in USD. Free-tier providers
// leave both at zero.
type ModelPricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// ModelInfo describes one selectable chat model.
type ModelInfo struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Description   string       `json:"description"`
	Pricing       ModelPricing `json:"pricing"`
	MaxTokens     int          `json:"max_tokens"`
	ContextWindow int          `json:"context_window"`
	Enabled       bool         `json:"enabled"`
}

// ModelCatalog is the set of models the platform knows about. Disabled
// entries are hidden from the models endpoint and rejected on request.
var ModelCatalog = []ModelInfo{
	{
		ID:            "gpt-4o-mini",
		Name:          "GPT-4o Mini",
		Description:   "Fast, affordable model for everyday tasks.",
		Pricing:       ModelPricing{Input: 0.00015, Output: 0.0006},
		MaxTokens:     16384,
		ContextWindow: 128000,
		Enabled:       true,
	},
	{
		ID:            "gpt-4o",
		Name:          "GPT-4o",
		Description:   "Balanced performance and capability.",
		Pricing:       ModelPricing{Input: 0.0025, Output: 0.010},
		MaxTokens:     16384,
		ContextWindow: 128000,
		Enabled:       true,
	},
	{
		ID:            "gpt-4-turbo",
		Name:          "GPT-4 Turbo",
		Description:   "Most capable OpenAI model.",
		Pricing:       ModelPricing{Input: 0.010, Output: 0.030},
		MaxTokens:     4096,
		ContextWindow: 128000,
		Enabled:       false,
	},
	{
		ID:            "llama-3.3-70b-versatile",
		Name:          "Llama 3.3 70B",
		Description:   "Groq-hosted Llama, free tier.",
		MaxTokens:     8192,
		ContextWindow: 128000,
		Enabled:       true,
	},
	{
		ID:            "claude-3-5-sonnet-20241022",
		Name:          "Claude 3.5 Sonnet",
		Description:   "Anthropic general-purpose model.",
		Pricing:       ModelPricing{Input: 0.003, Output: 0.015},
		MaxTokens:     8192,
		ContextWindow: 200000,
		Enabled:       true,
	},
	{
		ID:            "claude-3-5-haiku-20241022",
		Name:          "Claude 3.5 Haiku",
		Description:   "Fast, low-cost Anthropic model.",
		Pricing:       ModelPricing{Input: 0.0008, Output: 0.004},
		MaxTokens:     8192,
		ContextWindow: 200000,
		Enabled:       true,
	},
}

// EnabledModels returns the catalog entries that are enabled.
func EnabledModels() []ModelInfo {
	var out []ModelInfo
	for _, m := range ModelCatalog {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// LookupModel returns the catalog entry for id, if present and enabled.
func LookupModel(id string) (ModelInfo, bool) {
	for _, m := range ModelCatalog {
		if m.ID == id && m.Enabled {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// EstimateCost returns the estimated USD cost of a call against the
// catalog pricing. Unknown models and free-tier models cost zero.
func EstimateCost(modelID string, tokensIn, tokensOut int) float64 {
	m, ok := LookupModel(modelID)
	if !ok {
		return 0
	}
	return float64(tokensIn)/1000*m.Pricing.Input + float64(tokensOut)/1000*m.Pricing.Output
}
