package embedding

import (
	"context"
)

// Provider names understood by the engine.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Result is one computed embedding.
type Result struct {
	Vector        []float32 `json:"vector"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Dimensions    int       `json:"dimensions"`
	TokenEstimate int       `json:"token_estimate"`
}

// Provider generates vector embeddings from text.
//
// Implementations truncate input to their own character budget before the
// upstream call and never cache; caching is the CachedEmbedder's concern.
type Provider interface {
	Embed(ctx context.Context, text string) (*Result, error)
	EmbedBatch(ctx context.Context, texts []string) ([]*Result, error)
	Name() string
	Model() string
	Dimension() int
}

// NewProvider constructs the named provider variant. The credential is
// required for remote variants and ignored by the local one.
func NewProvider(name, apiKey string) (Provider, error) {
	switch name {
	case ProviderGemini, "":
		return NewGeminiProvider(apiKey)
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey)
	case ProviderLocal:
		return NewLocalProvider(DefaultLocalDimension), nil
	default:
		return nil, &ConfigurationError{Field: "provider", Message: "unknown embedding provider: " + name}
	}
}

// estimateTokens approximates token usage at 4 characters per token.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// truncate cuts text to a hard character budget. Upstream token ceilings are
// enforced with a plain cutoff, not a word-aware one.
func truncate(text string, maxChars int) string {
	if len(text) > maxChars {
		return text[:maxChars]
	}
	return text
}
