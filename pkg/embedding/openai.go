package embedding

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openaiEmbeddingModel = "text-embedding-3-small"
	openaiDimension      = 1536

	// The model accepts 8191 tokens; a hard character cutoff keeps us under.
	openaiMaxChars = 8000
)

// OpenAIProvider implements Provider using the OpenAI embeddings endpoint.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates an OpenAI embedding provider. The API key is
// required.
func NewOpenAIProvider(apiKey string, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Field: "openai_api_key", Message: "credential is not configured"}
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
	}, nil
}

func (p *OpenAIProvider) Name() string   { return ProviderOpenAI }
func (p *OpenAIProvider) Model() string  { return openaiEmbeddingModel }
func (p *OpenAIProvider) Dimension() int { return openaiDimension }

func (p *OpenAIProvider) Embed(ctx context.Context, text string) (*Result, error) {
	truncated := truncate(text, openaiMaxChars)

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModelTextEmbedding3Small,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(truncated),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, &ProviderError{
				Provider:   ProviderOpenAI,
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.Error(),
				Err:        err,
			}
		}
		return nil, &ProviderError{Provider: ProviderOpenAI, Err: err}
	}

	if len(resp.Data) == 0 {
		return nil, &ProviderError{Provider: ProviderOpenAI, Body: "response contained no embeddings"}
	}

	raw := resp.Data[0].Embedding
	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}

	tokens := estimateTokens(truncated)
	if resp.Usage.TotalTokens > 0 {
		tokens = int(resp.Usage.TotalTokens)
	}

	return &Result{
		Vector:        vector,
		Provider:      ProviderOpenAI,
		Model:         openaiEmbeddingModel,
		Dimensions:    len(vector),
		TokenEstimate: tokens,
	}, nil
}

// EmbedBatch embeds texts one at a time, preserving input order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Result, error) {
	results := make([]*Result, len(texts))
	for i, text := range texts {
		r, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = r
	}
	return results, nil
}
