package embedding

import (
	"context"
)

// DefaultLocalDimension is the vector size the local provider produces when
// none is specified.
const DefaultLocalDimension = 384

const localModel = "local-hash"

// LocalProvider produces deterministic embeddings from a text hash without
// any network calls. It exists for development and tests; vectors carry no
// semantic signal beyond equality of input.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local stub provider with the given
// dimensionality.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = DefaultLocalDimension
	}
	return &LocalProvider{dimension: dimension}
}

func (p *LocalProvider) Name() string   { return ProviderLocal }
func (p *LocalProvider) Model() string  { return localModel }
func (p *LocalProvider) Dimension() int { return p.dimension }

func (p *LocalProvider) Embed(_ context.Context, text string) (*Result, error) {
	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}

	vector := make([]float32, p.dimension)
	for i := range vector {
		vector[i] = float32((hash+i)%100) / 100.0
	}

	return &Result{
		Vector:        vector,
		Provider:      ProviderLocal,
		Model:         localModel,
		Dimensions:    p.dimension,
		TokenEstimate: estimateTokens(text),
	}, nil
}

func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([]*Result, error) {
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
