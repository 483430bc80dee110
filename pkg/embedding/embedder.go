package embedding

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ampstudio/recall/internal/observability"
	"github.com/ampstudio/recall/pkg/chunk"
)

// CachedEmbedder layers the two-tier cache over a Provider: local tier,
// persistent tier, then the upstream API, writing through on a miss.
type CachedEmbedder struct {
	provider Provider
	cache    *Cache
	logger   zerolog.Logger
	observer func(cacheHit bool)
}

// NewCachedEmbedder wires a provider to a cache.
func NewCachedEmbedder(provider Provider, cache *Cache, logger zerolog.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		provider: provider,
		cache:    cache,
		logger:   logger,
	}
}

// SetCacheObserver registers a callback invoked once per embedded text with
// whether the vector came from cache. Used by the metrics collector.
func (e *CachedEmbedder) SetCacheObserver(fn func(cacheHit bool)) {
	e.observer = fn
}

// Provider exposes the wrapped provider.
func (e *CachedEmbedder) Provider() Provider {
	return e.provider
}

// Embed returns the embedding for text, consulting the cache first.
func (e *CachedEmbedder) Embed(ctx context.Context, text string) (*Result, error) {
	hash := chunk.HashContent(text)

	if vector, ok := e.cache.Get(ctx, hash, e.provider.Name(), e.provider.Model()); ok {
		e.observe(true)
		return &Result{
			Vector:        vector,
			Provider:      e.provider.Name(),
			Model:         e.provider.Model(),
			Dimensions:    len(vector),
			TokenEstimate: estimateTokens(text),
		}, nil
	}

	e.observe(false)
	result, err := e.callProvider(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Put(ctx, hash, result.Provider, result.Model, result.Vector, result.TokenEstimate)
	return result, nil
}

// EmbedBatch embeds texts, loading the persistent cache tier once for the
// whole batch. Results are returned in input order regardless of how cache
// hits and provider calls interleave.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Result, error) {
	hashes := make([]string, len(texts))
	for i, text := range texts {
		hashes[i] = chunk.HashContent(text)
	}

	warmed := e.cache.LoadMany(ctx, hashes, e.provider.Name(), e.provider.Model())

	results := make([]*Result, len(texts))
	for i, text := range texts {
		if vector, ok := warmed[hashes[i]]; ok {
			e.observe(true)
			results[i] = &Result{
				Vector:        vector,
				Provider:      e.provider.Name(),
				Model:         e.provider.Model(),
				Dimensions:    len(vector),
				TokenEstimate: estimateTokens(text),
			}
			continue
		}

		e.observe(false)
		result, err := e.callProvider(ctx, text)
		if err != nil {
			return nil, err
		}
		e.cache.Put(ctx, hashes[i], result.Provider, result.Model, result.Vector, result.TokenEstimate)
		results[i] = result
	}

	return results, nil
}

func (e *CachedEmbedder) callProvider(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	result, err := e.provider.Embed(ctx, text)
	observability.RecordEmbeddingRequest(e.provider.Name(), time.Since(start), err == nil)
	return result, err
}

func (e *CachedEmbedder) observe(hit bool) {
	if e.observer != nil {
		e.observer(hit)
	}
}
