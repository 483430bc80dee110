package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ampstudio/recall/internal/observability"
	"github.com/ampstudio/recall/internal/tracing"
	"github.com/ampstudio/recall/pkg/embedding"
)

// SearchEngine answers queries. The primary path delegates ranking to the
// store's hybrid search; when that fails, a local vector-only fallback scores
// stored candidates in process so reads keep working.
type SearchEngine struct {
	owner        string
	store        Store
	embedder     *embedding.CachedEmbedder
	vectorWeight float64
	bm25Weight   float64
	snippetChars int
	logger       zerolog.Logger
	collector    *Collector
}

// SearchConfig holds search engine dependencies. Store and Embedder are
// required; weights default to 0.7 vector / 0.3 keyword.
type SearchConfig struct {
	Owner           string
	Store           Store
	Embedder        *embedding.CachedEmbedder
	VectorWeight    float64
	BM25Weight      float64
	SnippetMaxChars int
	Logger          zerolog.Logger
	Collector       *Collector // optional
}

// NewSearchEngine validates dependencies and builds a search engine.
func NewSearchEngine(cfg SearchConfig) (*SearchEngine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if cfg.VectorWeight <= 0 {
		cfg.VectorWeight = DefaultVectorWeight
	}
	if cfg.BM25Weight <= 0 {
		cfg.BM25Weight = DefaultBM25Weight
	}
	if cfg.SnippetMaxChars <= 0 {
		cfg.SnippetMaxChars = DefaultSnippetMaxChars
	}

	return &SearchEngine{
		owner:        cfg.Owner,
		store:        cfg.Store,
		embedder:     cfg.Embedder,
		vectorWeight: cfg.VectorWeight,
		bm25Weight:   cfg.BM25Weight,
		snippetChars: cfg.SnippetMaxChars,
		logger:       cfg.Logger,
		collector:    cfg.Collector,
	}, nil
}

// Search embeds the query, ranks stored chunks, and returns snippet-truncated
// results. An empty corpus yields an empty result set, not an error.
func (se *SearchEngine) Search(ctx context.Context, input SearchInput) (*SearchResponse, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"recall.memory",
		"memory.search",
		attribute.String("query", input.Query),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, se.logger)
	start := time.Now()
	defer func() { observability.RecordMemorySearch(time.Since(start)) }()

	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	provider := se.embedder.Provider()

	if input.Query == "" {
		return &SearchResponse{
			Results:  []SearchResult{},
			Provider: provider.Name(),
			Model:    provider.Model(),
		}, nil
	}

	queryResult, err := se.embedder.Embed(ctx, input.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return nil, err
	}

	mode := SearchModeHybrid
	results, err := se.store.HybridSearch(ctx, HybridQuery{
		UserID:       se.owner,
		QueryText:    input.Query,
		QueryVector:  queryResult.Vector,
		ResultCount:  maxResults,
		Sources:      input.Sources,
		VectorWeight: se.vectorWeight,
		BM25Weight:   se.bm25Weight,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Hybrid search failed, falling back to vector-only ranking")
		mode = SearchModeVectorFallback
		results, err = se.vectorFallback(ctx, queryResult.Vector, input.Sources, maxResults)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fallback search failed")
			return nil, err
		}
	}

	if input.MinScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.RelevanceScore >= input.MinScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	for i := range results {
		if len(results[i].Content) > se.snippetChars {
			results[i].Content = results[i].Content[:se.snippetChars]
		}
	}

	elapsed := time.Since(start)

	observability.RecordSearchMode(string(mode))
	se.logSearch(ctx, logger, input.Query, results, mode, elapsed, provider.Name())

	if se.collector != nil {
		se.collector.RecordSearch(results, elapsed.Milliseconds())
	}

	logger.Debug().
		Str("query", input.Query).
		Int("results", len(results)).
		Str("mode", string(mode)).
		Msg("Search completed")

	return &SearchResponse{
		Results:      results,
		Provider:     provider.Name(),
		Model:        provider.Model(),
		TotalResults: len(results),
		LatencyMs:    elapsed.Milliseconds(),
	}, nil
}

// vectorFallback scores stored candidates in process: cosine similarity
// weighted by the vector weight, no keyword component.
func (se *SearchEngine) vectorFallback(ctx context.Context, queryVector []float32, sources []Source, maxResults int) ([]SearchResult, error) {
	candidates, err := se.store.CandidateChunks(ctx, se.owner, sources, maxResults*fallbackCandidateFactor)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		sim := embedding.CosineSimilarity(queryVector, c.Embedding)
		score := sim * se.vectorWeight
		v := sim
		results = append(results, SearchResult{
			ChunkID:        c.ID,
			FilePath:       c.Path,
			Content:        c.Content,
			StartLine:      c.StartLine,
			EndLine:        c.EndLine,
			RelevanceScore: score,
			VectorScore:    &v,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].RelevanceScore != results[j].RelevanceScore {
			return results[i].RelevanceScore > results[j].RelevanceScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// logSearch records the query in the audit log. Failures are logged and
// swallowed; a lost log line never fails a search.
func (se *SearchEngine) logSearch(ctx context.Context, logger zerolog.Logger, query string, results []SearchResult, mode SearchMode, elapsed time.Duration, provider string) {
	id, err := gonanoid.New()
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to generate search log id")
		return
	}

	if len(query) > maxLoggedQueryChars {
		query = query[:maxLoggedQueryChars]
	}

	var avg float64
	if len(results) > 0 {
		var sum float64
		for _, r := range results {
			sum += r.RelevanceScore
		}
		avg = sum / float64(len(results))
	}

	err = se.store.InsertSearchLog(ctx, &SearchLog{
		ID:                id,
		UserID:            se.owner,
		Query:             query,
		ResultsCount:      len(results),
		AvgRelevanceScore: avg,
		SearchType:        mode,
		LatencyMs:         elapsed.Milliseconds(),
		Provider:          provider,
		CreatedAt:         time.Now(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to write search log")
	}
}
