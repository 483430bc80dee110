package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ampstudio/recall/internal/observability"
	"github.com/ampstudio/recall/pkg/chunk"
	"github.com/ampstudio/recall/pkg/embedding"
)

// RecentEphemeralDays is the default lookback window for ephemeral recall.
const RecentEphemeralDays = 2

// Engine is the composition root: it owns the embedder, wires the indexer,
// search engine, and metrics collector to one store, and exposes the record
// operations.
type Engine struct {
	Indexer *Indexer
	Search  *SearchEngine
	Metrics *Collector

	owner    string
	store    Store
	embedder *embedding.CachedEmbedder
	logger   zerolog.Logger
}

// EngineConfig holds engine dependencies. Store and Provider are required.
type EngineConfig struct {
	Owner    string
	Store    Store
	Provider embedding.Provider

	// Cache is optional; when nil a two-tier cache is built with the
	// store as its persistent tier if the store implements
	// embedding.PersistentCache.
	Cache *embedding.Cache

	Chunking        chunk.Config
	VectorWeight    float64
	BM25Weight      float64
	SnippetMaxChars int
	Logger          zerolog.Logger
}

// NewEngine wires the full engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if cfg.Owner == "" {
		return nil, errors.New("owner is required")
	}

	cache := cfg.Cache
	if cache == nil {
		var persistent embedding.PersistentCache
		if pc, ok := cfg.Store.(embedding.PersistentCache); ok {
			persistent = pc
		}
		cache = embedding.NewCache(persistent, cfg.Logger)
	}

	embedder := embedding.NewCachedEmbedder(cfg.Provider, cache, cfg.Logger)
	collector := NewCollector()
	embedder.SetCacheObserver(collector.RecordEmbedding)

	indexer, err := NewIndexer(IndexerConfig{
		Owner:     cfg.Owner,
		Store:     cfg.Store,
		Embedder:  embedder,
		Chunking:  cfg.Chunking,
		Logger:    cfg.Logger,
		Collector: collector,
	})
	if err != nil {
		return nil, err
	}

	search, err := NewSearchEngine(SearchConfig{
		Owner:           cfg.Owner,
		Store:           cfg.Store,
		Embedder:        embedder,
		VectorWeight:    cfg.VectorWeight,
		BM25Weight:      cfg.BM25Weight,
		SnippetMaxChars: cfg.SnippetMaxChars,
		Logger:          cfg.Logger,
		Collector:       collector,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Indexer:  indexer,
		Search:   search,
		Metrics:  collector,
		owner:    cfg.Owner,
		store:    cfg.Store,
		embedder: embedder,
		logger:   cfg.Logger,
	}, nil
}

// ProviderName reports which embedding provider the engine was wired with.
func (e *Engine) ProviderName() string {
	return e.embedder.Provider().Name()
}

// CreateEphemeral stores a dated log entry and indexes its content so it is
// searchable immediately.
func (e *Engine) CreateEphemeral(ctx context.Context, date time.Time, title, content string) (*EphemeralMemory, error) {
	if content == "" {
		return nil, errors.New("content is required")
	}

	m := &EphemeralMemory{
		UserID:  e.owner,
		Date:    date,
		Title:   title,
		Content: content,
	}
	if err := e.store.InsertEphemeral(ctx, m); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("ephemeral/%s.md", date.Format("2006-01-02"))
	if _, err := e.Indexer.IndexFile(ctx, path, content, SourceMemory); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("Failed to index ephemeral memory")
	}
	return m, nil
}

// CreateDurable stores a curated fact with its own embedding and indexes it
// under the durable source.
func (e *Engine) CreateDurable(ctx context.Context, category DurableCategory, title, content string, importance float64) (*DurableMemory, error) {
	if title == "" || content == "" {
		return nil, errors.New("title and content are required")
	}
	if importance <= 0 {
		importance = 0.5
	}

	result, err := e.embedder.Embed(ctx, title+"\n"+content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed durable memory: %w", err)
	}

	m := &DurableMemory{
		UserID:          e.owner,
		Category:        category,
		Title:           title,
		Content:         content,
		ImportanceScore: importance,
		EmbeddingModel:  result.Model,
	}
	if err := e.store.InsertDurable(ctx, m, result.Vector); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("durable/%s/%s.md", category, m.ID)
	if _, err := e.Indexer.IndexFile(ctx, path, title+"\n\n"+content, SourceDurable); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("Failed to index durable memory")
	}
	return m, nil
}

// CreateSession stores a conversation transcript, replacing any earlier
// transcript with the same slug.
func (e *Engine) CreateSession(ctx context.Context, slug string, date time.Time, title, content string, messageCount int) (*SessionMemory, error) {
	if slug == "" || content == "" {
		return nil, errors.New("slug and content are required")
	}

	result, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed session memory: %w", err)
	}

	m := &SessionMemory{
		UserID:         e.owner,
		SessionSlug:    slug,
		SessionDate:    date,
		Title:          title,
		Content:        content,
		MessageCount:   messageCount,
		TokenCount:     result.TokenEstimate,
		EmbeddingModel: result.Model,
	}
	if err := e.store.InsertSession(ctx, m, result.Vector); err != nil {
		return nil, err
	}

	path := fmt.Sprintf("sessions/%s.md", slug)
	if _, err := e.Indexer.IndexFile(ctx, path, content, SourceSession); err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("Failed to index session memory")
	}
	return m, nil
}

// RecentEphemeral returns the last days of ephemeral entries, most recent
// first.
func (e *Engine) RecentEphemeral(ctx context.Context, days, limit int) ([]EphemeralMemory, error) {
	if days <= 0 {
		days = RecentEphemeralDays
	}
	if limit <= 0 {
		limit = 10
	}
	since := time.Now().AddDate(0, 0, -days)
	return e.store.RecentEphemeral(ctx, e.owner, since, limit)
}

// Status reports stored totals and the embedding cache hit rate.
func (e *Engine) Status(ctx context.Context) (*EngineStatus, error) {
	files, chunks, err := e.store.Counts(ctx, e.owner)
	if err != nil {
		return nil, err
	}

	observability.SetMemoryEntries(chunks)

	return &EngineStatus{
		TotalFiles:            files,
		TotalChunks:           chunks,
		EmbeddingCacheHitRate: e.Metrics.CacheHitRate(),
	}, nil
}
