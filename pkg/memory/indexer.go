package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ampstudio/recall/internal/observability"
	"github.com/ampstudio/recall/internal/tracing"
	"github.com/ampstudio/recall/pkg/chunk"
	"github.com/ampstudio/recall/pkg/embedding"
)

const previewMaxChars = 200

// Indexer writes files into the store: chunk, diff against stored hashes,
// embed only the new chunks, persist. Concurrent calls for the same
// (path, source) are serialized; distinct files index in parallel.
type Indexer struct {
	owner     string
	store     Store
	embedder  *embedding.CachedEmbedder
	chunking  chunk.Config
	logger    zerolog.Logger
	collector *Collector

	locks sync.Map // "source:path" -> *sync.Mutex
}

// IndexerConfig holds indexer dependencies. Store and Embedder are required.
type IndexerConfig struct {
	Owner     string
	Store     Store
	Embedder  *embedding.CachedEmbedder
	Chunking  chunk.Config
	Logger    zerolog.Logger
	Collector *Collector // optional
}

// NewIndexer validates dependencies and builds an indexer.
func NewIndexer(cfg IndexerConfig) (*Indexer, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Owner == "" {
		return nil, errors.New("owner is required")
	}
	if cfg.Chunking.TargetTokens <= 0 {
		cfg.Chunking = chunk.DefaultConfig()
	}

	return &Indexer{
		owner:     cfg.Owner,
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		chunking:  cfg.Chunking,
		logger:    cfg.Logger,
		collector: cfg.Collector,
	}, nil
}

// IndexFile indexes one logical file. Unchanged content (same hash) is a
// no-op; changed content embeds only chunks whose hash is new for the file.
func (ix *Indexer) IndexFile(ctx context.Context, path, content string, source Source) (*IndexResult, error) {
	if path == "" {
		return nil, errors.New("path is required")
	}
	if !ValidSource(source) {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"recall.memory",
		"memory.index_file",
		attribute.String("path", path),
		attribute.String("source", string(source)),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, ix.logger)
	start := time.Now()
	defer func() { observability.RecordMemoryWrite(time.Since(start)) }()

	// Serialize per (source, path); distinct files proceed in parallel.
	key := string(source) + ":" + path
	lockAny, _ := ix.locks.LoadOrStore(key, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	fileHash := chunk.HashContent(content)

	existing, err := ix.store.GetFileByPath(ctx, ix.owner, path, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file lookup failed")
		return nil, err
	}

	if existing != nil && existing.FileHash == fileHash {
		logger.Debug().Str("path", path).Msg("File unchanged, skipping")
		return &IndexResult{
			FileID: existing.ID,
			TimeMs: time.Since(start).Milliseconds(),
		}, nil
	}

	chunks := chunk.Split(content, ix.chunking)

	var existingHashes map[string]struct{}
	if existing != nil {
		existingHashes, err = ix.store.ChunkHashes(ctx, existing.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chunk hash lookup failed")
			return nil, err
		}
	}
	newChunks := chunk.FilterNew(chunks, existingHashes)

	var vectors []*embedding.Result
	if len(newChunks) > 0 {
		texts := make([]string, len(newChunks))
		for i, c := range newChunks {
			texts[i] = c.Content
		}
		vectors, err = ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "embedding failed")
			return nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
	}

	provider := ix.embedder.Provider()
	file := &MemoryFile{
		UserID:         ix.owner,
		Path:           path,
		Source:         source,
		FileHash:       fileHash,
		FileSizeBytes:  len(content),
		LineCount:      lineCount(content),
		ChunkCount:     len(chunks),
		EmbeddingModel: provider.Model(),
		LastIndexedAt:  time.Now(),
	}
	if existing != nil {
		file.ID = existing.ID
	}

	fileID, err := ix.store.UpsertFile(ctx, file)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file upsert failed")
		return nil, err
	}

	records := make([]ChunkRecord, len(newChunks))
	for i, c := range newChunks {
		records[i] = ChunkRecord{
			FileID:         fileID,
			ChunkHash:      c.Hash,
			ChunkIndex:     c.Index,
			StartLine:      c.StartLine,
			EndLine:        c.EndLine,
			Content:        c.Content,
			ContentPreview: preview(c.Content),
			Embedding:      vectors[i].Vector,
			EmbeddingModel: vectors[i].Model,
			Source:         source,
		}
	}

	created, err := ix.store.UpsertChunks(ctx, fileID, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chunk upsert failed")
		return nil, err
	}

	// Drop rows for chunks the new content no longer produces.
	keep := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		keep[c.Hash] = struct{}{}
	}
	if _, err := ix.store.DeleteChunksExcept(ctx, fileID, keep); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stale chunk cleanup failed")
		return nil, err
	}

	elapsed := time.Since(start)
	if ix.collector != nil {
		ix.collector.RecordWrite(elapsed.Milliseconds())
	}

	result := &IndexResult{
		FileID:              fileID,
		ChunksCreated:       created,
		ChunksUpdated:       len(newChunks) - created,
		EmbeddingsGenerated: len(newChunks),
		TimeMs:              elapsed.Milliseconds(),
	}

	logger.Info().
		Str("path", path).
		Str("source", string(source)).
		Int("chunks", len(chunks)).
		Int("embedded", len(newChunks)).
		Int64("ms", result.TimeMs).
		Msg("File indexed")

	return result, nil
}

// RemoveFile deletes a file and its chunks from the store.
func (ix *Indexer) RemoveFile(ctx context.Context, path string, source Source) error {
	key := string(source) + ":" + path
	lockAny, _ := ix.locks.LoadOrStore(key, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	return ix.store.DeleteFile(ctx, ix.owner, path, source)
}

func lineCount(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

func preview(content string) string {
	if len(content) <= previewMaxChars {
		return content
	}
	return content[:previewMaxChars]
}
