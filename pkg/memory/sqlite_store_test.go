package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampstudio/recall/pkg/embedding"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(SQLiteConfig{
		DBPath:    filepath.Join(t.TempDir(), "recall.db"),
		Dimension: 16,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func embedText(t *testing.T, text string) []float32 {
	t.Helper()
	result, err := embedding.NewLocalProvider(16).Embed(context.Background(), text)
	require.NoError(t, err)
	return result.Vector
}

func seedFile(t *testing.T, store *SQLiteStore, path, content string) string {
	t.Helper()
	ctx := context.Background()

	fileID, err := store.UpsertFile(ctx, &MemoryFile{
		UserID:         "tester",
		Path:           path,
		Source:         SourceMemory,
		FileHash:       "hash-" + path,
		FileSizeBytes:  len(content),
		LineCount:      1,
		ChunkCount:     1,
		EmbeddingModel: "local-hash",
	})
	require.NoError(t, err)

	created, err := store.UpsertChunks(ctx, fileID, []ChunkRecord{{
		ChunkHash:      "chunk-" + path,
		ChunkIndex:     0,
		StartLine:      1,
		EndLine:        1,
		Content:        content,
		ContentPreview: content,
		Embedding:      embedText(t, content),
		EmbeddingModel: "local-hash",
		Source:         SourceMemory,
	}})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	return fileID
}

func TestSQLiteStore_RequiresDimension(t *testing.T) {
	_, err := NewSQLiteStore(SQLiteConfig{DBPath: ":memory:"})
	assert.Error(t, err)
}

func TestSQLiteStore_FileUpsertKeepsID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	file := &MemoryFile{
		UserID: "tester", Path: "a.md", Source: SourceMemory,
		FileHash: "h1", EmbeddingModel: "m",
	}
	id1, err := store.UpsertFile(ctx, file)
	require.NoError(t, err)

	file2 := &MemoryFile{
		UserID: "tester", Path: "a.md", Source: SourceMemory,
		FileHash: "h2", EmbeddingModel: "m",
	}
	id2, err := store.UpsertFile(ctx, file2)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "re-upsert keeps the row ID")

	got, err := store.GetFileByPath(ctx, "tester", "a.md", SourceMemory)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "h2", got.FileHash)
}

func TestSQLiteStore_GetFileByPath_Absent(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetFileByPath(context.Background(), "tester", "nope.md", SourceMemory)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_ChunkDedupe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	fileID := seedFile(t, store, "a.md", "hello world")

	// Same hash again: no new row.
	created, err := store.UpsertChunks(ctx, fileID, []ChunkRecord{{
		ChunkHash: "chunk-a.md", Content: "hello world", ContentPreview: "hello world",
		Embedding: embedText(t, "hello world"), Source: SourceMemory,
	}})
	require.NoError(t, err)
	assert.Zero(t, created)

	hashes, err := store.ChunkHashes(ctx, fileID)
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
}

func TestSQLiteStore_HybridSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedFile(t, store, "go.md", "golang channels and goroutines")
	seedFile(t, store, "cook.md", "baking sourdough bread at home")

	results, err := store.HybridSearch(ctx, HybridQuery{
		UserID:       "tester",
		QueryText:    "goroutines",
		QueryVector:  embedText(t, "golang channels and goroutines"),
		ResultCount:  5,
		VectorWeight: DefaultVectorWeight,
		BM25Weight:   DefaultBM25Weight,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "go.md", results[0].FilePath)
	assert.NotNil(t, results[0].VectorScore)
	assert.NotNil(t, results[0].BM25Score, "keyword match carries a bm25 score")
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].RelevanceScore, results[i].RelevanceScore)
	}
}

func TestSQLiteStore_HybridSearch_SourceFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	fileID, err := store.UpsertFile(ctx, &MemoryFile{
		UserID: "tester", Path: "s.md", Source: SourceSession,
		FileHash: "h", EmbeddingModel: "m",
	})
	require.NoError(t, err)
	_, err = store.UpsertChunks(ctx, fileID, []ChunkRecord{{
		ChunkHash: "c1", Content: "session transcript text",
		ContentPreview: "session transcript text",
		Embedding:      embedText(t, "session transcript text"),
		Source:         SourceSession,
	}})
	require.NoError(t, err)

	q := HybridQuery{
		UserID:       "tester",
		QueryText:    "transcript",
		QueryVector:  embedText(t, "transcript"),
		VectorWeight: DefaultVectorWeight,
		BM25Weight:   DefaultBM25Weight,
	}

	q.Sources = []Source{SourceMemory}
	results, err := store.HybridSearch(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, results)

	q.Sources = []Source{SourceSession}
	results, err = store.HybridSearch(ctx, q)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSQLiteStore_CandidateChunks(t *testing.T) {
	store := newTestStore(t)
	seedFile(t, store, "a.md", "alpha")
	seedFile(t, store, "b.md", "beta")

	candidates, err := store.CandidateChunks(context.Background(), "tester", nil, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		assert.Len(t, c.Embedding, 16)
		assert.NotEmpty(t, c.Path)
	}
}

func TestSQLiteStore_DeleteFileCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedFile(t, store, "a.md", "alpha")

	require.NoError(t, store.DeleteFile(ctx, "tester", "a.md", SourceMemory))

	files, chunks, err := store.Counts(ctx, "tester")
	require.NoError(t, err)
	assert.Zero(t, files)
	assert.Zero(t, chunks)

	candidates, err := store.CandidateChunks(ctx, "tester", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSQLiteStore_EmbeddingCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := embedding.CacheEntry{
		ContentHash: "hash-1",
		Provider:    "local",
		Model:       "local-hash",
		Vector:      []float32{0.1, 0.2},
		Dimensions:  2,
		TokenCount:  3,
	}
	require.NoError(t, store.Save(ctx, entry))

	loaded, err := store.LoadMany(ctx, "local", "local-hash", []string{"hash-1", "hash-2"})
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[embedding.CacheKey("local", "local-hash", "hash-1")]
	assert.Equal(t, []float32{0.1, 0.2}, got.Vector)
	assert.Equal(t, 3, got.TokenCount)

	// Re-save bumps the access count.
	require.NoError(t, store.Save(ctx, entry))
	loaded, err = store.LoadMany(ctx, "local", "local-hash", []string{"hash-1"})
	require.NoError(t, err)
	got = loaded[embedding.CacheKey("local", "local-hash", "hash-1")]
	assert.Equal(t, 2, got.AccessCount)
}

func TestSQLiteStore_SearchLog(t *testing.T) {
	store := newTestStore(t)

	err := store.InsertSearchLog(context.Background(), &SearchLog{
		ID:           "log-1",
		UserID:       "tester",
		Query:        "q",
		ResultsCount: 2,
		SearchType:   SearchModeHybrid,
		LatencyMs:    12,
		Provider:     "local",
	})
	assert.NoError(t, err)
}

func TestSQLiteStore_EphemeralRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertEphemeral(ctx, &EphemeralMemory{
		UserID: "tester", Date: now, Title: "today", Content: "worked on the indexer",
	}))
	require.NoError(t, store.InsertEphemeral(ctx, &EphemeralMemory{
		UserID: "tester", Date: now.AddDate(0, 0, -7), Content: "old entry",
	}))

	recent, err := store.RecentEphemeral(ctx, "tester", now.AddDate(0, 0, -RecentEphemeralDays), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "today", recent[0].Title)
}

func TestSQLiteStore_SessionUpsertBySlug(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &SessionMemory{
		UserID: "tester", SessionSlug: "standup", SessionDate: time.Now(),
		Content: "v1", EmbeddingModel: "m",
	}
	require.NoError(t, store.InsertSession(ctx, first, embedText(t, "v1")))

	second := &SessionMemory{
		UserID: "tester", SessionSlug: "standup", SessionDate: time.Now(),
		Content: "v2", EmbeddingModel: "m",
	}
	assert.NoError(t, store.InsertSession(ctx, second, embedText(t, "v2")))
}
