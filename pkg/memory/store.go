package memory

import (
	"context"
	"time"
)

// HybridQuery is the input to an in-store ranked search. The store combines
// vector distance and keyword relevance itself; callers only pick weights.
type HybridQuery struct {
	UserID       string
	QueryText    string
	QueryVector  []float32
	ResultCount  int
	Sources      []Source
	VectorWeight float64
	BM25Weight   float64
}

// Store is the persistence boundary of the engine. The bundled
// implementation is SQLite with sqlite-vec and FTS5; anything satisfying
// this interface can back the engine.
type Store interface {
	// GetFileByPath returns the file row for (user, path, source), or
	// (nil, nil) when no such file exists.
	GetFileByPath(ctx context.Context, userID, path string, source Source) (*MemoryFile, error)

	// UpsertFile inserts or updates a file row keyed by (user, path,
	// source) and returns the row ID.
	UpsertFile(ctx context.Context, file *MemoryFile) (string, error)

	// ChunkHashes returns the set of chunk hashes already stored for a
	// file, keyed by hash.
	ChunkHashes(ctx context.Context, fileID string) (map[string]struct{}, error)

	// UpsertChunks stores chunk records for a file and returns how many
	// rows were newly created. Existing (file, hash) pairs are left
	// untouched.
	UpsertChunks(ctx context.Context, fileID string, records []ChunkRecord) (int, error)

	// DeleteChunksExcept removes chunk rows for a file whose hash is not
	// in keep, returning the number removed.
	DeleteChunksExcept(ctx context.Context, fileID string, keep map[string]struct{}) (int, error)

	// DeleteFile removes a file row and its chunks.
	DeleteFile(ctx context.Context, userID, path string, source Source) error

	// ListFilePaths returns the paths of all files stored for a user and
	// source.
	ListFilePaths(ctx context.Context, userID string, source Source) ([]string, error)

	// HybridSearch runs the combined vector + keyword ranking inside the
	// datastore and returns results sorted by relevance.
	HybridSearch(ctx context.Context, q HybridQuery) ([]SearchResult, error)

	// CandidateChunks returns stored chunks with their embeddings for
	// local fallback scoring.
	CandidateChunks(ctx context.Context, userID string, sources []Source, limit int) ([]CandidateChunk, error)

	// InsertSearchLog records one query. Append-only.
	InsertSearchLog(ctx context.Context, log *SearchLog) error

	// Counts returns the number of files and chunks stored for a user.
	Counts(ctx context.Context, userID string) (files, chunks int, err error)

	InsertEphemeral(ctx context.Context, m *EphemeralMemory) error
	InsertDurable(ctx context.Context, m *DurableMemory, embedding []float32) error
	InsertSession(ctx context.Context, m *SessionMemory, embedding []float32) error

	// RecentEphemeral returns ephemeral entries newer than the cutoff,
	// most recent first.
	RecentEphemeral(ctx context.Context, userID string, since time.Time, limit int) ([]EphemeralMemory, error)

	Close() error
}
