package memory

import (
	"time"
)

// Default configuration surface of the engine.
const (
	DefaultVectorWeight    = 0.7
	DefaultBM25Weight      = 0.3
	DefaultMaxResults      = 6
	DefaultSnippetMaxChars = 700

	// Candidate multiplier for the vector-only fallback path.
	fallbackCandidateFactor = 4

	// Queries are clipped before being written to the search log.
	maxLoggedQueryChars = 500
)

// Source is the closed set of origins for indexed content: ephemeral logs,
// durable curated facts, and session transcripts.
type Source string

const (
	SourceMemory  Source = "memory"
	SourceDurable Source = "durable"
	SourceSession Source = "session"
)

// ValidSource reports whether s is a known source category.
func ValidSource(s Source) bool {
	switch s {
	case SourceMemory, SourceDurable, SourceSession:
		return true
	}
	return false
}

// SearchMode records which ranking path produced a result set.
type SearchMode string

const (
	SearchModeHybrid         SearchMode = "hybrid"
	SearchModeVectorFallback SearchMode = "vector_fallback"
)

// MemoryFile is a logical named unit of indexed content. (user, path, source)
// is unique; re-indexing with an unchanged hash is a no-op.
type MemoryFile struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Path           string    `json:"path"`
	Source         Source    `json:"source"`
	FileHash       string    `json:"file_hash"`
	FileSizeBytes  int       `json:"file_size_bytes"`
	LineCount      int       `json:"line_count"`
	ChunkCount     int       `json:"chunk_count"`
	EmbeddingModel string    `json:"embedding_model"`
	LastIndexedAt  time.Time `json:"last_indexed_at"`
}

// ChunkRecord is a persisted chunk bound to a MemoryFile, carrying its
// embedding. (file, chunk hash) is unique; records are superseded, never
// mutated.
type ChunkRecord struct {
	ID             string    `json:"id"`
	FileID         string    `json:"file_id"`
	ChunkHash      string    `json:"chunk_hash"`
	ChunkIndex     int       `json:"chunk_index"`
	StartLine      int       `json:"start_line"`
	EndLine        int       `json:"end_line"`
	Content        string    `json:"content"`
	ContentPreview string    `json:"content_preview"`
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	Source         Source    `json:"source"`
}

// CandidateChunk is a chunk row fetched for local fallback ranking.
type CandidateChunk struct {
	ID        string
	Path      string
	Content   string
	StartLine int
	EndLine   int
	Embedding []float32
	BM25Score *float64
}

// SearchInput describes one query.
type SearchInput struct {
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results,omitempty"`
	MinScore   float64  `json:"min_score,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
}

// SearchResult is one ranked chunk. BM25Score is absent on the vector-only
// fallback path.
type SearchResult struct {
	ChunkID        string   `json:"chunk_id"`
	FilePath       string   `json:"file_path"`
	Content        string   `json:"content"`
	StartLine      int      `json:"start_line"`
	EndLine        int      `json:"end_line"`
	RelevanceScore float64  `json:"relevance_score"`
	VectorScore    *float64 `json:"vector_score,omitempty"`
	BM25Score      *float64 `json:"bm25_score,omitempty"`
}

// SearchResponse is the shaped answer to one query.
type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	TotalResults int            `json:"total_results"`
	LatencyMs    int64          `json:"latency_ms"`
}

// IndexResult reports the work one IndexFile call performed.
type IndexResult struct {
	FileID              string `json:"file_id"`
	ChunksCreated       int    `json:"chunks_created"`
	ChunksUpdated       int    `json:"chunks_updated"`
	EmbeddingsGenerated int    `json:"embeddings_generated"`
	TimeMs              int64  `json:"time_ms"`
}

// SearchLog is the audit record of one query. Created once per search,
// never mutated.
type SearchLog struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Query             string     `json:"query"`
	ResultsCount      int        `json:"results_count"`
	AvgRelevanceScore float64    `json:"avg_relevance_score"`
	SearchType        SearchMode `json:"search_type"`
	LatencyMs         int64      `json:"latency_ms"`
	Provider          string     `json:"provider"`
	CreatedAt         time.Time  `json:"created_at"`
}

// DurableCategory classifies durable curated facts.
type DurableCategory string

const (
	CategoryPreferences DurableCategory = "preferences"
	CategoryGoals       DurableCategory = "goals"
	CategoryDecisions   DurableCategory = "decisions"
	CategoryFacts       DurableCategory = "facts"
)

// EphemeralMemory is a dated log entry, indexed without curation.
type EphemeralMemory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      time.Time `json:"date"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// DurableMemory is curated long-lived knowledge with its own embedding.
type DurableMemory struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Category        DurableCategory `json:"category"`
	Title           string          `json:"title"`
	Content         string          `json:"content"`
	ImportanceScore float64         `json:"importance_score"`
	EmbeddingModel  string          `json:"embedding_model"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SessionMemory is a stored conversation transcript.
type SessionMemory struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	SessionSlug    string    `json:"session_slug"`
	SessionDate    time.Time `json:"session_date"`
	Title          string    `json:"title,omitempty"`
	Content        string    `json:"content"`
	MessageCount   int       `json:"message_count"`
	TokenCount     int       `json:"token_count"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
}

// EngineStatus is a point-in-time snapshot of the engine.
type EngineStatus struct {
	TotalFiles            int        `json:"total_files"`
	TotalChunks           int        `json:"total_chunks"`
	EmbeddingCacheHitRate *float64   `json:"embedding_cache_hit_rate,omitempty"`
	LastSyncTime          *time.Time `json:"last_sync_time,omitempty"`
	IsDirty               bool       `json:"is_dirty"`
	IsSyncing             bool       `json:"is_syncing"`
}
