package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/ampstudio/recall/pkg/embedding"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore is the bundled Store implementation: SQLite with sqlite-vec
// for vector distance and FTS5 for keyword relevance. It also serves as the
// persistent tier of the embedding cache.
type SQLiteStore struct {
	db        *sql.DB
	dimension int
	logger    zerolog.Logger
}

// SQLiteConfig holds store configuration.
type SQLiteConfig struct {
	// DBPath is the database file. ":memory:" works for tests.
	DBPath string
	// Dimension sizes the vec0 table and must match the embedding
	// provider in use.
	Dimension int
	Logger    zerolog.Logger
}

// NewSQLiteStore opens the database and creates the schema.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("embedding dimension is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_fts5=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		dimension: cfg.Dimension,
		logger:    cfg.Logger,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memory_files (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			path TEXT NOT NULL,
			source TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			file_size_bytes INTEGER NOT NULL,
			line_count INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			embedding_model TEXT NOT NULL,
			last_indexed_at INTEGER NOT NULL,
			UNIQUE(user_id, path, source)
		);
		CREATE INDEX IF NOT EXISTS idx_memory_files_user ON memory_files(user_id);
		CREATE INDEX IF NOT EXISTS idx_memory_files_hash ON memory_files(file_hash);

		CREATE TABLE IF NOT EXISTS memory_chunks (
			id TEXT PRIMARY KEY,
			file_id TEXT NOT NULL,
			chunk_hash TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			content TEXT NOT NULL,
			content_preview TEXT NOT NULL,
			embedding TEXT,
			embedding_model TEXT,
			source TEXT NOT NULL,
			UNIQUE(file_id, chunk_hash),
			FOREIGN KEY (file_id) REFERENCES memory_files(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_memory_chunks_file ON memory_chunks(file_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			content,
			tokenize='porter unicode61'
		);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			embedding TEXT NOT NULL,
			dimensions INTEGER NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			access_count INTEGER NOT NULL DEFAULT 1,
			last_accessed_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (provider, model, content_hash)
		);

		CREATE TABLE IF NOT EXISTS search_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			query TEXT NOT NULL,
			results_count INTEGER NOT NULL,
			avg_relevance_score REAL NOT NULL,
			search_type TEXT NOT NULL,
			latency_ms INTEGER NOT NULL,
			provider TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_search_logs_user ON search_logs(user_id, created_at);

		CREATE TABLE IF NOT EXISTS ephemeral_memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			date INTEGER NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ephemeral_user_date ON ephemeral_memories(user_id, date);

		CREATE TABLE IF NOT EXISTS durable_memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			importance_score REAL NOT NULL DEFAULT 0.5,
			embedding TEXT,
			embedding_model TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_durable_user ON durable_memories(user_id, category);

		CREATE TABLE IF NOT EXISTS session_memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_slug TEXT NOT NULL,
			session_date INTEGER NOT NULL,
			title TEXT,
			content TEXT NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			embedding TEXT,
			embedding_model TEXT,
			created_at INTEGER NOT NULL,
			UNIQUE(user_id, session_slug)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS chunk_embeddings USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.dimension)

	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetFileByPath returns the file row for (user, path, source), or (nil, nil)
// when absent.
func (s *SQLiteStore) GetFileByPath(ctx context.Context, userID, path string, source Source) (*MemoryFile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, path, source, file_hash, file_size_bytes,
		       line_count, chunk_count, embedding_model, last_indexed_at
		FROM memory_files
		WHERE user_id = ? AND path = ? AND source = ?
	`, userID, path, string(source))

	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file: %w", err)
	}
	return file, nil
}

// UpsertFile inserts or updates a file row keyed by (user, path, source).
func (s *SQLiteStore) UpsertFile(ctx context.Context, file *MemoryFile) (string, error) {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.LastIndexedAt.IsZero() {
		file.LastIndexedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_files
			(id, user_id, path, source, file_hash, file_size_bytes,
			 line_count, chunk_count, embedding_model, last_indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, path, source) DO UPDATE SET
			file_hash = excluded.file_hash,
			file_size_bytes = excluded.file_size_bytes,
			line_count = excluded.line_count,
			chunk_count = excluded.chunk_count,
			embedding_model = excluded.embedding_model,
			last_indexed_at = excluded.last_indexed_at
	`, file.ID, file.UserID, file.Path, string(file.Source), file.FileHash,
		file.FileSizeBytes, file.LineCount, file.ChunkCount,
		file.EmbeddingModel, file.LastIndexedAt.Unix())
	if err != nil {
		return "", fmt.Errorf("failed to upsert file: %w", err)
	}

	// On conflict the existing row keeps its ID; read it back.
	var id string
	err = s.db.QueryRowContext(ctx, `
		SELECT id FROM memory_files WHERE user_id = ? AND path = ? AND source = ?
	`, file.UserID, file.Path, string(file.Source)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read file id: %w", err)
	}
	file.ID = id
	return id, nil
}

// ChunkHashes returns the chunk hashes already stored for a file.
func (s *SQLiteStore) ChunkHashes(ctx context.Context, fileID string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_hash FROM memory_chunks WHERE file_id = ?
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunk hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes[h] = struct{}{}
	}
	return hashes, rows.Err()
}

// UpsertChunks stores chunk records, skipping (file, hash) pairs that already
// exist. Each new row is mirrored into the FTS index and the vector table.
func (s *SQLiteStore) UpsertChunks(ctx context.Context, fileID string, records []ChunkRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	created := 0
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}

		var embeddingJSON any
		if len(rec.Embedding) > 0 {
			data, err := json.Marshal(rec.Embedding)
			if err != nil {
				return 0, fmt.Errorf("failed to marshal embedding: %w", err)
			}
			embeddingJSON = string(data)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO memory_chunks
				(id, file_id, chunk_hash, chunk_index, start_line, end_line,
				 content, content_preview, embedding, embedding_model, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(file_id, chunk_hash) DO NOTHING
		`, rec.ID, fileID, rec.ChunkHash, rec.ChunkIndex, rec.StartLine,
			rec.EndLine, rec.Content, rec.ContentPreview, embeddingJSON,
			rec.EmbeddingModel, string(rec.Source))
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected == 0 {
			continue
		}
		created++

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)
		`, rec.ID, rec.Content); err != nil {
			return 0, fmt.Errorf("failed to index chunk text: %w", err)
		}

		if embeddingJSON != nil {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO chunk_embeddings (chunk_id, embedding) VALUES (?, ?)
			`, rec.ID, embeddingJSON); err != nil {
				return 0, fmt.Errorf("failed to insert chunk embedding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit chunks: %w", err)
	}
	return created, nil
}

// DeleteChunksExcept removes chunk rows for a file whose hash is not in keep.
func (s *SQLiteStore) DeleteChunksExcept(ctx context.Context, fileID string, keep map[string]struct{}) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chunk_hash FROM memory_chunks WHERE file_id = ?
	`, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to list chunks: %w", err)
	}

	var stale []string
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			rows.Close()
			return 0, err
		}
		if _, ok := keep[hash]; !ok {
			stale = append(stale, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_chunks WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete chunk: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete chunk text: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_embeddings WHERE chunk_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete chunk embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(stale), nil
}

// DeleteFile removes a file row and all of its chunks.
func (s *SQLiteStore) DeleteFile(ctx context.Context, userID, path string, source Source) error {
	file, err := s.GetFileByPath(ctx, userID, path, source)
	if err != nil {
		return err
	}
	if file == nil {
		return nil
	}

	if _, err := s.DeleteChunksExcept(ctx, file.ID, nil); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory_files WHERE id = ?`, file.ID); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// ListFilePaths returns the paths stored for a user and source.
func (s *SQLiteStore) ListFilePaths(ctx context.Context, userID string, source Source) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM memory_files WHERE user_id = ? AND source = ?
	`, userID, string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to list file paths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

type vectorHit struct {
	chunkID    string
	similarity float64
}

type keywordHit struct {
	chunkID   string
	bm25Score float64
}

// HybridSearch runs vector and keyword legs inside SQLite and merges them
// with the query weights.
func (s *SQLiteStore) HybridSearch(ctx context.Context, q HybridQuery) ([]SearchResult, error) {
	if len(q.QueryVector) == 0 {
		return nil, errors.New("query vector is required")
	}
	if q.ResultCount <= 0 {
		q.ResultCount = DefaultMaxResults
	}

	vectorHits, err := s.vectorLeg(ctx, q, 200)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	keywordHits, err := s.keywordLeg(ctx, q, 200)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	return s.mergeHits(ctx, vectorHits, keywordHits, q)
}

func (s *SQLiteStore) vectorLeg(ctx context.Context, q HybridQuery, limit int) ([]vectorHit, error) {
	embeddingJSON, err := json.Marshal(q.QueryVector)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query vector: %w", err)
	}

	clause, args := sourceFilter(q.Sources)
	query := fmt.Sprintf(`
		SELECT e.chunk_id, vec_distance_cosine(e.embedding, ?) AS distance
		FROM chunk_embeddings e
		JOIN memory_chunks c ON c.id = e.chunk_id
		JOIN memory_files f ON f.id = c.file_id
		WHERE f.user_id = ?%s
		ORDER BY distance ASC
		LIMIT ?
	`, clause)

	queryArgs := append([]any{string(embeddingJSON), q.UserID}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []vectorHit
	for rows.Next() {
		var chunkID string
		var distance float64
		if err := rows.Scan(&chunkID, &distance); err != nil {
			return nil, err
		}
		// Cosine distance is [0, 2]; similarity = 1 - distance is [-1, 1].
		hits = append(hits, vectorHit{chunkID: chunkID, similarity: 1.0 - distance})
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) keywordLeg(ctx context.Context, q HybridQuery, limit int) ([]keywordHit, error) {
	match := ftsMatchExpr(q.QueryText)
	if match == "" {
		return nil, nil
	}

	clause, args := sourceFilter(q.Sources)
	query := fmt.Sprintf(`
		SELECT t.chunk_id, bm25(chunks_fts) AS score
		FROM chunks_fts t
		JOIN memory_chunks c ON c.id = t.chunk_id
		JOIN memory_files f ON f.id = c.file_id
		WHERE chunks_fts MATCH ? AND f.user_id = ?%s
		ORDER BY score
		LIMIT ?
	`, clause)

	queryArgs := append([]any{match, q.UserID}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []keywordHit
	for rows.Next() {
		var chunkID string
		var score float64
		if err := rows.Scan(&chunkID, &score); err != nil {
			return nil, err
		}
		// BM25 scores are negative, convert to positive
		hits = append(hits, keywordHit{chunkID: chunkID, bm25Score: -score})
	}
	return hits, rows.Err()
}

func (s *SQLiteStore) mergeHits(ctx context.Context, vectorHits []vectorHit, keywordHits []keywordHit, q HybridQuery) ([]SearchResult, error) {
	vectorMap := make(map[string]float64)
	keywordMap := make(map[string]float64)

	var maxKeyword float64
	for _, h := range vectorHits {
		vectorMap[h.chunkID] = h.similarity
	}
	for _, h := range keywordHits {
		keywordMap[h.chunkID] = h.bm25Score
		if h.bm25Score > maxKeyword {
			maxKeyword = h.bm25Score
		}
	}

	seen := make(map[string]bool)
	for id := range vectorMap {
		seen[id] = true
	}
	for id := range keywordMap {
		seen[id] = true
	}

	type scoredHit struct {
		chunkID     string
		score       float64
		vectorScore *float64
		bm25Score   *float64
	}

	var scored []scoredHit
	for chunkID := range seen {
		var normVector, normKeyword float64

		// Map similarity [-1, 1] to [0, 1].
		if sim, ok := vectorMap[chunkID]; ok {
			normVector = (sim + 1) / 2
		}
		if bm, ok := keywordMap[chunkID]; ok && maxKeyword > 0 {
			normKeyword = bm / maxKeyword
		}

		combined := normVector*q.VectorWeight + normKeyword*q.BM25Weight

		sh := scoredHit{chunkID: chunkID, score: combined}
		if _, ok := vectorMap[chunkID]; ok {
			v := normVector
			sh.vectorScore = &v
		}
		if _, ok := keywordMap[chunkID]; ok {
			k := normKeyword
			sh.bm25Score = &k
		}
		scored = append(scored, sh)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].chunkID < scored[j].chunkID
	})

	if len(scored) > q.ResultCount {
		scored = scored[:q.ResultCount]
	}

	results := make([]SearchResult, 0, len(scored))
	for _, sh := range scored {
		var content, filePath string
		var startLine, endLine int
		err := s.db.QueryRowContext(ctx, `
			SELECT c.content, c.start_line, c.end_line, f.path
			FROM memory_chunks c
			JOIN memory_files f ON f.id = c.file_id
			WHERE c.id = ?
		`, sh.chunkID).Scan(&content, &startLine, &endLine, &filePath)
		if err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", sh.chunkID).Msg("Failed to fetch chunk details")
			continue
		}

		results = append(results, SearchResult{
			ChunkID:        sh.chunkID,
			FilePath:       filePath,
			Content:        content,
			StartLine:      startLine,
			EndLine:        endLine,
			RelevanceScore: sh.score,
			VectorScore:    sh.vectorScore,
			BM25Score:      sh.bm25Score,
		})
	}
	return results, nil
}

// CandidateChunks returns stored chunks with embeddings for local scoring.
func (s *SQLiteStore) CandidateChunks(ctx context.Context, userID string, sources []Source, limit int) ([]CandidateChunk, error) {
	clause, args := sourceFilter(sources)
	query := fmt.Sprintf(`
		SELECT c.id, f.path, c.content, c.start_line, c.end_line, c.embedding
		FROM memory_chunks c
		JOIN memory_files f ON f.id = c.file_id
		WHERE f.user_id = ? AND c.embedding IS NOT NULL%s
		ORDER BY c.id
		LIMIT ?
	`, clause)

	queryArgs := append([]any{userID}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.QueryContext(ctx, query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate chunks: %w", err)
	}
	defer rows.Close()

	var candidates []CandidateChunk
	for rows.Next() {
		var c CandidateChunk
		var embeddingJSON string
		if err := rows.Scan(&c.ID, &c.Path, &c.Content, &c.StartLine, &c.EndLine, &embeddingJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", c.ID).Msg("Skipping chunk with malformed embedding")
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// InsertSearchLog records one query. Append-only.
func (s *SQLiteStore) InsertSearchLog(ctx context.Context, log *SearchLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_logs
			(id, user_id, query, results_count, avg_relevance_score,
			 search_type, latency_ms, provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, log.ID, log.UserID, log.Query, log.ResultsCount, log.AvgRelevanceScore,
		string(log.SearchType), log.LatencyMs, log.Provider, log.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert search log: %w", err)
	}
	return nil
}

// Counts returns the number of files and chunks stored for a user.
func (s *SQLiteStore) Counts(ctx context.Context, userID string) (int, int, error) {
	var files, chunks int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_files WHERE user_id = ?
	`, userID).Scan(&files)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count files: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM memory_chunks c
		JOIN memory_files f ON f.id = c.file_id
		WHERE f.user_id = ?
	`, userID).Scan(&chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return files, chunks, nil
}

// InsertEphemeral stores a dated log entry.
func (s *SQLiteStore) InsertEphemeral(ctx context.Context, m *EphemeralMemory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ephemeral_memories (id, user_id, date, title, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, m.Date.Unix(), m.Title, m.Content, m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert ephemeral memory: %w", err)
	}
	return nil
}

// InsertDurable stores a curated fact with its embedding.
func (s *SQLiteStore) InsertDurable(ctx context.Context, m *DurableMemory, embeddingVec []float32) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	var embeddingJSON any
	if len(embeddingVec) > 0 {
		data, err := json.Marshal(embeddingVec)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embeddingJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO durable_memories
			(id, user_id, category, title, content, importance_score,
			 embedding, embedding_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, string(m.Category), m.Title, m.Content,
		m.ImportanceScore, embeddingJSON, m.EmbeddingModel, m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert durable memory: %w", err)
	}
	return nil
}

// InsertSession stores a conversation transcript with its embedding.
func (s *SQLiteStore) InsertSession(ctx context.Context, m *SessionMemory, embeddingVec []float32) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	var embeddingJSON any
	if len(embeddingVec) > 0 {
		data, err := json.Marshal(embeddingVec)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		embeddingJSON = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_memories
			(id, user_id, session_slug, session_date, title, content,
			 message_count, token_count, embedding, embedding_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_slug) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			message_count = excluded.message_count,
			token_count = excluded.token_count,
			embedding = excluded.embedding,
			embedding_model = excluded.embedding_model
	`, m.ID, m.UserID, m.SessionSlug, m.SessionDate.Unix(), m.Title, m.Content,
		m.MessageCount, m.TokenCount, embeddingJSON, m.EmbeddingModel, m.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert session memory: %w", err)
	}
	return nil
}

// RecentEphemeral returns ephemeral entries newer than since, most recent
// first.
func (s *SQLiteStore) RecentEphemeral(ctx context.Context, userID string, since time.Time, limit int) ([]EphemeralMemory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, date, title, content, created_at
		FROM ephemeral_memories
		WHERE user_id = ? AND date >= ?
		ORDER BY date DESC
		LIMIT ?
	`, userID, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load ephemeral memories: %w", err)
	}
	defer rows.Close()

	var memories []EphemeralMemory
	for rows.Next() {
		var m EphemeralMemory
		var date, createdAt int64
		var title sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &date, &title, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		m.Date = time.Unix(date, 0)
		m.CreatedAt = time.Unix(createdAt, 0)
		m.Title = title.String
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// LoadMany implements embedding.PersistentCache. The returned map is keyed by
// composite cache key.
func (s *SQLiteStore) LoadMany(ctx context.Context, provider, model string, contentHashes []string) (map[string]embedding.CacheEntry, error) {
	if len(contentHashes) == 0 {
		return map[string]embedding.CacheEntry{}, nil
	}

	placeholders := strings.Repeat("?,", len(contentHashes))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{provider, model}
	for _, h := range contentHashes {
		args = append(args, h)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT content_hash, embedding, dimensions, token_count, access_count, last_accessed_at
		FROM embedding_cache
		WHERE provider = ? AND model = ? AND content_hash IN (%s)
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]embedding.CacheEntry)
	for rows.Next() {
		var entry embedding.CacheEntry
		var embeddingJSON string
		var lastAccessed int64
		if err := rows.Scan(&entry.ContentHash, &embeddingJSON, &entry.Dimensions,
			&entry.TokenCount, &entry.AccessCount, &lastAccessed); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &entry.Vector); err != nil {
			s.logger.Warn().Err(err).Str("content_hash", entry.ContentHash).Msg("Skipping malformed cache entry")
			continue
		}
		entry.Provider = provider
		entry.Model = model
		entry.LastAccessedAt = time.Unix(lastAccessed, 0)
		entries[embedding.CacheKey(provider, model, entry.ContentHash)] = entry
	}
	return entries, rows.Err()
}

// Save implements embedding.PersistentCache.
func (s *SQLiteStore) Save(ctx context.Context, entry embedding.CacheEntry) error {
	data, err := json.Marshal(entry.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal cache embedding: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache
			(provider, model, content_hash, embedding, dimensions,
			 token_count, access_count, last_accessed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(provider, model, content_hash) DO UPDATE SET
			access_count = access_count + 1,
			last_accessed_at = excluded.last_accessed_at
	`, entry.Provider, entry.Model, entry.ContentHash, string(data),
		entry.Dimensions, entry.TokenCount, now, now)
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for the decode helpers.
type scanner interface {
	Scan(dest ...any) error
}

func scanFile(row scanner) (*MemoryFile, error) {
	var f MemoryFile
	var source string
	var lastIndexed int64
	err := row.Scan(&f.ID, &f.UserID, &f.Path, &source, &f.FileHash,
		&f.FileSizeBytes, &f.LineCount, &f.ChunkCount, &f.EmbeddingModel, &lastIndexed)
	if err != nil {
		return nil, err
	}
	f.Source = Source(source)
	f.LastIndexedAt = time.Unix(lastIndexed, 0)
	return &f, nil
}

// sourceFilter builds an optional "AND f.source IN (...)" clause.
func sourceFilter(sources []Source) (string, []any) {
	if len(sources) == 0 {
		return "", nil
	}
	placeholders := strings.Repeat("?,", len(sources))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(sources))
	for i, src := range sources {
		args[i] = string(src)
	}
	return fmt.Sprintf(" AND f.source IN (%s)", placeholders), args
}

// ftsMatchExpr turns free text into a safe FTS5 match expression: each term
// quoted, OR-joined. Returns "" when the query has no usable terms.
func ftsMatchExpr(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}
