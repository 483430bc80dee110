// Package memory is the persistent memory engine: content-addressed
// indexing, hybrid search, and self-reported metrics over a SQLite store.
//
// Invariants:
// - Stored chunks stay consistent with file content hashes; unchanged content is never re-embedded.
// - Search combines vector and keyword relevance in the store, with a vector-only local fallback.
// - Every search is recorded in an append-only log; a lost log line never fails a search.
//
// Usage:
//
//	store, _ := memory.NewSQLiteStore(memory.SQLiteConfig{DBPath: "/data/recall.db", Dimension: 768})
//	defer store.Close()
//	engine, _ := memory.NewEngine(memory.EngineConfig{Owner: "me", Store: store, Provider: provider})
//	_, _ = engine.Indexer.IndexFile(ctx, "notes.md", content, memory.SourceMemory)
//	resp, _ := engine.Search.Search(ctx, memory.SearchInput{Query: "query"})
//	_ = resp
package memory
