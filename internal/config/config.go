package config

import (
	"encoding/json"
	"fmt"
)

// Config is the engine configuration surface.
type Config struct {
	// Owner scopes every stored row.
	Owner string `json:"owner" mapstructure:"owner"`

	// DataDir holds the database and log files.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// WorkspacePath is the markdown directory kept in sync with the index.
	WorkspacePath string `json:"workspace_path" mapstructure:"workspace_path"`

	Database  DatabaseConfig  `json:"database" mapstructure:"database"`
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`
	Chunking  ChunkingConfig  `json:"chunking" mapstructure:"chunking"`
	Search    SearchConfig    `json:"search" mapstructure:"search"`
	Sync      SyncConfig      `json:"sync" mapstructure:"sync"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// EmbeddingConfig holds provider settings.
type EmbeddingConfig struct {
	Provider string `json:"provider" mapstructure:"provider"` // gemini, openai, local
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// ChunkingConfig holds chunker budgets in tokens.
type ChunkingConfig struct {
	TargetTokens  int `json:"target_tokens" mapstructure:"target_tokens"`
	OverlapTokens int `json:"overlap_tokens" mapstructure:"overlap_tokens"`
}

// SearchConfig holds ranking weights and result shaping.
type SearchConfig struct {
	VectorWeight    float64 `json:"vector_weight" mapstructure:"vector_weight"`
	BM25Weight      float64 `json:"bm25_weight" mapstructure:"bm25_weight"`
	MaxResults      int     `json:"max_results" mapstructure:"max_results"`
	SnippetMaxChars int     `json:"snippet_max_chars" mapstructure:"snippet_max_chars"`
}

// SyncConfig holds workspace sync settings.
type SyncConfig struct {
	Watch    bool   `json:"watch" mapstructure:"watch"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron expression, optional
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Owner: "default",
		Embedding: EmbeddingConfig{
			Provider: "gemini",
		},
		Chunking: ChunkingConfig{
			TargetTokens:  400,
			OverlapTokens: 80,
		},
		Search: SearchConfig{
			VectorWeight:    0.7,
			BM25Weight:      0.3,
			MaxResults:      6,
			SnippetMaxChars: 700,
		},
		Sync: SyncConfig{
			Watch: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Owner == "" {
		return fmt.Errorf("owner is required")
	}

	switch c.Embedding.Provider {
	case "", "gemini", "openai", "local":
	default:
		return fmt.Errorf("invalid embedding provider %s (must be: gemini, openai, local)", c.Embedding.Provider)
	}

	if c.Embedding.Provider != "local" && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding api_key is required for provider %q", c.Embedding.Provider)
	}

	if c.Chunking.TargetTokens < 0 || c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking budgets must be non-negative")
	}
	if c.Chunking.OverlapTokens > 0 && c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return fmt.Errorf("chunking overlap_tokens must be smaller than target_tokens")
	}

	if c.Search.VectorWeight < 0 || c.Search.BM25Weight < 0 {
		return fmt.Errorf("search weights must be non-negative")
	}
	if c.Search.VectorWeight+c.Search.BM25Weight == 0 {
		return fmt.Errorf("at least one search weight must be positive")
	}

	return nil
}
