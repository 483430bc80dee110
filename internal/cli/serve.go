package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ampstudio/recall/internal/config"
	"github.com/ampstudio/recall/internal/logger"
	"github.com/ampstudio/recall/internal/observability"
	"github.com/ampstudio/recall/internal/tracing"
	"github.com/ampstudio/recall/pkg/chunk"
	"github.com/ampstudio/recall/pkg/embedding"
	"github.com/ampstudio/recall/pkg/memory"
)

const resyncInterval = 30 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the memory engine service",
	Long: `Run the memory engine service in the foreground.
The workspace is synced into the index, file changes are watched, and
metrics and status are served over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:9178", "listen address for /metrics and /status")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	if err := tracing.InitOpenTelemetry("recall"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
	}

	engine, store, err := buildEngine(cfg, log.GetZerolog())
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.WorkspacePath == "" {
		cfg.WorkspacePath = filepath.Join(cfg.DataDir, "workspace")
	}
	if err := os.MkdirAll(cfg.WorkspacePath, 0755); err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	syncer, err := memory.NewSyncer(memory.SyncerConfig{
		Workspace: cfg.WorkspacePath,
		Engine:    engine,
		Logger:    log.GetZerolog(),
		Watch:     cfg.Sync.Watch,
		Schedule:  cfg.Sync.Schedule,
	})
	if err != nil {
		return err
	}
	defer syncer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := syncer.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial sync failed")
	}

	go resyncLoop(ctx, syncer, log.GetZerolog())

	server := &http.Server{
		Addr:    serveAddr,
		Handler: newServeMux(syncer),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown failed")
		}
	}()

	log.Info().
		Str("addr", serveAddr).
		Str("workspace", cfg.WorkspacePath).
		Str("provider", engine.ProviderName()).
		Msg("Recall serving")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildEngine wires the provider, store, and engine from configuration. The
// store is returned separately so the caller owns its lifetime.
func buildEngine(cfg *config.Config, log zerolog.Logger) (*memory.Engine, *memory.SQLiteStore, error) {
	provider, err := embedding.NewProvider(cfg.Embedding.Provider, cfg.Embedding.APIKey)
	if err != nil {
		return nil, nil, err
	}

	store, err := memory.NewSQLiteStore(memory.SQLiteConfig{
		DBPath:    cfg.Database.Path,
		Dimension: provider.Dimension(),
		Logger:    log,
	})
	if err != nil {
		return nil, nil, err
	}

	engine, err := memory.NewEngine(memory.EngineConfig{
		Owner:    cfg.Owner,
		Store:    store,
		Provider: provider,
		Chunking: chunk.Config{
			TargetTokens:  cfg.Chunking.TargetTokens,
			OverlapTokens: cfg.Chunking.OverlapTokens,
		},
		VectorWeight:    cfg.Search.VectorWeight,
		BM25Weight:      cfg.Search.BM25Weight,
		SnippetMaxChars: cfg.Search.SnippetMaxChars,
		Logger:          log,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return engine, store, nil
}

func resyncLoop(ctx context.Context, syncer *memory.Syncer, log zerolog.Logger) {
	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := syncer.SyncIfDirty(ctx); err != nil {
				log.Warn().Err(err).Msg("Resync failed")
			}
		}
	}
}

func newServeMux(syncer *memory.Syncer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status, err := syncer.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})
	return mux
}
