package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"

	"github.com/ampstudio/recall/internal/observability"
	"github.com/ampstudio/recall/internal/tracing"
)

// SyncStats summarizes one workspace sync.
type SyncStats struct {
	FilesIndexed  int   `json:"files_indexed"`
	FilesSkipped  int   `json:"files_skipped"`
	FilesPruned   int   `json:"files_pruned"`
	ChunksCreated int   `json:"chunks_created"`
	DurationMs    int64 `json:"duration_ms"`
}

// Syncer keeps the store in step with a workspace directory of markdown
// files. Changes are picked up by an fsnotify watcher marking the index
// dirty; an optional cron schedule forces periodic full syncs.
type Syncer struct {
	workspace string
	engine    *Engine
	logger    zerolog.Logger

	watcher *FileWatcher
	cron    *cron.Cron

	mu           sync.RWMutex
	isDirty      bool
	isSyncing    bool
	lastSyncTime *time.Time
}

// SyncerConfig holds syncer configuration. Workspace and Engine are
// required.
type SyncerConfig struct {
	Workspace string
	Engine    *Engine
	Logger    zerolog.Logger

	// Watch enables the fsnotify watcher on the workspace root.
	Watch bool

	// Schedule is an optional cron expression ("@every 5m") forcing
	// periodic syncs even without file events.
	Schedule string
}

// NewSyncer builds a syncer. The index starts dirty so the first Sync does a
// full pass.
func NewSyncer(cfg SyncerConfig) (*Syncer, error) {
	if cfg.Workspace == "" {
		return nil, errors.New("workspace path is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}

	s := &Syncer{
		workspace: cfg.Workspace,
		engine:    cfg.Engine,
		logger:    cfg.Logger,
		isDirty:   true,
	}

	if cfg.Watch {
		watcher, err := NewFileWatcher(cfg.Logger, nil, 0, s.MarkDirty)
		if err != nil {
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Watch(cfg.Workspace); err != nil {
			watcher.Stop()
			return nil, fmt.Errorf("failed to watch workspace: %w", err)
		}
		s.watcher = watcher
	}

	if cfg.Schedule != "" {
		c := cron.New()
		_, err := c.AddFunc(cfg.Schedule, func() {
			s.MarkDirty()
			if _, err := s.Sync(context.Background()); err != nil {
				s.logger.Warn().Err(err).Msg("Scheduled sync failed")
			}
		})
		if err != nil {
			if s.watcher != nil {
				s.watcher.Stop()
			}
			return nil, fmt.Errorf("invalid sync schedule: %w", err)
		}
		c.Start()
		s.cron = c
	}

	return s, nil
}

// MarkDirty flags the index for resync.
func (s *Syncer) MarkDirty() {
	s.mu.Lock()
	s.isDirty = true
	s.mu.Unlock()
}

// IsDirty reports whether a resync is pending.
func (s *Syncer) IsDirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isDirty
}

// SyncIfDirty runs Sync only when the index is flagged dirty.
func (s *Syncer) SyncIfDirty(ctx context.Context) (*SyncStats, error) {
	if !s.IsDirty() {
		return &SyncStats{}, nil
	}
	return s.Sync(ctx)
}

// Sync walks the workspace, indexes changed markdown files, and prunes files
// that no longer exist on disk. Only one sync runs at a time.
func (s *Syncer) Sync(ctx context.Context) (*SyncStats, error) {
	ctx, span := tracing.StartSpan(ctx, "recall.memory", "memory.sync")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "sync already in progress")
		return nil, errors.New("sync already in progress")
	}
	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.isDirty = false
		now := time.Now()
		s.lastSyncTime = &now
		s.mu.Unlock()
	}()

	logger.Info().Msg("Starting sync")
	start := time.Now()

	var mdFiles []string
	err := filepath.WalkDir(s.workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			relPath, _ := filepath.Rel(s.workspace, path)
			mdFiles = append(mdFiles, relPath)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}

	stats := &SyncStats{}
	for _, relPath := range mdFiles {
		content, err := os.ReadFile(filepath.Join(s.workspace, relPath))
		if err != nil {
			logger.Warn().Err(err).Str("file", relPath).Msg("Failed to read file")
			span.RecordError(err)
			continue
		}

		result, err := s.engine.Indexer.IndexFile(ctx, relPath, string(content), SourceMemory)
		if err != nil {
			logger.Warn().Err(err).Str("file", relPath).Msg("Failed to index file")
			span.RecordError(err)
			continue
		}

		if result.ChunksCreated > 0 || result.EmbeddingsGenerated > 0 {
			stats.FilesIndexed++
			stats.ChunksCreated += result.ChunksCreated
		} else {
			stats.FilesSkipped++
		}
	}

	pruned, err := s.pruneDeleted(ctx, mdFiles)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to prune deleted files")
		span.RecordError(err)
	}
	stats.FilesPruned = pruned
	stats.DurationMs = time.Since(start).Milliseconds()
	observability.RecordSync(time.Since(start), pruned)

	logger.Info().
		Int("files_indexed", stats.FilesIndexed).
		Int("files_skipped", stats.FilesSkipped).
		Int("chunks_created", stats.ChunksCreated).
		Int("files_pruned", stats.FilesPruned).
		Int64("ms", stats.DurationMs).
		Msg("Sync completed")

	return stats, nil
}

// pruneDeleted removes stored files whose path is no longer on disk.
func (s *Syncer) pruneDeleted(ctx context.Context, present []string) (int, error) {
	onDisk := make(map[string]struct{}, len(present))
	for _, p := range present {
		onDisk[p] = struct{}{}
	}

	stored, err := s.engine.store.ListFilePaths(ctx, s.engine.owner, SourceMemory)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for _, path := range stored {
		if _, ok := onDisk[path]; ok {
			continue
		}
		// Record paths (ephemeral/durable/sessions) have no on-disk
		// counterpart and are never pruned.
		if strings.HasPrefix(path, "ephemeral/") || strings.HasPrefix(path, "durable/") || strings.HasPrefix(path, "sessions/") {
			continue
		}
		if err := s.engine.Indexer.RemoveFile(ctx, path, SourceMemory); err != nil {
			s.logger.Warn().Err(err).Str("file", path).Msg("Failed to prune file")
			continue
		}
		pruned++
	}
	return pruned, nil
}

// Status combines store totals with the syncer's own state.
func (s *Syncer) Status(ctx context.Context) (*EngineStatus, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	status.IsDirty = s.isDirty
	status.IsSyncing = s.isSyncing
	status.LastSyncTime = s.lastSyncTime
	s.mu.RUnlock()

	return status, nil
}

// Close stops the watcher and the cron scheduler.
func (s *Syncer) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}
