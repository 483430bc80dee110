package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSyncer(t *testing.T) (*Syncer, *Engine, string) {
	t.Helper()
	engine := newTestEngine(t)
	workspace := t.TempDir()

	syncer, err := NewSyncer(SyncerConfig{
		Workspace: workspace,
		Engine:    engine,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { syncer.Close() })
	return syncer, engine, workspace
}

func writeWorkspaceFile(t *testing.T, workspace, name, content string) {
	t.Helper()
	path := filepath.Join(workspace, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewSyncer_Validation(t *testing.T) {
	_, err := NewSyncer(SyncerConfig{Engine: newTestEngine(t)})
	assert.Error(t, err)

	_, err = NewSyncer(SyncerConfig{Workspace: t.TempDir()})
	assert.Error(t, err)
}

func TestSync_IndexesMarkdownOnly(t *testing.T) {
	syncer, _, workspace := newTestSyncer(t)
	writeWorkspaceFile(t, workspace, "notes.md", "alpha beta gamma")
	writeWorkspaceFile(t, workspace, "nested/more.md", "delta epsilon")
	writeWorkspaceFile(t, workspace, "ignore.txt", "not markdown")

	stats, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Zero(t, stats.FilesSkipped)
	assert.Positive(t, stats.ChunksCreated)
}

func TestSync_SecondPassSkipsUnchanged(t *testing.T) {
	syncer, _, workspace := newTestSyncer(t)
	writeWorkspaceFile(t, workspace, "notes.md", "alpha beta gamma")
	ctx := context.Background()

	_, err := syncer.Sync(ctx)
	require.NoError(t, err)

	stats, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
}

func TestSync_PrunesDeletedFiles(t *testing.T) {
	syncer, engine, workspace := newTestSyncer(t)
	writeWorkspaceFile(t, workspace, "keep.md", "stays around")
	writeWorkspaceFile(t, workspace, "gone.md", "will be removed")
	ctx := context.Background()

	_, err := syncer.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(workspace, "gone.md")))

	stats, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesPruned)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalFiles)
}

func TestSync_KeepsRecordPaths(t *testing.T) {
	syncer, engine, _ := newTestSyncer(t)
	ctx := context.Background()

	// Record entries live only in the store, not on disk.
	_, err := engine.CreateEphemeral(ctx, time.Now(), "today", "an ephemeral note")
	require.NoError(t, err)

	stats, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesPruned)

	status, err := engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalFiles)
}

func TestSyncIfDirty(t *testing.T) {
	syncer, _, workspace := newTestSyncer(t)
	writeWorkspaceFile(t, workspace, "notes.md", "alpha")
	ctx := context.Background()

	assert.True(t, syncer.IsDirty(), "a new syncer starts dirty")

	stats, err := syncer.SyncIfDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.False(t, syncer.IsDirty())

	// Clean index: no work.
	stats, err = syncer.SyncIfDirty(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Zero(t, stats.FilesSkipped)

	syncer.MarkDirty()
	assert.True(t, syncer.IsDirty())
}

func TestSyncer_Status(t *testing.T) {
	syncer, _, workspace := newTestSyncer(t)
	writeWorkspaceFile(t, workspace, "notes.md", "alpha")
	ctx := context.Background()

	status, err := syncer.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsDirty)
	assert.Nil(t, status.LastSyncTime)

	_, err = syncer.Sync(ctx)
	require.NoError(t, err)

	status, err = syncer.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsDirty)
	assert.NotNil(t, status.LastSyncTime)
}

func TestNewSyncer_RejectsBadSchedule(t *testing.T) {
	_, err := NewSyncer(SyncerConfig{
		Workspace: t.TempDir(),
		Engine:    newTestEngine(t),
		Logger:    testLogger(),
		Schedule:  "not a cron expression",
	})
	assert.Error(t, err)
}
