package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileWatcher_MarksDirtyOnMarkdownChange(t *testing.T) {
	dir := t.TempDir()
	dirty := make(chan struct{}, 1)

	fw, err := NewFileWatcher(testLogger(), nil, 20*time.Millisecond, func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer fw.Stop()
	require.NoError(t, fw.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("alpha"), 0644))

	select {
	case <-dirty:
	case <-time.After(2 * time.Second):
		t.Fatal("expected dirty callback after markdown write")
	}
}

func TestFileWatcher_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	dirty := make(chan struct{}, 1)

	fw, err := NewFileWatcher(testLogger(), nil, 20*time.Millisecond, func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	defer fw.Stop()
	require.NoError(t, fw.Watch(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("alpha"), 0644))

	select {
	case <-dirty:
		t.Fatal("non-markdown writes must not mark the index dirty")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFileWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan struct{}, 16)

	fw, err := NewFileWatcher(testLogger(), nil, 100*time.Millisecond, func() {
		calls <- struct{}{}
	})
	require.NoError(t, err)
	defer fw.Stop()
	require.NoError(t, fw.Watch(dir))

	path := filepath.Join(dir, "notes.md")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("rev"), 0644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected one dirty callback")
	}

	select {
	case <-calls:
		t.Fatal("burst of writes should collapse into one callback")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFileWatcher_ExtensionFilter(t *testing.T) {
	fw, err := NewFileWatcher(testLogger(), []string{".md", ".markdown"}, 0, func() {})
	require.NoError(t, err)
	defer fw.Stop()

	assert.True(t, fw.matches("Notes.MD"))
	assert.True(t, fw.matches("a/b/c.markdown"))
	assert.False(t, fw.matches("notes.txt"))
}
