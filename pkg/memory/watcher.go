package memory

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// FileWatcher watches a workspace directory and calls onDirty after file
// changes settle. Only files matching the extension filter are considered.
type FileWatcher struct {
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger
	onDirty    func()
	extensions []string
	debounce   time.Duration
	mu         sync.Mutex
	timer      *time.Timer
	stopCh     chan struct{}
}

// NewFileWatcher creates a watcher. extensions defaults to [".md"];
// debounce defaults to 500ms.
func NewFileWatcher(logger zerolog.Logger, extensions []string, debounce time.Duration, onDirty func()) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".md"}
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	fw := &FileWatcher{
		watcher:    watcher,
		logger:     logger,
		onDirty:    onDirty,
		extensions: extensions,
		debounce:   debounce,
		stopCh:     make(chan struct{}),
	}

	go fw.run()

	return fw, nil
}

// Watch starts watching a directory.
func (fw *FileWatcher) Watch(path string) error {
	return fw.watcher.Add(path)
}

// Stop stops the file watcher.
func (fw *FileWatcher) Stop() error {
	close(fw.stopCh)
	return fw.watcher.Close()
}

func (fw *FileWatcher) run() {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}

			if !fw.matches(event.Name) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				fw.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("File change detected")

				fw.scheduleMarkDirty()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error().Err(err).Msg("File watcher error")

		case <-fw.stopCh:
			return
		}
	}
}

func (fw *FileWatcher) matches(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range fw.extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// scheduleMarkDirty debounces the dirty notification so one burst of writes
// produces one callback.
func (fw *FileWatcher) scheduleMarkDirty() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}

	fw.timer = time.AfterFunc(fw.debounce, func() {
		fw.logger.Debug().Msg("Marking index as dirty after file changes")
		fw.onDirty()
	})
}
