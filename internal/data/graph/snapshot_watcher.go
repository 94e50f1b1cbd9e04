package graph

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yungbote/decisiontrace-backend/internal/platform/logger"
)

const snapshotDebounce = 500 * time.Millisecond

// SnapshotWatcher reloads a MemoryStore when its snapshot file is rewritten. A snapshot
// that fails to parse is logged and the previous graph keeps serving.
type SnapshotWatcher struct {
	store    *MemoryStore
	path     string
	log      *logger.Logger
	debounce time.Duration
	onReload func()

	watcher *fsnotify.Watcher
	wg      sync.WaitGroup
}

func NewSnapshotWatcher(store *MemoryStore, path string, log *logger.Logger, onReload func()) (*SnapshotWatcher, error) {
	if store == nil {
		return nil, fmt.Errorf("graph: memory store required")
	}
	if log == nil {
		log = logger.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create snapshot watcher: %w", err)
	}
	// Editors and atomic writers replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch snapshot dir: %w", err)
	}
	return &SnapshotWatcher{
		store:    store,
		path:     abs,
		log:      log.With("component", "SnapshotWatcher", "path", abs),
		debounce: snapshotDebounce,
		onReload: onReload,
		watcher:  w,
	}, nil
}

// Start watches until ctx is cancelled.
func (w *SnapshotWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

// Wait blocks until the watch loop has exited.
func (w *SnapshotWatcher) Wait() { w.wg.Wait() }

func (w *SnapshotWatcher) loop(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Snapshot watcher error", "error", err)
		}
	}
}

func (w *SnapshotWatcher) reload() {
	view, err := readSnapshot(w.path)
	if err != nil {
		w.log.Error("Graph snapshot reload failed; keeping previous graph", "error", err)
		return
	}
	w.store.Replace(view)
	w.log.Info("Graph snapshot reloaded", "nodes", len(view.Nodes), "relationships", len(view.Relationships))
	if w.onReload != nil {
		w.onReload()
	}
}
