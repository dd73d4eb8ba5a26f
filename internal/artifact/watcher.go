package artifact

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/chr1sbest/tracedeps/internal/logger"
)

// Watcher invalidates a Locator's digest whenever the artifact file is
// written, replaced or removed. Deploys usually replace the binary by
// rename, so the parent directory is watched rather than the file.
type Watcher struct {
	locator *Locator
	log     logger.Logger
	watcher *fsnotify.Watcher
	changes chan string
	path    string
}

// NewWatcher creates a watcher for the locator's artifact.
func NewWatcher(l *Locator, log logger.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &Watcher{
		locator: l,
		log:     log,
		watcher: fsWatcher,
		changes: make(chan string, 10),
	}, nil
}

// Changes receives the artifact path after each invalidation. Sends never
// block; a slow reader misses notifications, not invalidations.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Start begins watching. It returns once the watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	path, err := w.locator.Path()
	if err != nil {
		return err
	}
	w.path = filepath.Clean(path)

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	go w.run(ctx)
	return nil
}

// Stop closes the underlying watcher.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&relevant == 0 {
				continue
			}
			w.locator.Invalidate()
			w.log.Debug("Artifact changed, digest invalidated",
				logger.F("path", w.path),
				logger.F("op", event.Op.String()),
			)
			select {
			case w.changes <- w.path:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("Artifact watcher error", logger.F("error", err))
		}
	}
}
