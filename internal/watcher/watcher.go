// Package watcher keeps the media library index fresh by watching the media
// root for file system changes and triggering debounced rescans.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of events (a large copy touches every
// file) into a single rescan.
const DefaultDebounce = 2 * time.Second

// Rescanner is the slice of the media library the watcher drives.
type Rescanner interface {
	Root() string
	Rescan() error
}

// Watcher drives rescans of a media library from fsnotify events.
type Watcher struct {
	library  Rescanner
	logger   *slog.Logger
	debounce time.Duration
	fsw      *fsnotify.Watcher
}

// New constructs a watcher over the library's root and its existing
// subdirectories. Close releases the underlying fsnotify watcher.
func New(library Rescanner, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{library: library, logger: logger, debounce: debounce, fsw: fsw}
	if err := w.addRecursive(library.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping unwatchable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// Run consumes events until the context is cancelled. Rescans are debounced;
// newly created directories are added to the watch set so media dropped into
// fresh categories is picked up.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			fire = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				// Best effort; the path may be a file or already gone.
				_ = w.fsw.Add(event.Name)
			}
			schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("media watch error", "error", err)

		case <-fire:
			timer = nil
			fire = nil
			if err := w.library.Rescan(); err != nil {
				w.logger.Warn("media rescan failed", "error", err)
				continue
			}
			w.logger.Debug("media index refreshed")
		}
	}
}
