package names

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads name stores when their backing documents change on disk,
// so an edit made outside the running client shows up without a restart.
type Watcher struct {
	watcher *fsnotify.Watcher
	stores  map[string]*Store // document basename -> store

	ctx    context.Context
	cancel context.CancelFunc

	// onChange is called after a successful reload (for UI refresh).
	onChange func()
}

// NewWatcher creates a watcher over the stores' parent directory. All stores
// must live in the same directory.
func NewWatcher(onChange func(), stores ...*Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*Store, len(stores))
	var dir string
	for _, s := range stores {
		byName[filepath.Base(s.Path())] = s
		dir = filepath.Dir(s.Path())
	}
	if dir != "" {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		watcher:  fw,
		stores:   byName,
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
	}, nil
}

// Start runs the watch loop. Must be called in a goroutine.
func (w *Watcher) Start() {
	// Debounce: a full rewrite is a tmp write plus a rename, and editors do
	// their own dance on top.
	var debounceTimer *time.Timer
	pending := make(map[string]bool)
	var pendingMu sync.Mutex

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(ev.Name)
			if _, tracked := w.stores[base]; !tracked {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			pendingMu.Lock()
			pending[base] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
				pendingMu.Lock()
				files := make([]string, 0, len(pending))
				for f := range pending {
					files = append(files, f)
				}
				pending = make(map[string]bool)
				pendingMu.Unlock()

				changed := false
				for _, f := range files {
					if err := w.stores[f].Reload(); err != nil {
						namesLog.Warn("name_store_reload_failed",
							slog.String("file", f),
							slog.String("error", err.Error()))
						continue
					}
					changed = true
				}
				if changed && w.onChange != nil {
					w.onChange()
				}
			})
			pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			namesLog.Warn("name_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	w.cancel()
	_ = w.watcher.Close()
}
