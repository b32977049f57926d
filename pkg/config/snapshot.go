package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current configuration snapshot behind an atomic pointer.
// Readers call Current on every request and never lock; a reload builds a
// complete new Config and installs it with a single atomic swap, so a
// request observes exactly one snapshot for its whole lifetime.
type Store struct {
	current atomic.Pointer[Config]

	// reloads counts successful swaps, for /status reporting.
	reloads atomic.Int64

	// onSwap, when set, is invoked with the new snapshot after each
	// successful swap so dependent components (route table, pools,
	// limiter classes) can rebuild their derived state.
	onSwap atomic.Pointer[func(*Config)]
}

// NewStore creates a Store seeded with the given validated snapshot.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the active snapshot. The returned Config must be treated
// as read-only.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reloads returns the number of successful reloads since startup.
func (s *Store) Reloads() int64 {
	return s.reloads.Load()
}

// OnSwap registers a callback invoked after each successful swap.
func (s *Store) OnSwap(fn func(*Config)) {
	s.onSwap.Store(&fn)
}

// Reload loads, validates, and installs a new snapshot from path. On any
// failure the previous snapshot remains active and the error is returned
// for out-of-band reporting.
func (s *Store) Reload(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("reload rejected, keeping previous configuration: %w", err)
	}

	s.current.Store(cfg)
	s.reloads.Add(1)

	if fn := s.onSwap.Load(); fn != nil {
		(*fn)(cfg)
	}
	return nil
}

// Watcher triggers Store.Reload when the configuration file changes on disk.
// Editors and configuration management tools often replace the file (rename
// or recreate) rather than writing in place, so the watch is placed on the
// parent directory and filtered by name.
type Watcher struct {
	store   *Store
	path    string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	// debounce coalesces the bursts of events a single file replacement
	// produces.
	debounce time.Duration
}

// NewWatcher creates a Watcher for the config file at path. Call Start to
// begin watching and Close to stop.
func NewWatcher(store *Store, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	return &Watcher{
		store:    store,
		path:     path,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		debounce: 200 * time.Millisecond,
	}, nil
}

// Start runs the watch loop in a background goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Close stops the watch loop and releases the underlying watcher.
func (w *Watcher) Close() error {
	close(w.stopCh)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	var timer *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})

		case <-pending:
			if err := w.store.Reload(w.path); err != nil {
				slog.Error("configuration reload failed", "path", w.path, "error", err)
			} else {
				slog.Info("configuration reloaded", "path", w.path, "reloads", w.store.Reloads())
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("configuration watcher error", "error", err)

		case <-w.stopCh:
			return
		}
	}
}
