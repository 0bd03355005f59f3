// Package watcher monitors the index snapshot on disk and triggers a
// re-save when it goes missing.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// SnapshotWatcher watches the snapshot manifest for deletion and calls
// onMissing when it disappears. The snapshot directory itself is watched,
// since fsnotify cannot watch a path that no longer exists.
type SnapshotWatcher struct {
	manifestPath string
	dir          string
	onMissing    func()
	watcher      *fsnotify.Watcher
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.Mutex
	running      bool
	debounce     time.Duration
}

// New creates a watcher for the manifest file inside the snapshot dir.
// onMissing runs after a short debounce so a delete-then-rewrite (the save
// path's rename) does not trigger it.
func New(manifestPath string, onMissing func()) (*SnapshotWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SnapshotWatcher{
		manifestPath: manifestPath,
		dir:          filepath.Dir(manifestPath),
		onMissing:    onMissing,
		watcher:      fsw,
		ctx:          ctx,
		cancel:       cancel,
		debounce:     250 * time.Millisecond,
	}, nil
}

// Start begins watching. Safe to call more than once.
func (w *SnapshotWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addWatch(); err != nil {
		log.Warn().Err(err).Str("dir", w.dir).Msg("Snapshot watch not established yet")
	}

	go w.watchLoop()
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *SnapshotWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	w.cancel()
	return w.watcher.Close()
}

func (w *SnapshotWatcher) addWatch() error {
	if _, err := os.Stat(w.dir); os.IsNotExist(err) {
		return err
	}
	return w.watcher.Add(w.dir)
}

func (w *SnapshotWatcher) watchLoop() {
	var timer *time.Timer

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			path := filepath.Clean(event.Name)

			switch {
			case path == w.dir && event.Op&fsnotify.Remove != 0:
				// Whole snapshot directory removed.
				log.Info().Str("dir", w.dir).Msg("Snapshot directory deleted")
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.handleMissing)

			case path == filepath.Clean(w.manifestPath) && event.Op&fsnotify.Remove != 0:
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, w.handleMissing)

			case path == filepath.Clean(w.manifestPath) && event.Op&fsnotify.Create != 0:
				// Manifest rewritten in place; nothing is missing.
				if timer != nil {
					timer.Stop()
				}

			case path == w.dir && event.Op&fsnotify.Create != 0:
				_ = w.addWatch()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Snapshot watcher error")
		}
	}
}

// handleMissing fires the callback unless the manifest reappeared during
// the debounce window, then re-establishes the watch.
func (w *SnapshotWatcher) handleMissing() {
	if _, err := os.Stat(w.manifestPath); err == nil {
		return
	}
	log.Info().Str("path", w.manifestPath).Msg("Snapshot missing, triggering re-save")

	if w.onMissing != nil {
		w.onMissing()
	}

	go func() {
		time.Sleep(500 * time.Millisecond)
		if err := w.addWatch(); err != nil {
			log.Warn().Err(err).Str("dir", w.dir).Msg("Could not re-establish snapshot watch")
		}
	}()
}
