package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of events editors emit for one save.
const reloadDebounce = 100 * time.Millisecond

// Watcher re-reads a config file whenever it changes on disk and hands
// each successfully validated result to a callback. A file that fails to
// load is reported through the error callback and the previous
// configuration stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	onError  func(error)
}

// NewWatcher watches the directory containing path. Watching the directory
// rather than the file survives editors that replace the file on save.
func NewWatcher(path string, onReload func(*Config), onError func(error)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		onError:  onError,
	}, nil
}

// Run processes file events until ctx is cancelled. It closes the
// underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			cfg, err := LoadFile(w.path)
			if err != nil {
				w.onError(err)
				continue
			}
			w.onReload(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.onError(fmt.Errorf("config watcher: %w", err))
		}
	}
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}
