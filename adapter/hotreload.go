package adapter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 1500 * time.Millisecond

// Reloader reloads one component.
type Reloader interface {
	ReloadComponent(ctx context.Context, name string) error
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

type watched struct {
	library string
	stamp   fileStamp
}

// LibraryWatcher reloads a component when its library file is replaced on disk.
// The parent directory of every library is watched so that a replace by rename
// is seen too. Events are debounced, then files are compared by size and
// modification time.
type LibraryWatcher struct {
	reloader Reloader
	debounce time.Duration
	logger   *zap.Logger
	watcher  *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]*watched
	dirs  map[string]struct{}
}

// NewLibraryWatcher creates a watcher. A non-positive debounce uses 1.5s.
func NewLibraryWatcher(r Reloader, debounce time.Duration, logger *zap.Logger) (*LibraryWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &LibraryWatcher{
		reloader: r,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
		files:    make(map[string]*watched),
		dirs:     make(map[string]struct{}),
	}, nil
}

func stat(path string) (fileStamp, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{size: fi.Size(), modTime: fi.ModTime()}, nil
}

// Watch starts tracking library for component.
func (w *LibraryWatcher) Watch(component, library string) error {
	library = filepath.Clean(library)
	st, err := stat(library)
	if err != nil {
		return fmt.Errorf("watch %s: %w", component, err)
	}
	dir := filepath.Dir(library)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; !ok {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", component, err)
		}
		w.dirs[dir] = struct{}{}
	}
	w.files[component] = &watched{library: library, stamp: st}
	return nil
}

func (w *LibraryWatcher) tracks(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range w.files {
		if f.library == path {
			return true
		}
	}
	return false
}

// Check reloads every component whose library changed since the last check and
// returns their names, sorted. A library that disappeared is skipped until it
// comes back.
func (w *LibraryWatcher) Check(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	var changed []string
	for name, f := range w.files {
		st, err := stat(f.library)
		if err != nil || st == f.stamp {
			continue
		}
		f.stamp = st
		changed = append(changed, name)
	}
	w.mu.Unlock()
	slices.Sort(changed)

	var errs []error
	for _, name := range changed {
		w.logger.Info("library changed, reloading", zap.String("component", name))
		if err := w.reloader.ReloadComponent(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return changed, errors.Join(errs...)
}

// Run checks the libraries once events on them have settled for the debounce
// period. It returns when ctx is done or the watcher is closed.
func (w *LibraryWatcher) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 && w.tracks(event.Name) {
				timer.Reset(w.debounce)
			}
		case <-timer.C:
			if _, err := w.Check(ctx); err != nil {
				w.logger.Error("reload failed", zap.Error(err))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops watching.
func (w *LibraryWatcher) Close() error {
	return w.watcher.Close()
}
