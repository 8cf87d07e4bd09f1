// Package watch reruns sources when their files change on disk.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"polyglot/internal/logging"
	"polyglot/internal/source"
)

// Handler is invoked once per settled change. Handlers run on the watcher's
// goroutine one at a time.
type Handler func(ctx context.Context, src *source.Source)

// Stats counts watcher activity.
type Stats struct {
	Events    int
	Triggered int
	Errors    int
	LastPath  string
	LastEvent time.Time
}

// Watcher watches the directories of a fixed set of sources.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	sources     map[string]*source.Source
	handler     Handler
	debounceMap map[string]time.Time
	debounceDur time.Duration
	tick        time.Duration
	stats       Stats
}

// New creates a Watcher for sources. Nothing is watched until Run.
func New(sources []*source.Source, handler Handler) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*source.Source, len(sources))
	for _, s := range sources {
		byPath[filepath.Clean(s.FullPath())] = s
	}
	return &Watcher{
		watcher:     fw,
		sources:     byPath,
		handler:     handler,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		tick:        100 * time.Millisecond,
	}, nil
}

// Dirs returns the distinct directories being watched, sorted.
func (w *Watcher) Dirs() []string {
	seen := make(map[string]bool)
	var dirs []string
	for path := range w.sources {
		d := filepath.Dir(path)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// Run watches until ctx is cancelled and then releases the underlying
// watcher. It returns the error from adding a directory, if any.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			logging.WatchError("error closing watcher: %v", err)
		}
	}()

	for _, d := range w.Dirs() {
		if err := w.watcher.Add(d); err != nil {
			return err
		}
		logging.WatchDebug("watching %s", d)
	}
	logging.Watch("Watching %d sources in %d directories", len(w.sources), len(w.Dirs()))

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.WatchError("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processDebounced(ctx)
		}
	}
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Editors that save by rename show up as Create on the target name.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(event.Name)
	if _, ok := w.sources[path]; !ok {
		return
	}

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastPath = path
	w.stats.LastEvent = time.Now()
	w.debounceMap[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.stats.Triggered += len(ready)
	w.mu.Unlock()

	sort.Strings(ready)
	for _, path := range ready {
		if ctx.Err() != nil {
			return
		}
		logging.Watch("%s changed", path)
		w.handler(ctx, w.sources[path])
	}
}
