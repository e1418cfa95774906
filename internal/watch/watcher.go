package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"hone/internal/logging"
	"hone/internal/types"
)

// Watcher tails the tracker event log and reacts to appended item snapshots.
// It watches the log's parent directory so the log file may appear after the
// watcher starts.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	tail        *Tail
	router      *Router
	logPath     string
	debounceDur time.Duration
	dirtyAt     time.Time
	dirty       bool
	seen        map[string]bool
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	flight   singleflight.Group
	triggers sync.WaitGroup

	// OnClosed fires once per deduplicated closure burst. The learn engine
	// hooks it to run a cycle for the closed item.
	OnClosed func(ctx context.Context, item types.WorkItem)

	stats Stats
}

// Stats tracks watcher activity for the status surface and tests.
type Stats struct {
	LinesRead       int
	Created         int
	Updated         int
	Closed          int
	RouteErrors     int
	CyclesTriggered int
	LastEventTime   time.Time
}

// New builds a watcher over the given event log. The tail starts at the
// current end of the file: only snapshots appended after this call are seen.
func New(logPath string, router *Router) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	tail, err := NewTailAtEnd(logPath)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:     fsw,
		tail:        tail,
		router:      router,
		logPath:     logPath,
		debounceDur: 200 * time.Millisecond,
		seen:        make(map[string]bool),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the loop runs until Stop or ctx
// cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.logPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	logging.Watch("watching %s for item events", w.logPath)

	// Catch up on anything appended between construction and now.
	w.drain(ctx)

	go w.run(ctx)
	return nil
}

// Stop halts the loop, waits for in-flight closure triggers, and releases
// the filesystem watch.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.triggers.Wait()

	if err := w.watcher.Close(); err != nil {
		logging.WatchError("error closing watcher: %v", err)
	}
	logging.Watch("watcher stopped")
}

// Running reports whether the loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// GetStats returns a copy of the activity counters.
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchError("watch error: %v", err)

		case <-ticker.C:
			w.mu.Lock()
			due := w.dirty && time.Since(w.dirtyAt) >= w.debounceDur
			if due {
				w.dirty = false
			}
			w.mu.Unlock()
			if due {
				w.drain(ctx)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Name != w.logPath {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	w.mu.Lock()
	w.dirty = true
	w.dirtyAt = time.Now()
	w.stats.LastEventTime = w.dirtyAt
	w.mu.Unlock()
}

// drain consumes new log lines, classifies each snapshot, and routes it.
func (w *Watcher) drain(ctx context.Context) {
	items, err := w.tail.Next()
	if err != nil {
		logging.WatchError("failed to read event log: %v", err)
		return
	}

	for _, item := range items {
		w.mu.Lock()
		first := !w.seen[item.ID]
		w.seen[item.ID] = true
		w.stats.LinesRead++
		w.mu.Unlock()

		kind := Classify(item, first)
		logging.WatchDebug("item %s classified %s", item.ID, kind)

		w.mu.Lock()
		switch kind {
		case EventCreated:
			w.stats.Created++
		case EventUpdated:
			w.stats.Updated++
		case EventClosed:
			w.stats.Closed++
		}
		w.mu.Unlock()

		if err := w.router.Route(ctx, ItemEvent{Kind: kind, Item: item}); err != nil {
			logging.WatchWarn("failed to route %s event for %s: %v", kind, item.ID, err)
			w.mu.Lock()
			w.stats.RouteErrors++
			w.mu.Unlock()
		}

		if kind == EventClosed {
			w.triggerCycle(ctx, item)
		}
	}
}

// triggerCycle runs OnClosed through a single-flight group: closures arriving
// while a cycle is in flight share that cycle instead of stacking new ones.
func (w *Watcher) triggerCycle(ctx context.Context, item types.WorkItem) {
	if w.OnClosed == nil {
		return
	}
	w.triggers.Add(1)
	go func() {
		defer w.triggers.Done()
		w.flight.Do("closure-cycle", func() (interface{}, error) {
			w.mu.Lock()
			w.stats.CyclesTriggered++
			w.mu.Unlock()
			w.OnClosed(ctx, item)
			return nil, nil
		})
	}()
}
