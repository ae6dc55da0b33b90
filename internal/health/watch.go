package health

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes a scope directory and repairs drift as concurrent
// invocations land. Events are debounced so a burst of writes from one
// logical operation triggers a single pass.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	engine      *Engine
	root        string
	autoRepair  bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for diagnostics.
type WatcherStats struct {
	Events         int
	PassesRun      int
	RepairsApplied int
	Errors         int
	LastEventPath  string
	LastEventTime  time.Time
}

// NewWatcher creates a watcher over the engine's scope root. With
// autoRepair false it only reports drift to the log.
func NewWatcher(engine *Engine, autoRepair bool) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fsw,
		engine:      engine,
		root:        engine.mem.Root(),
		autoRepair:  autoRepair,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a
// goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range []string{w.root, filepath.Join(w.root, memory.PermanentDir), filepath.Join(w.root, memory.TempDir)} {
		if err := w.watcher.Add(dir); err != nil {
			logging.Get(logging.CategoryHealth).Warn("watch: failed to add %s: %v", dir, err)
		}
	}
	logging.Health("watch: observing scope root %s (autoRepair=%v)", w.root, w.autoRepair)

	go w.run(ctx)
	return nil
}

// Stop shuts the watcher down and waits for the loop to exit.
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

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryHealth).Error("watch: error closing watcher: %v", err)
	}
}

// Running reports whether the event loop is active.
func (w *Watcher) Running() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Stats returns a copy of the activity counters.
func (w *Watcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
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
			logging.Get(logging.CategoryHealth).Error("watch: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !interesting(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	logging.HealthDebug("watch: %s %s", event.Op, event.Name)
	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// interesting filters for the files that participate in scope state.
func interesting(path string) bool {
	base := filepath.Base(path)
	if base == memory.IndexFileName || base == "graph.json" || base == "embeddings.json" {
		return true
	}
	return strings.HasSuffix(base, ".md")
}

func (w *Watcher) processSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	settled := 0
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			delete(w.debounceMap, path)
			settled++
		}
	}
	w.mu.Unlock()
	if settled == 0 {
		return
	}

	w.mu.Lock()
	w.stats.PassesRun++
	w.mu.Unlock()

	if w.autoRepair {
		res := w.engine.Repair(ctx)
		if res.EdgesDropped > 0 || res.GhostsDropped > 0 {
			w.mu.Lock()
			w.stats.RepairsApplied++
			w.mu.Unlock()
		}
		return
	}

	report := w.engine.ScopeReport(ctx, ReportOptions{})
	if len(report.Findings) > 0 {
		logging.Health("watch: drift detected in %s: %d scope findings, score %d",
			report.Scope, len(report.Findings), report.Score)
	}
}
