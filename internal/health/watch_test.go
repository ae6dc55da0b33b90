package health

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// opencensus starts a background worker at init via the genai client
// dependency; it is not ours to stop.
var ignoreOpencensus = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

func TestWatcherStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpencensus)

	_, _, e := testEngine(t)
	w, err := NewWatcher(e, false)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !w.Running() {
		t.Errorf("watcher not running after Start")
	}

	// Second Start is a no-op.
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("repeat Start: %v", err)
	}

	w.Stop()
	if w.Running() {
		t.Errorf("watcher still running after Stop")
	}
	// Second Stop is a no-op.
	w.Stop()
}

func TestWatcherCountsMemoryEvents(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpencensus)

	mem, _, e := testEngine(t)
	w, err := NewWatcher(e, false)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(mem.Root(), "memories", "learning-dropin.md")
	if err := os.WriteFile(path, []byte("---\ntitle: X\ntype: learning\n---\nbody"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if w.Stats().Events > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("no events recorded for a new memory file")
}

func TestInterestingPaths(t *testing.T) {
	cases := map[string]bool{
		"/scope/memories/decision-a.md": true,
		"/scope/index.json":             true,
		"/scope/graph.json":             true,
		"/scope/embeddings.json":        true,
		"/scope/logs/today.log":         false,
		"/scope/memories/.swp":          false,
	}
	for path, want := range cases {
		if got := interesting(path); got != want {
			t.Errorf("interesting(%q) = %v, want %v", path, got, want)
		}
	}
}
