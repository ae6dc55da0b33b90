package embedding

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// fakeEngine returns deterministic vectors and counts calls.
type fakeEngine struct {
	calls int
}

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	v := float32(len(text))
	return []float32{v, v / 2, 1}, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, _ := f.Embed(ctx, t)
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return 3 }
func (f *fakeEngine) Name() string    { return "fake" }

func testMemory(id, title, content string) *memory.Memory {
	return &memory.Memory{ID: id, Type: memory.TypeLearning, Title: title, Content: content}
}

func TestEnsureCachesByContentHash(t *testing.T) {
	root := t.TempDir()
	c := OpenCache(root)
	eng := &fakeEngine{}
	m := testMemory("learning-a", "A", "alpha")

	if _, err := c.Ensure(context.Background(), eng, m); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if _, err := c.Ensure(context.Background(), eng, m); err != nil {
		t.Fatalf("Ensure repeat: %v", err)
	}
	if eng.calls != 1 {
		t.Errorf("unchanged content re-embedded: calls = %d", eng.calls)
	}

	// Editing the content invalidates the cached vector.
	m.Content = "alpha v2"
	if _, err := c.Ensure(context.Background(), eng, m); err != nil {
		t.Fatalf("Ensure after edit: %v", err)
	}
	if eng.calls != 2 {
		t.Errorf("edited content not re-embedded: calls = %d", eng.calls)
	}
}

func TestCacheSaveAndReload(t *testing.T) {
	root := t.TempDir()
	c := OpenCache(root)
	c.Put("learning-a", "text a", []float32{1, 2, 3})
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c2 := OpenCache(root)
	vec, ok := c2.Get("learning-a", "text a")
	if !ok {
		t.Fatalf("entry lost across reload")
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Errorf("vector = %v", vec)
	}
	if _, ok := c2.Get("learning-a", "different text"); ok {
		t.Errorf("stale hash should miss")
	}
}

func TestCorruptCacheStartsFresh(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, CacheFileName), []byte("nope"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c := OpenCache(root)
	if c.Len() != 0 {
		t.Errorf("corrupt cache should load empty, got %d entries", c.Len())
	}
}

func TestEnsureAllBatchesOnlyStale(t *testing.T) {
	root := t.TempDir()
	c := OpenCache(root)
	eng := &fakeEngine{}

	var memories []*memory.Memory
	for i := 0; i < 5; i++ {
		memories = append(memories, testMemory(
			fmt.Sprintf("learning-%d", i), fmt.Sprintf("T%d", i), fmt.Sprintf("content %d", i)))
	}

	n, err := c.EnsureAll(context.Background(), eng, memories)
	if err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	if n != 5 {
		t.Errorf("regenerated = %d, want 5", n)
	}

	// Second pass finds everything fresh.
	n, err = c.EnsureAll(context.Background(), eng, memories)
	if err != nil {
		t.Fatalf("EnsureAll repeat: %v", err)
	}
	if n != 0 {
		t.Errorf("fresh cache regenerated %d", n)
	}
	if !c.Exists() {
		t.Errorf("EnsureAll should persist the cache")
	}
}

func TestCosineSimilarity(t *testing.T) {
	got, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	if err != nil || math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: got %v, %v", got, err)
	}
	got, err = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if err != nil || math.Abs(got) > 1e-9 {
		t.Errorf("orthogonal vectors: got %v, %v", got, err)
	}
	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Errorf("dimension mismatch should error")
	}
	got, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	if err != nil || got != 0 {
		t.Errorf("zero vector should score 0, got %v, %v", got, err)
	}
}

func TestTopK(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},       // orthogonal
		{1, 0.1},     // close
		{1, 0},       // identical
		{1, 2, 3, 4}, // wrong dimension, skipped
	}
	results := TopK(query, corpus, 2)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Index != 2 || results[1].Index != 1 {
		t.Errorf("order = %v", results)
	}
}
