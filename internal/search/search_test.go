package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/config"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/embedding"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// vecEngine maps exact texts to fixed vectors.
type vecEngine struct {
	vectors map[string][]float32
	fail    bool
}

func (v *vecEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v.fail {
		return nil, errors.New("engine down")
	}
	if vec, ok := v.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (v *vecEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := v.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (v *vecEngine) Dimensions() int { return 3 }
func (v *vecEngine) Name() string    { return "vec" }

func testScope(t *testing.T) (*memory.Store, *embedding.Cache) {
	t.Helper()
	mem, err := memory.Open(t.TempDir(), "project")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return mem, embedding.OpenCache(mem.Root())
}

func seed(t *testing.T, mem *memory.Store, title, content string) *memory.Memory {
	t.Helper()
	m, err := mem.Create(memory.CreateParams{Title: title, Type: "learning", Content: content})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return m
}

func searchCfg() config.SearchConfig {
	return config.SearchConfig{MinSimilarity: 0.35, MaxResults: 20}
}

func TestKeywordTitleRanksAboveBody(t *testing.T) {
	mem, cache := testScope(t)
	seed(t, mem, "Retry strategy", "exponential backoff everywhere")
	seed(t, mem, "Networking notes", "we chose a retry budget of three")

	s := New(mem, cache, nil, searchCfg())
	res, err := s.Keyword("retry", 0)
	if err != nil {
		t.Fatalf("Keyword: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Fatalf("hits = %d, want 2", len(res.Hits))
	}
	if res.Hits[0].ID != "learning-retry-strategy" {
		t.Errorf("title match should rank first, got %s", res.Hits[0].ID)
	}
	if res.Mode != ModeKeyword {
		t.Errorf("mode = %s", res.Mode)
	}
}

func TestKeywordCaseInsensitiveWithSnippet(t *testing.T) {
	mem, cache := testScope(t)
	long := strings.Repeat("x", 100) + " the TOKEN lives here " + strings.Repeat("y", 100)
	seed(t, mem, "Secrets", long)

	s := New(mem, cache, nil, searchCfg())
	res, err := s.Keyword("token", 0)
	if err != nil {
		t.Fatalf("Keyword: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("hits = %d", len(res.Hits))
	}
	snip := res.Hits[0].Snippet
	if !strings.Contains(snip, "TOKEN") {
		t.Errorf("snippet should contain the match: %q", snip)
	}
	if !strings.HasPrefix(snip, "…") || !strings.HasSuffix(snip, "…") {
		t.Errorf("mid-body snippet should be elided both sides: %q", snip)
	}
	if len(snip) > 2*snippetRadius+len("token")+8 {
		t.Errorf("snippet too long: %d chars", len(snip))
	}
}

func TestSemanticRanksByCosine(t *testing.T) {
	mem, cache := testScope(t)
	near := seed(t, mem, "Near", "close to the query")
	far := seed(t, mem, "Far", "unrelated")
	cache.Put(near.ID, embedding.EmbedText(near), []float32{1, 0, 0})
	cache.Put(far.ID, embedding.EmbedText(far), []float32{0, 1, 0})

	eng := &vecEngine{vectors: map[string][]float32{"query": {1, 0.1, 0}}}
	s := New(mem, cache, eng, searchCfg())

	res, err := s.Semantic(context.Background(), "query", Options{})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if res.Mode != ModeSemantic {
		t.Fatalf("mode = %s", res.Mode)
	}
	if len(res.Hits) != 1 || res.Hits[0].ID != near.ID {
		t.Fatalf("hits = %+v, want just %s", res.Hits, near.ID)
	}
	if res.Hits[0].Score < 0.9 {
		t.Errorf("score = %f", res.Hits[0].Score)
	}
}

func TestSemanticRefreshesStaleVectors(t *testing.T) {
	mem, cache := testScope(t)
	m := seed(t, mem, "Auth choice", "we use OAuth2 PKCE")
	cache.Put(m.ID, embedding.EmbedText(m), []float32{1, 0, 0})

	// Rewriting the body leaves the cached vector behind the content.
	body := "gardening notes, nothing about auth"
	if _, err := mem.Update(m.ID, memory.UpdateParams{Content: &body}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := mem.Read(m.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if _, ok := cache.Get(m.ID, embedding.EmbedText(updated)); ok {
		t.Fatal("cache should report the vector stale after the edit")
	}

	vectors := map[string][]float32{"q": {1, 0, 0}}
	vectors[embedding.EmbedText(updated)] = []float32{0, 1, 0}
	s := New(mem, cache, &vecEngine{vectors: vectors}, searchCfg())

	res, err := s.Semantic(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	// The stale vector scored 1.0 against the query; the regenerated
	// one is orthogonal and must fall below the cutoff.
	if len(res.Hits) != 0 {
		t.Fatalf("stale vector served: %+v", res.Hits)
	}
	if _, ok := cache.Get(m.ID, embedding.EmbedText(updated)); !ok {
		t.Error("regenerated vector not written back to the cache")
	}
}

func TestSemanticAutoLinkFloor(t *testing.T) {
	mem, cache := testScope(t)
	m := seed(t, mem, "Mid", "middling similarity")
	cache.Put(m.ID, embedding.EmbedText(m), []float32{1, 1, 0})

	// Similarity against the query is ~0.707, above exploratory cutoff
	// but below the auto-link floor.
	eng := &vecEngine{vectors: map[string][]float32{"q": {1, 0, 0}}}
	s := New(mem, cache, eng, searchCfg())

	res, err := s.Semantic(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if len(res.Hits) != 1 {
		t.Fatalf("exploratory search should include the hit, got %d", len(res.Hits))
	}

	// Even an explicit low cutoff cannot undercut the floor.
	res, err = s.Semantic(context.Background(), "q", Options{AutoLink: true, MinSimilarity: 0.1})
	if err != nil {
		t.Fatalf("Semantic auto-link: %v", err)
	}
	if len(res.Hits) != 0 {
		t.Errorf("auto-link floor not enforced: %+v", res.Hits)
	}
}

func TestSemanticFallsBackToKeyword(t *testing.T) {
	mem, cache := testScope(t)
	seed(t, mem, "Fallback target", "keyword match here")

	// No engine at all.
	s := New(mem, cache, nil, searchCfg())
	res, err := s.Semantic(context.Background(), "fallback", Options{})
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if res.Mode != ModeKeyword {
		t.Errorf("mode = %s, want keyword fallback", res.Mode)
	}
	if len(res.Hits) != 1 {
		t.Errorf("fallback found %d hits", len(res.Hits))
	}

	// Engine present but erroring.
	s = New(mem, cache, &vecEngine{fail: true}, searchCfg())
	res, err = s.Semantic(context.Background(), "fallback", Options{})
	if err != nil {
		t.Fatalf("Semantic with failing engine: %v", err)
	}
	if res.Mode != ModeKeyword {
		t.Errorf("mode = %s, want keyword fallback on engine error", res.Mode)
	}
}

func TestSearchLimit(t *testing.T) {
	mem, cache := testScope(t)
	for _, title := range []string{"Alpha topic", "Beta topic", "Gamma topic"} {
		seed(t, mem, title, "shared body")
	}
	s := New(mem, cache, nil, searchCfg())
	res, err := s.Keyword("topic", 2)
	if err != nil {
		t.Fatalf("Keyword: %v", err)
	}
	if len(res.Hits) != 2 {
		t.Errorf("limit ignored: %d hits", len(res.Hits))
	}
}
