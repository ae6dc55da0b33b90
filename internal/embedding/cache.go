package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// CacheFileName is the per-scope embedding cache.
const CacheFileName = "embeddings.json"

// CacheEntry stores one memory's vector keyed by a content hash so
// edits invalidate the cached embedding.
type CacheEntry struct {
	ID          string    `json:"id"`
	Vector      []float32 `json:"vector"`
	ContentHash string    `json:"contentHash"`
	Timestamp   time.Time `json:"timestamp"`
}

type cacheFile struct {
	Entries []CacheEntry `json:"entries"`
}

// Cache is a scope's embedding store. It loads once and saves
// explicitly; staleness is detected per entry via content hashes.
type Cache struct {
	path    string
	entries map[string]CacheEntry
	dirty   bool
}

// OpenCache loads the embedding cache for a scope root. A missing file
// yields an empty cache; an unreadable one is discarded and rebuilt by
// subsequent Put calls.
func OpenCache(root string) *Cache {
	c := &Cache{
		path:    filepath.Join(root, CacheFileName),
		entries: make(map[string]CacheEntry),
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		return c
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		logging.Embedding("embedding cache at %s unreadable, starting fresh: %v", c.path, err)
		return c
	}
	for _, e := range cf.Entries {
		c.entries[e.ID] = e
	}
	return c
}

// Exists reports whether a cache file is present on disk.
func (c *Cache) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Len reports the number of cached vectors.
func (c *Cache) Len() int { return len(c.entries) }

// ContentHash derives the cache key for a memory's embeddable text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// EmbedText is the canonical text embedded for a memory: title plus
// body, so title-only matches still score.
func EmbedText(m *memory.Memory) string {
	return m.Title + "\n\n" + m.Content
}

// Get returns the cached vector for an id if its hash still matches
// the given text.
func (c *Cache) Get(id, text string) ([]float32, bool) {
	e, ok := c.entries[id]
	if !ok || e.ContentHash != ContentHash(text) {
		return nil, false
	}
	return e.Vector, true
}

// Put stores a vector for an id.
func (c *Cache) Put(id, text string, vector []float32) {
	c.entries[id] = CacheEntry{
		ID:          id,
		Vector:      vector,
		ContentHash: ContentHash(text),
		Timestamp:   time.Now().UTC().Truncate(time.Second),
	}
	c.dirty = true
}

// Remove drops an id from the cache.
func (c *Cache) Remove(id string) {
	if _, ok := c.entries[id]; ok {
		delete(c.entries, id)
		c.dirty = true
	}
}

// IDs returns the cached ids sorted.
func (c *Cache) IDs() []string {
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entry returns the raw cache entry for an id.
func (c *Cache) Entry(id string) (CacheEntry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Save writes the cache back to disk if anything changed.
func (c *Cache) Save() error {
	if !c.dirty {
		return nil
	}
	cf := cacheFile{Entries: make([]CacheEntry, 0, len(c.entries))}
	for _, id := range c.IDs() {
		cf.Entries = append(cf.Entries, c.entries[id])
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return memerr.Wrap(memerr.KindUnavailable, "embedding.cache", "encode cache", err)
	}
	if err := memory.WriteFileAtomic(c.path, data); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// Ensure returns the vector for a memory, embedding and caching it on
// a miss or stale hash.
func (c *Cache) Ensure(ctx context.Context, engine EmbeddingEngine, m *memory.Memory) ([]float32, error) {
	text := EmbedText(m)
	if vec, ok := c.Get(m.ID, text); ok {
		return vec, nil
	}
	vec, err := engine.Embed(ctx, text)
	if err != nil {
		return nil, memerr.Unavailable("embedding.ensure", "embed "+m.ID, err)
	}
	c.Put(m.ID, text, vec)
	return vec, nil
}

// EnsureAll refreshes vectors for every given memory, batching the
// misses through one EmbedBatch call. Returns how many were
// regenerated.
func (c *Cache) EnsureAll(ctx context.Context, engine EmbeddingEngine, memories []*memory.Memory) (int, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "EnsureAll")
	defer timer.Stop()

	var stale []*memory.Memory
	for _, m := range memories {
		if _, ok := c.Get(m.ID, EmbedText(m)); !ok {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	texts := make([]string, len(stale))
	for i, m := range stale {
		texts[i] = EmbedText(m)
	}
	vecs, err := engine.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, memerr.Unavailable("embedding.ensureAll", "batch embed", err)
	}
	for i, m := range stale {
		c.Put(m.ID, texts[i], vecs[i])
	}
	return len(stale), c.Save()
}
