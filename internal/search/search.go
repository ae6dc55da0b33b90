// Package search answers keyword and semantic queries over a scope's
// memories. Semantic search degrades to keyword when no embedding
// engine is reachable; the caller learns which mode actually ran.
package search

import (
	"context"
	"sort"
	"strings"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/config"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/embedding"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// AutoLinkFloor is the minimum similarity accepted when the caller's
// intent is creating links automatically. Requests below it are
// raised to it.
const AutoLinkFloor = 0.85

// snippetRadius is how much surrounding context a keyword hit carries.
const snippetRadius = 40

// Mode reports which strategy produced a result set.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
)

// Hit is one search result. Scope names where the memory lives, so
// results merged across scopes stay distinguishable; identical ids in
// different scopes are distinct entities.
type Hit struct {
	ID      string
	Scope   string
	Title   string
	Type    memory.Type
	Score   float64
	Snippet string
}

// Results is a ranked result set plus the mode that produced it.
type Results struct {
	Mode Mode
	Hits []Hit
}

// Options tunes a search call.
type Options struct {
	Semantic      bool
	MinSimilarity float64 // 0 means the configured default
	AutoLink      bool    // enforces AutoLinkFloor
	Limit         int     // 0 means the configured default
}

// Searcher runs queries against one scope. A nil engine means the
// embedding collaborator was unreachable when the session started;
// semantic queries then fall back to keyword without re-probing.
type Searcher struct {
	mem    *memory.Store
	cache  *embedding.Cache
	engine embedding.EmbeddingEngine
	cfg    config.SearchConfig
}

// New builds a Searcher. engine may be nil.
func New(mem *memory.Store, cache *embedding.Cache, engine embedding.EmbeddingEngine, cfg config.SearchConfig) *Searcher {
	return &Searcher{mem: mem, cache: cache, engine: engine, cfg: cfg}
}

// Search dispatches on Options.Semantic.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) (*Results, error) {
	if opts.Semantic {
		return s.Semantic(ctx, query, opts)
	}
	return s.Keyword(query, opts.Limit)
}

// Keyword scans title and body case-insensitively. Title hits rank
// above body hits; each hit carries a surrounding-context snippet.
func (s *Searcher) Keyword(query string, limit int) (*Results, error) {
	timer := logging.StartTimer(logging.CategorySearch, "Keyword")
	defer timer.Stop()

	needle := strings.ToLower(strings.TrimSpace(query))
	res := &Results{Mode: ModeKeyword}
	if needle == "" {
		return res, nil
	}

	for _, entry := range s.mem.Entries() {
		titleIdx := strings.Index(strings.ToLower(entry.Title), needle)

		m, err := s.mem.Read(entry.ID)
		if err != nil {
			logging.Search("keyword: skipping unreadable memory %s: %v", entry.ID, err)
			continue
		}
		bodyIdx := strings.Index(strings.ToLower(m.Content), needle)

		switch {
		case titleIdx >= 0:
			res.Hits = append(res.Hits, Hit{
				ID:      entry.ID,
				Scope:   s.mem.ScopeName(),
				Title:   entry.Title,
				Type:    entry.Type,
				Score:   2,
				Snippet: snippet(entry.Title, titleIdx, len(needle)),
			})
		case bodyIdx >= 0:
			res.Hits = append(res.Hits, Hit{
				ID:      entry.ID,
				Scope:   s.mem.ScopeName(),
				Title:   entry.Title,
				Type:    entry.Type,
				Score:   1,
				Snippet: snippet(m.Content, bodyIdx, len(needle)),
			})
		}
	}

	sort.SliceStable(res.Hits, func(i, j int) bool { return res.Hits[i].Score > res.Hits[j].Score })
	res.Hits = s.clamp(res.Hits, limit)
	return res, nil
}

// Semantic embeds the query and ranks memories by cosine similarity,
// regenerating any cached vector whose content hash has drifted.
// Unreachable engine or a failed embed falls back to keyword search
// transparently.
func (s *Searcher) Semantic(ctx context.Context, query string, opts Options) (*Results, error) {
	timer := logging.StartTimer(logging.CategorySearch, "Semantic")
	defer timer.Stop()

	if s.engine == nil {
		logging.Search("semantic: no embedding engine, falling back to keyword")
		return s.Keyword(query, opts.Limit)
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		logging.Search("semantic: query embed failed, falling back to keyword: %v", err)
		return s.Keyword(query, opts.Limit)
	}

	cutoff := opts.MinSimilarity
	if cutoff <= 0 {
		cutoff = s.cfg.MinSimilarity
	}
	if opts.AutoLink && cutoff < AutoLinkFloor {
		cutoff = AutoLinkFloor
	}

	res := &Results{Mode: ModeSemantic}
	regenerated := 0
	for _, entry := range s.mem.Entries() {
		m, err := s.mem.Read(entry.ID)
		if err != nil {
			logging.Search("semantic: skipping unreadable memory %s: %v", entry.ID, err)
			continue
		}
		// Ensure re-embeds when the cached vector's content hash no
		// longer matches the memory, so edits are never ranked by a
		// stale vector.
		_, hit := s.cache.Get(entry.ID, embedding.EmbedText(m))
		vec, err := s.cache.Ensure(ctx, s.engine, m)
		if err != nil {
			logging.Search("semantic: cannot embed %s, skipping: %v", entry.ID, err)
			continue
		}
		if !hit {
			regenerated++
		}
		sim, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			logging.Search("semantic: dimension mismatch for %s, skipping", entry.ID)
			continue
		}
		if sim < cutoff {
			continue
		}
		res.Hits = append(res.Hits, Hit{
			ID:    entry.ID,
			Scope: s.mem.ScopeName(),
			Title: entry.Title,
			Type:  entry.Type,
			Score: sim,
		})
	}

	if regenerated > 0 {
		if err := s.cache.Save(); err != nil {
			logging.Search("semantic: cannot persist %d regenerated vectors: %v", regenerated, err)
		}
	}

	sort.SliceStable(res.Hits, func(i, j int) bool { return res.Hits[i].Score > res.Hits[j].Score })
	res.Hits = s.clamp(res.Hits, opts.Limit)
	return res, nil
}

func (s *Searcher) clamp(hits []Hit, limit int) []Hit {
	if limit <= 0 {
		limit = s.cfg.MaxResults
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// snippet cuts the match plus surrounding context out of text, adding
// ellipses where it truncates.
func snippet(text string, idx, matchLen int) string {
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + matchLen + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	out := strings.ReplaceAll(text[start:end], "\n", " ")
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}
	return strings.TrimSpace(out)
}
