// Package embedding generates vectors for semantic memory search.
// Backends: Ollama (local) and Google GenAI (cloud), with a fallback
// chain so a missing local server degrades gracefully.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/config"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
)

// =============================================================================
// EMBEDDING ENGINE INTERFACE
// =============================================================================

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// HealthChecker is an optional interface for engines that can verify
// availability cheaply before batch work is attempted.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// =============================================================================
// FACTORY
// =============================================================================

// probeTimeout bounds the availability check so an absent local server
// costs at most this much per process.
const probeTimeout = 2 * time.Second

// NewEngine builds an engine for the configured provider, walking the
// fallback chain when the primary is unreachable. The availability
// probe result is not cached here; callers hold the engine for the
// life of the invocation.
func NewEngine(ctx context.Context, cfg config.EmbeddingConfig) (EmbeddingEngine, error) {
	timer := logging.StartTimer(logging.CategoryEmbedding, "NewEngine")
	defer timer.Stop()

	providers := append([]string{cfg.Provider}, cfg.Fallbacks...)
	var lastErr error
	for _, p := range providers {
		engine, err := newProviderEngine(p, cfg)
		if err != nil {
			logging.Embedding("provider %s unavailable: %v", p, err)
			lastErr = err
			continue
		}
		if hc, ok := engine.(HealthChecker); ok {
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			err = hc.HealthCheck(probeCtx)
			cancel()
			if err != nil {
				logging.Embedding("provider %s failed health check: %v", p, err)
				lastErr = err
				continue
			}
		}
		logging.Embedding("embedding engine ready: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
		return engine, nil
	}
	return nil, memerr.Unavailable("embedding.engine",
		"no embedding provider reachable", lastErr)
}

func newProviderEngine(provider string, cfg config.EmbeddingConfig) (EmbeddingEngine, error) {
	switch provider {
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	case "":
		return nil, fmt.Errorf("embedding provider not configured")
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", provider)
	}
}

// =============================================================================
// VECTOR MATH
// =============================================================================

// CosineSimilarity calculates the cosine similarity between two
// vectors. 1 means identical direction, 0 orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag)), nil
}

// SimilarityResult pairs a corpus index with its similarity score.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// TopK returns the k corpus vectors most similar to the query, sorted
// by similarity descending. Vectors of mismatched dimension are
// skipped rather than failing the whole search.
func TopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		k = 10
	}

	results := make([]SimilarityResult, 0, len(corpus))
	skipped := 0
	for i, vec := range corpus {
		sim, err := CosineSimilarity(query, vec)
		if err != nil {
			skipped++
			continue
		}
		results = append(results, SimilarityResult{Index: i, Similarity: sim})
	}
	if skipped > 0 {
		logging.Get(logging.CategoryEmbedding).Warn("TopK: skipped %d vectors due to dimension mismatch", skipped)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > k {
		results = results[:k]
	}
	return results
}
