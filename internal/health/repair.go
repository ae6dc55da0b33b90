package health

import (
	"context"
	"fmt"
	"sort"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/embedding"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// RepairResult summarizes what repair fixed and what it only reported.
type RepairResult struct {
	IndexRebuilt          bool      `json:"indexRebuilt"`
	EdgesDropped          int       `json:"edgesDropped"`
	GhostsDropped         int       `json:"ghostsDropped"`
	EmbeddingsRegenerated int       `json:"embeddingsRegenerated"`
	Reported              []Finding `json:"reported,omitempty"`
	Failures              []Finding `json:"failures,omitempty"`
}

// Repair applies the mechanically unambiguous fixes: rebuild the index
// from files, drop broken edges and ghost nodes, regenerate missing or
// stale embeddings. Anything needing judgment is reported only.
// Individual failures are recorded and the pass continues.
func (e *Engine) Repair(ctx context.Context) *RepairResult {
	timer := logging.StartTimer(logging.CategoryHealth, "Repair")
	defer timer.Stop()

	res := &RepairResult{}
	fail := func(check, detail string, err error) {
		res.Failures = append(res.Failures, Finding{
			Check: check, Severity: SeverityCritical, Detail: fmt.Sprintf("%s: %v", detail, err),
		})
	}

	if err := e.mem.RebuildIndex(); err != nil {
		fail("index-rebuild", "failed to rebuild index", err)
	} else {
		res.IndexRebuilt = true
	}

	edges, ghosts, err := e.graph.Prune()
	res.EdgesDropped = edges
	res.GhostsDropped = ghosts
	if err != nil {
		fail("graph-prune", "failed to persist pruned graph", err)
	}

	if e.embed == nil {
		res.Reported = append(res.Reported, Finding{
			Check: "embeddings-skipped", Severity: SeverityWarning,
			Detail: "embedding engine unreachable; vectors not regenerated",
		})
	} else {
		var memories []*memory.Memory
		for _, entry := range e.mem.Entries() {
			m, err := e.mem.Read(entry.ID)
			if err != nil {
				fail("unreadable-memory", "failed to read "+entry.ID, err)
				continue
			}
			memories = append(memories, m)
		}
		n, err := e.cache.EnsureAll(ctx, e.embed, memories)
		res.EmbeddingsRegenerated = n
		if err != nil {
			fail("embedding-regen", "failed to regenerate embeddings", err)
		}
		// Vectors for deleted memories linger otherwise.
		for _, id := range e.cache.IDs() {
			if !e.mem.Exists(id) {
				e.cache.Remove(id)
			}
		}
		if err := e.cache.Save(); err != nil {
			fail("embedding-cache", "failed to save embedding cache", err)
		}
	}

	logging.Health("repair: indexRebuilt=%v edgesDropped=%d ghostsDropped=%d embeddings=%d failures=%d",
		res.IndexRebuilt, res.EdgesDropped, res.GhostsDropped, res.EmbeddingsRegenerated, len(res.Failures))
	return res
}

// deepFindings adds embedding-based checks to a report. Absent cache
// means the checks are skipped, not failed.
func (e *Engine) deepFindings(_ context.Context, r *Report, addScope func(string, Severity, int, string, string)) {
	if e.cache == nil || !e.cache.Exists() {
		logging.Health("deep mode skipped: no embedding cache for scope %s", e.mem.ScopeName())
		return
	}

	type vec struct {
		id string
		v  []float32
	}
	var vecs []vec
	for _, id := range e.cache.IDs() {
		if !e.mem.Exists(id) {
			continue
		}
		if entry, ok := e.cache.Entry(id); ok {
			vecs = append(vecs, vec{id: id, v: entry.Vector})
		}
	}
	if len(vecs) < 2 {
		return
	}

	// Pairwise similarities feed both checks.
	sims := make([][]float64, len(vecs))
	for i := range sims {
		sims[i] = make([]float64, len(vecs))
	}
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			sim, err := embedding.CosineSimilarity(vecs[i].v, vecs[j].v)
			if err != nil {
				continue
			}
			sims[i][j], sims[j][i] = sim, sim
		}
	}

	// Near-duplicates: judgment call, reported with zero deduction.
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			if sims[i][j] >= nearDuplicateSim {
				addScope("near-duplicate", SeverityWarning, 0, vecs[i].id,
					fmt.Sprintf("%s and %s are %.0f%% similar; consider merging",
						vecs[i].id, vecs[j].id, sims[i][j]*100))
			}
		}
	}

	// Cluster orphans: far from every neighbour.
	for i := 0; i < len(vecs); i++ {
		dists := make([]float64, 0, len(vecs)-1)
		for j := 0; j < len(vecs); j++ {
			if i != j {
				dists = append(dists, 1-sims[i][j])
			}
		}
		sort.Float64s(dists)
		k := clusterNeighbours
		if k > len(dists) {
			k = len(dists)
		}
		var sum float64
		for _, d := range dists[:k] {
			sum += d
		}
		if sum/float64(k) > clusterOrphanDist {
			addScope("cluster-orphan", SeverityWarning, 0, vecs[i].id,
				fmt.Sprintf("%s is semantically distant from its nearest neighbours", vecs[i].id))
		}
	}
}
