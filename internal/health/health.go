// Package health scores memory quality and repairs the mechanically
// fixable kinds of drift. Scoring starts every entity at 100 and
// subtracts a fixed deduction per detected issue, clamped to [0,100].
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/embedding"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/graph"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityWarning  Severity = "warning"
)

// Deductions per check.
const (
	DeductMissingTitle    = 20
	DeductEmptyContent    = 20
	DeductMissingTags     = 10
	DeductNotInGraph      = 10
	DeductOrphaned        = 10
	DeductStaleFileRef    = 10
	DeductStaleMemory     = 5
	DeductMissingFile     = 30
	DeductGhostNode       = 10
	DeductBrokenEdge      = 10
	DeductLowConnectivity = 10
)

// Scope-level thresholds.
const (
	staleAfter           = 90 * 24 * time.Hour
	orphanMinGraphSize   = 5
	connectivityMinRatio = 0.5

	// Deep-mode thresholds.
	nearDuplicateSim  = 0.92
	clusterOrphanDist = 0.75
	clusterNeighbours = 3
)

// Finding is one detected issue.
type Finding struct {
	Check     string   `json:"check"`
	Severity  Severity `json:"severity"`
	Deduction int      `json:"deduction"`
	ID        string   `json:"id,omitempty"`
	Detail    string   `json:"detail"`
}

// Assessment is a single memory's score.
type Assessment struct {
	ID       string    `json:"id"`
	Score    int       `json:"score"`
	Rating   string    `json:"rating"`
	Findings []Finding `json:"findings,omitempty"`
}

// Report aggregates one scope.
type Report struct {
	Scope       string       `json:"scope"`
	Score       int          `json:"score"`
	Rating      string       `json:"rating"`
	MemoryCount int          `json:"memoryCount"`
	NodeCount   int          `json:"nodeCount"`
	EdgeCount   int          `json:"edgeCount"`
	Findings    []Finding    `json:"findings,omitempty"` // scope-level
	Assessments []Assessment `json:"assessments,omitempty"`
}

// Rating maps a score to its band.
func Rating(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "needs_attention"
	case score >= 25:
		return "poor"
	default:
		return "critical"
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Engine runs assessments and repairs over one scope.
type Engine struct {
	mem     *memory.Store
	graph   *graph.Store
	cache   *embedding.Cache
	embed   embedding.EmbeddingEngine // nil when unreachable
	baseDir string                    // file references resolve against this
	now     func() time.Time
}

// New builds a health engine. embed may be nil; baseDir empty means
// file references are checked against the scope root's parent.
func New(mem *memory.Store, g *graph.Store, cache *embedding.Cache, embed embedding.EmbeddingEngine, baseDir string) *Engine {
	if baseDir == "" {
		baseDir = filepath.Dir(mem.Root())
	}
	return &Engine{mem: mem, graph: g, cache: cache, embed: embed, baseDir: baseDir, now: time.Now}
}

// Assess scores a single memory.
func (e *Engine) Assess(id string) (*Assessment, error) {
	m, err := e.mem.Read(id)
	if err != nil {
		return nil, err
	}
	return e.assess(m), nil
}

func (e *Engine) assess(m *memory.Memory) *Assessment {
	a := &Assessment{ID: m.ID, Score: 100}

	if m.Title == "" {
		a.add("missing-title", SeverityHigh, DeductMissingTitle, "memory has no title")
	}
	if m.Content == "" {
		a.add("empty-content", SeverityHigh, DeductEmptyContent, "memory body is empty")
	}
	if len(m.Tags) == 0 {
		a.add("missing-tags", SeverityMedium, DeductMissingTags, "memory has no tags")
	}
	if !e.graph.HasNode(m.ID) {
		a.add("not-in-graph", SeverityMedium, DeductNotInGraph, "memory has no graph node")
	} else if e.graph.Degree(m.ID) == 0 && e.graph.NodeCount() > orphanMinGraphSize {
		a.add("orphaned", SeverityMedium, DeductOrphaned, "no inbound or outbound edges")
	}
	for _, ref := range staleFileRefs(m.Content, e.baseDir) {
		a.add("stale-file-reference", SeverityMedium, DeductStaleFileRef,
			fmt.Sprintf("body references missing file %s", ref))
	}
	if e.now().Sub(m.Updated) > staleAfter {
		a.add("stale", SeverityLow, DeductStaleMemory,
			fmt.Sprintf("not updated since %s", m.Updated.Format("2006-01-02")))
	}

	a.Score = clamp(a.Score)
	a.Rating = Rating(a.Score)
	return a
}

func (a *Assessment) add(check string, sev Severity, deduction int, detail string) {
	a.Findings = append(a.Findings, Finding{
		Check: check, Severity: sev, Deduction: deduction, ID: a.ID, Detail: detail,
	})
	a.Score -= deduction
}

// fileRefPattern matches backtick-quoted tokens that look like file
// paths (contain a slash or a dot-extension).
var fileRefPattern = regexp.MustCompile("`([A-Za-z0-9_@./-]+/[A-Za-z0-9_@./-]+|[A-Za-z0-9_@-]+\\.[A-Za-z0-9]{1,10})`")

// staleFileRefs returns body-referenced relative paths that do not
// exist under baseDir. Absolute paths and URLs are left alone.
func staleFileRefs(body, baseDir string) []string {
	var stale []string
	for _, match := range fileRefPattern.FindAllStringSubmatch(body, -1) {
		ref := match[1]
		if filepath.IsAbs(ref) || !containsPathSep(ref) {
			continue
		}
		if _, err := os.Stat(filepath.Join(baseDir, ref)); os.IsNotExist(err) {
			stale = append(stale, ref)
		}
	}
	return stale
}

func containsPathSep(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}

// ReportOptions tunes a scope report.
type ReportOptions struct {
	Deep    bool // embedding-based checks, skipped without a cache
	Verbose bool // include per-memory assessments in the report
}

// ScopeReport assesses every memory plus the scope-level invariants.
// Per-item failures are recorded as critical findings; the scan never
// aborts on one bad memory.
func (e *Engine) ScopeReport(ctx context.Context, opts ReportOptions) *Report {
	timer := logging.StartTimer(logging.CategoryHealth, "ScopeReport")
	defer timer.Stop()

	r := &Report{
		Scope:       e.mem.ScopeName(),
		MemoryCount: len(e.mem.Entries()),
		NodeCount:   e.graph.NodeCount(),
		EdgeCount:   len(e.graph.AllEdges()),
	}

	scopeDeduction := 0
	addScope := func(check string, sev Severity, deduction int, id, detail string) {
		r.Findings = append(r.Findings, Finding{
			Check: check, Severity: sev, Deduction: deduction, ID: id, Detail: detail,
		})
		scopeDeduction += deduction
	}

	if !e.mem.HasIndexFile() {
		addScope("missing-index-file", SeverityCritical, DeductMissingFile, "",
			"index.json is missing; run repair to rebuild it")
	}
	if _, err := os.Stat(e.graph.Path()); os.IsNotExist(err) && r.EdgeCount == 0 && r.NodeCount == 0 && r.MemoryCount > 0 {
		addScope("missing-graph-file", SeverityCritical, DeductMissingFile, "",
			"graph.json is missing; run repair to rebuild it")
	}

	// Ghost nodes and broken edges.
	for _, n := range e.graph.Nodes() {
		if !e.mem.Exists(n.ID) {
			addScope("ghost-node", SeverityWarning, DeductGhostNode, n.ID,
				fmt.Sprintf("graph node %s has no index entry", n.ID))
		}
	}
	for _, edge := range e.graph.AllEdges() {
		if !e.mem.Exists(edge.Source) || !e.mem.Exists(edge.Target) {
			addScope("broken-edge", SeverityWarning, DeductBrokenEdge, edge.Source,
				fmt.Sprintf("edge %s -[%s]-> %s has a missing endpoint", edge.Source, edge.Label, edge.Target))
		}
	}

	// Connectivity ratio over the whole graph.
	if n := e.graph.NodeCount(); n > orphanMinGraphSize {
		connected := 0
		for _, node := range e.graph.Nodes() {
			if e.graph.Degree(node.ID) > 0 {
				connected++
			}
		}
		if ratio := float64(connected) / float64(n); ratio < connectivityMinRatio {
			addScope("low-connectivity", SeverityWarning, DeductLowConnectivity, "",
				fmt.Sprintf("only %.0f%% of nodes have edges", ratio*100))
		}
	}

	// Per-memory pass.
	total, scored := 0, 0
	for _, entry := range e.mem.Entries() {
		m, err := e.mem.Read(entry.ID)
		if err != nil {
			addScope("unreadable-memory", SeverityCritical, DeductMissingFile, entry.ID,
				fmt.Sprintf("failed to read %s: %v", entry.ID, err))
			continue
		}
		a := e.assess(m)
		total += a.Score
		scored++
		if opts.Verbose || len(a.Findings) > 0 {
			r.Assessments = append(r.Assessments, *a)
		}
	}

	if opts.Deep {
		e.deepFindings(ctx, r, addScope)
	}

	base := 100
	if scored > 0 {
		base = total / scored
	}
	r.Score = clamp(base - scopeDeduction)
	r.Rating = Rating(r.Score)
	return r
}
