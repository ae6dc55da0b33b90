// Package graph maintains the per-scope relationship graph between
// memories. The graph file is the source of truth for relationships;
// each memory's links frontmatter is a projection written after the
// graph, never the other way round.
package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// FileName is the graph file kept at each scope root.
const FileName = "graph.json"

// DefaultLabel is used for edges recovered from frontmatter when the
// graph file itself is unreadable.
const DefaultLabel = "relates-to"

// Node mirrors a memory inside the graph. A node whose id has no
// backing memory is a ghost node; the quality engine reports those.
type Node struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Edge is a directed, labelled relationship. Every forward edge has an
// inverse twin sharing the same timestamp.
type Edge struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

type graphFile struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// inverseLabels pairs each known label with its counterpart. Labels
// absent from the table are their own inverse.
var inverseLabels = map[string]string{
	"implements":     "implemented-by",
	"implemented-by": "implements",
	"supersedes":     "superseded-by",
	"superseded-by":  "supersedes",
	"depends-on":     "required-by",
	"required-by":    "depends-on",
	"derived-from":   "source-of",
	"source-of":      "derived-from",
	"part-of":        "contains",
	"contains":       "part-of",
	"blocks":         "blocked-by",
	"blocked-by":     "blocks",
}

// InverseLabel returns the counterpart label for an edge label.
func InverseLabel(label string) string {
	if inv, ok := inverseLabels[label]; ok {
		return inv
	}
	return label
}

// Store holds one scope's graph with adjacency maps built once per
// load. It is not safe for concurrent use; the CLI is single-threaded
// per invocation and cross-process races resolve last-writer-wins.
type Store struct {
	mem   *memory.Store
	nodes map[string]Node
	edges []Edge
	out   map[string][]int // edge indices by source id
	in    map[string][]int // edge indices by target id
}

// Open loads the scope's graph file. A missing file yields an empty
// graph; an unreadable one is rebuilt from the index and each memory's
// links projection, never failing the in-flight operation.
func Open(mem *memory.Store) (*Store, error) {
	s := &Store{mem: mem}
	path := s.Path()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.reset(nil, nil)
		return s, nil
	}
	if err != nil {
		return nil, memerr.Unavailable("graph.open", "read graph file", err)
	}

	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		logging.Graph("graph file at %s unreadable, rebuilding: %v", path, err)
		if err := s.rebuild(); err != nil {
			return nil, err
		}
		return s, nil
	}
	s.reset(gf.Nodes, gf.Edges)
	return s, nil
}

// Path returns the location of the graph file for this scope.
func (s *Store) Path() string {
	return filepath.Join(s.mem.Root(), FileName)
}

// Nodes returns every node sorted by id.
func (s *Store) Nodes() []Node {
	out := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NodeCount reports the number of nodes in the graph.
func (s *Store) NodeCount() int { return len(s.nodes) }

// HasNode reports whether an id is present in the graph.
func (s *Store) HasNode(id string) bool {
	_, ok := s.nodes[id]
	return ok
}

// AllEdges returns a copy of the full edge list.
func (s *Store) AllEdges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

func (s *Store) reset(nodes []Node, edges []Edge) {
	s.nodes = make(map[string]Node, len(nodes))
	for _, n := range nodes {
		s.nodes[n.ID] = n
	}
	s.edges = edges
	s.reindex()
}

func (s *Store) reindex() {
	s.out = make(map[string][]int)
	s.in = make(map[string][]int)
	for i, e := range s.edges {
		s.out[e.Source] = append(s.out[e.Source], i)
		s.in[e.Target] = append(s.in[e.Target], i)
	}
}

// rebuild reconstructs nodes from the scope index and edges from each
// memory's links projection. Recovered edges get the default label
// since the original labels lived only in the lost graph file.
func (s *Store) rebuild() error {
	timer := logging.StartTimer(logging.CategoryGraph, "rebuild")
	defer timer.Stop()

	var nodes []Node
	var edges []Edge
	seen := make(map[[3]string]bool)

	for _, entry := range s.mem.Entries() {
		nodes = append(nodes, Node{ID: entry.ID, Title: entry.Title, Type: string(entry.Type)})

		m, err := s.mem.Read(entry.ID)
		if err != nil {
			logging.Graph("rebuild: skipping unreadable memory %s: %v", entry.ID, err)
			continue
		}
		for _, target := range m.Links {
			fwd := [3]string{entry.ID, DefaultLabel, target}
			if seen[fwd] {
				continue
			}
			seen[fwd] = true
			seen[[3]string{target, DefaultLabel, entry.ID}] = true
			edges = append(edges,
				Edge{Source: entry.ID, Target: target, Label: DefaultLabel, Timestamp: m.Updated},
				Edge{Source: target, Target: entry.ID, Label: DefaultLabel, Timestamp: m.Updated})
		}
	}

	s.reset(nodes, edges)
	return s.save()
}

func (s *Store) save() error {
	gf := graphFile{Nodes: s.Nodes(), Edges: s.edges}
	if gf.Nodes == nil {
		gf.Nodes = []Node{}
	}
	if gf.Edges == nil {
		gf.Edges = []Edge{}
	}
	data, err := json.MarshalIndent(gf, "", "  ")
	if err != nil {
		return memerr.Wrap(memerr.KindUnavailable, "graph.save", "encode graph", err)
	}
	return memory.WriteFileAtomic(s.Path(), data)
}
