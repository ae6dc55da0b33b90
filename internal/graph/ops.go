package graph

import (
	"sort"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
)

// Traversal output stays bounded regardless of graph shape.
const (
	MaxDepth         = 2
	MaxTraverseNodes = 50
	MaxTraverseEdges = 100
)

// Link records a labelled relationship between two memories. Both
// endpoints must exist in the scope index. The inverse edge is written
// in the same mutation with the same timestamp, and both memories'
// links frontmatter is re-projected afterwards. Linking an identical
// edge again reports alreadyExists without error.
func (s *Store) Link(source, target, label string) (alreadyExists bool, err error) {
	timer := logging.StartTimer(logging.CategoryGraph, "Link")
	defer timer.Stop()

	srcEntry, ok := s.mem.Entry(source)
	if !ok {
		return false, s.notFound("graph.link", source)
	}
	dstEntry, ok := s.mem.Entry(target)
	if !ok {
		return false, s.notFound("graph.link", target)
	}

	if s.hasEdge(source, target, label) {
		return true, nil
	}

	now := time.Now().UTC().Truncate(time.Second)
	s.ensureNode(srcEntry)
	s.ensureNode(dstEntry)
	s.edges = append(s.edges,
		Edge{Source: source, Target: target, Label: label, Timestamp: now},
		Edge{Source: target, Target: source, Label: InverseLabel(label), Timestamp: now})
	s.reindex()

	if err := s.save(); err != nil {
		return false, err
	}
	if err := s.syncLinks(source); err != nil {
		return false, err
	}
	return false, s.syncLinks(target)
}

// Unlink removes the forward edge and its inverse twin, then
// re-projects both memories' frontmatter. An empty label matches every
// label between the pair. A missing edge is a no-op.
func (s *Store) Unlink(source, target, label string) error {
	timer := logging.StartTimer(logging.CategoryGraph, "Unlink")
	defer timer.Stop()

	kept := s.edges[:0]
	removed := 0
	for _, e := range s.edges {
		forward := e.Source == source && e.Target == target
		inverse := e.Source == target && e.Target == source
		if (forward || inverse) && (label == "" || matchesPair(e, source, target, label)) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return nil
	}
	s.edges = kept
	s.reindex()

	if err := s.save(); err != nil {
		return err
	}
	if err := s.syncLinks(source); err != nil {
		return err
	}
	return s.syncLinks(target)
}

func matchesPair(e Edge, source, target, label string) bool {
	if e.Source == source && e.Target == target {
		return e.Label == label
	}
	return e.Label == InverseLabel(label)
}

// EdgeSet holds one node's relationships with direction made explicit.
type EdgeSet struct {
	Outbound []Edge
	Inbound  []Edge
}

// Edges returns the inbound and outbound edges for an id from the
// adjacency maps.
func (s *Store) Edges(id string) EdgeSet {
	var set EdgeSet
	for _, i := range s.out[id] {
		set.Outbound = append(set.Outbound, s.edges[i])
	}
	for _, i := range s.in[id] {
		set.Inbound = append(set.Inbound, s.edges[i])
	}
	return set
}

// Degree reports the total edge count touching an id.
func (s *Store) Degree(id string) int {
	return len(s.out[id]) + len(s.in[id])
}

// TraverseResult is a bounded subgraph reachable from a start node.
type TraverseResult struct {
	Nodes     []Node
	Edges     []Edge
	Truncated bool
}

// Traverse walks breadth-first from start up to maxDepth hops. A
// visited set keeps it terminating on cyclic graphs, and output is
// capped at MaxTraverseNodes and MaxTraverseEdges.
func (s *Store) Traverse(start string, maxDepth int) (*TraverseResult, error) {
	if _, ok := s.nodes[start]; !ok {
		return nil, s.notFound("graph.traverse", start)
	}
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}

	res := &TraverseResult{Nodes: []Node{s.nodes[start]}}
	visited := map[string]bool{start: true}
	frontier := []string{start}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, i := range s.out[id] {
				e := s.edges[i]
				if len(res.Edges) >= MaxTraverseEdges {
					res.Truncated = true
					return res, nil
				}
				res.Edges = append(res.Edges, e)
				if visited[e.Target] {
					continue
				}
				if len(res.Nodes) >= MaxTraverseNodes {
					res.Truncated = true
					return res, nil
				}
				visited[e.Target] = true
				if n, ok := s.nodes[e.Target]; ok {
					res.Nodes = append(res.Nodes, n)
				} else {
					// Ghost target still shows up so the caller can see it.
					res.Nodes = append(res.Nodes, Node{ID: e.Target})
				}
				next = append(next, e.Target)
			}
		}
		frontier = next
	}
	return res, nil
}

// DeleteMemory deletes a memory and cascades through the graph:
// every edge touching the id goes in both directions, surviving
// neighbours get their links re-projected, and hub nodes left with
// zero edges are returned flagged rather than silently deleted.
func (s *Store) DeleteMemory(id string) (emptyHubs []string, err error) {
	timer := logging.StartTimer(logging.CategoryGraph, "DeleteMemory")
	defer timer.Stop()

	neighbours := make(map[string]bool)
	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source == id || e.Target == id {
			other := e.Source
			if other == id {
				other = e.Target
			}
			if other != id {
				neighbours[other] = true
			}
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept
	delete(s.nodes, id)
	s.reindex()

	if _, err := s.mem.Delete(id); err != nil {
		return nil, err
	}
	if err := s.save(); err != nil {
		return nil, err
	}

	for other := range neighbours {
		if err := s.syncLinks(other); err != nil {
			logging.Graph("cascade: failed to re-project links for %s: %v", other, err)
		}
		if n, ok := s.nodes[other]; ok && n.Type == string(memory.TypeHub) && s.Degree(other) == 0 {
			emptyHubs = append(emptyHubs, other)
		}
	}
	sort.Strings(emptyHubs)
	return emptyHubs, nil
}

// Prune drops every edge with an endpoint missing from the index and
// every ghost node, then re-projects links for the memories that lost
// edges. This is the mechanically safe half of repair; judgment calls
// stay with the quality engine.
func (s *Store) Prune() (edgesDropped, ghostsDropped int, err error) {
	timer := logging.StartTimer(logging.CategoryGraph, "Prune")
	defer timer.Stop()

	touched := make(map[string]bool)
	kept := s.edges[:0]
	for _, e := range s.edges {
		if !s.mem.Exists(e.Source) || !s.mem.Exists(e.Target) {
			edgesDropped++
			touched[e.Source] = true
			touched[e.Target] = true
			continue
		}
		kept = append(kept, e)
	}
	s.edges = kept

	for id := range s.nodes {
		if !s.mem.Exists(id) {
			delete(s.nodes, id)
			ghostsDropped++
		}
	}
	s.reindex()

	if edgesDropped == 0 && ghostsDropped == 0 {
		return 0, 0, nil
	}
	if err := s.save(); err != nil {
		return edgesDropped, ghostsDropped, err
	}
	for id := range touched {
		if err := s.syncLinks(id); err != nil {
			logging.Graph("prune: failed to re-project links for %s: %v", id, err)
		}
	}
	return edgesDropped, ghostsDropped, nil
}

// syncLinks rewrites a memory's links frontmatter as the sorted set of
// outbound edge targets. Memories outside the index (ghosts) are
// skipped.
func (s *Store) syncLinks(id string) error {
	if !s.mem.Exists(id) {
		return nil
	}
	targets := make(map[string]bool)
	for _, i := range s.out[id] {
		targets[s.edges[i].Target] = true
	}
	links := make([]string, 0, len(targets))
	for t := range targets {
		links = append(links, t)
	}
	sort.Strings(links)
	return s.mem.SetLinks(id, links)
}

func (s *Store) ensureNode(entry memory.IndexEntry) {
	s.nodes[entry.ID] = Node{ID: entry.ID, Title: entry.Title, Type: string(entry.Type)}
}

func (s *Store) hasEdge(source, target, label string) bool {
	for _, i := range s.out[source] {
		e := s.edges[i]
		if e.Target == target && e.Label == label {
			return true
		}
	}
	return false
}

func (s *Store) notFound(op, id string) error {
	return memerr.NotFound(op, id, s.mem.ScopeName())
}
