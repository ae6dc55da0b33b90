// Package memory implements the entity storage layer: memory files
// with YAML frontmatter, slug generation, CRUD and the per-scope
// index.json cache.
package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
)

// Type is the closed set of memory kinds. A memory's type is carried
// explicitly and never inferred from its id prefix.
type Type string

const (
	TypeDecision   Type = "decision"
	TypeLearning   Type = "learning"
	TypeArtifact   Type = "artifact"
	TypeGotcha     Type = "gotcha"
	TypeBreadcrumb Type = "breadcrumb"
	TypeHub        Type = "hub"
)

// ValidTypes lists every allowed memory type.
var ValidTypes = []Type{TypeDecision, TypeLearning, TypeArtifact, TypeGotcha, TypeBreadcrumb, TypeHub}

// ParseType validates a memory type name.
func ParseType(s string) (Type, error) {
	for _, t := range ValidTypes {
		if Type(s) == t {
			return t, nil
		}
	}
	names := make([]string, len(ValidTypes))
	for i, t := range ValidTypes {
		names[i] = string(t)
	}
	return "", memerr.Validation("memory.type",
		fmt.Sprintf("invalid memory type %q", s),
		"valid types: "+strings.Join(names, ", "))
}

// Ephemeral reports whether memories of this type live in the
// temporary subdirectory.
func (t Type) Ephemeral() bool {
	return t == TypeBreadcrumb
}

// Memory is a single stored note: typed frontmatter plus a body.
// Extra holds frontmatter keys unknown to the schema; they are
// preserved verbatim across read and write.
type Memory struct {
	ID       string
	Type     Type
	Title    string
	Tags     []string
	Content  string
	Created  time.Time
	Updated  time.Time
	Severity string
	Source   string
	Links    []string // denormalized projection of outgoing graph edges
	Extra    map[string]any
}

// IndexEntry mirrors a memory's metadata for O(1) lookup and listing.
type IndexEntry struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	Title        string    `json:"title"`
	Tags         []string  `json:"tags"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	Scope        string    `json:"scope"`
	RelativePath string    `json:"relativePath"`
}

// Index is the persisted index.json cache for a scope. The set of
// entry ids must equal the set of memory files on disk; drift is
// repaired by a full rescan.
type Index struct {
	Version     int          `json:"version"`
	LastUpdated time.Time    `json:"lastUpdated"`
	Memories    []IndexEntry `json:"memories"`
}

// IndexVersion is the current index.json schema version.
const IndexVersion = 1

// Filter selects index entries for List.
type Filter struct {
	Type Type   // empty matches all
	Tag  string // empty matches all
}

// Matches reports whether an entry passes the filter.
func (f Filter) Matches(e IndexEntry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, tag := range e.Tags {
			if tag == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
