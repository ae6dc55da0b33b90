package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
)

// Subdirectories of a scope root. Ephemeral types (breadcrumbs) live
// under TempDir, everything else under PermanentDir.
const (
	PermanentDir = "memories"
	TempDir      = "temp"
)

// Store provides CRUD over one scope's memory files, backed by the
// index.json cache. A Store is loaded fresh per invocation; it is not
// a long-lived shared singleton.
type Store struct {
	root      string
	scopeName string
	index     *Index
	byID      map[string]*IndexEntry
}

// Open loads (or rebuilds) the index for a scope root, creating the
// directory layout on first use.
func Open(root, scopeName string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, PermanentDir), filepath.Join(root, TempDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create scope directory %s: %w", dir, err)
		}
	}
	s := &Store{root: root, scopeName: scopeName}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the scope root directory.
func (s *Store) Root() string { return s.root }

// ScopeName returns the scope this store serves.
func (s *Store) ScopeName() string { return s.scopeName }

// Entries returns a copy of all index entries.
func (s *Store) Entries() []IndexEntry {
	out := make([]IndexEntry, len(s.index.Memories))
	copy(out, s.index.Memories)
	return out
}

// Exists reports whether an id is present in the index.
func (s *Store) Exists(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// Entry returns the index entry for an id.
func (s *Store) Entry(id string) (IndexEntry, bool) {
	e, ok := s.byID[id]
	if !ok {
		return IndexEntry{}, false
	}
	return *e, true
}

// CreateParams are the inputs to Create. Title, Type and Content are
// required.
type CreateParams struct {
	Title    string
	Type     string
	Content  string
	Tags     []string
	Severity string
	Source   string
	Extra    map[string]any
}

// Create validates the parameters, assigns a unique slug id and writes
// the memory file plus its index entry.
func (s *Store) Create(p CreateParams) (*Memory, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Create")
	defer timer.Stop()

	t, err := ParseType(p.Type)
	if err != nil {
		return nil, err
	}
	if p.Title == "" {
		return nil, memerr.Validation("memory.create", "title is required", "pass a non-empty title")
	}
	if p.Content == "" {
		return nil, memerr.Validation("memory.create", "content is required", "pass a non-empty content body")
	}

	id := UniqueSlug(p.Title, t, s.Exists)
	now := time.Now().UTC().Truncate(time.Second)

	m := &Memory{
		ID:       id,
		Type:     t,
		Title:    p.Title,
		Tags:     p.Tags,
		Content:  p.Content,
		Created:  now,
		Updated:  now,
		Severity: p.Severity,
		Source:   p.Source,
		Extra:    p.Extra,
	}

	relPath := filepath.Join(dirFor(t), id+".md")
	if err := s.writeMemory(m, relPath); err != nil {
		return nil, err
	}

	s.index.Memories = append(s.index.Memories, IndexEntry{
		ID:           id,
		Type:         t,
		Title:        p.Title,
		Tags:         p.Tags,
		Created:      now,
		Updated:      now,
		Scope:        s.scopeName,
		RelativePath: relPath,
	})
	s.reindex()
	if err := s.saveIndex(); err != nil {
		return nil, fmt.Errorf("memory written but index update failed: %w", err)
	}

	logging.Store("created %s in scope %s", id, s.scopeName)
	return m, nil
}

// Read returns the full parsed memory for an id. Lookup goes through
// the index map; when the id is absent the other subdirectory is
// probed (and the index healed) before reporting NotFound.
func (s *Store) Read(id string) (*Memory, error) {
	if entry, ok := s.byID[id]; ok {
		data, err := os.ReadFile(filepath.Join(s.root, entry.RelativePath))
		if err == nil {
			return ParseFile(id, data)
		}
		logging.Get(logging.CategoryStore).Warn("index entry for %s points at missing file %s", id, entry.RelativePath)
	}

	// Index may be stale: probe both subdirectories directly.
	for _, dir := range []string{PermanentDir, TempDir} {
		relPath := filepath.Join(dir, id+".md")
		data, err := os.ReadFile(filepath.Join(s.root, relPath))
		if err != nil {
			continue
		}
		m, err := ParseFile(id, data)
		if err != nil {
			return nil, err
		}
		s.healEntry(m, relPath)
		return m, nil
	}

	return nil, memerr.NotFound("memory.read", id, s.scopeName)
}

// UpdateParams are the merge inputs to Update; nil pointers leave the
// field untouched. Extra keys merge over existing ones.
type UpdateParams struct {
	Title    *string
	Content  *string
	Tags     *[]string
	Severity *string
	Source   *string
	Extra    map[string]any
}

// Update merges changes into an existing memory. Updated is always
// refreshed; Created and ID never change.
func (s *Store) Update(id string, p UpdateParams) (*Memory, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Update")
	defer timer.Stop()

	m, err := s.Read(id)
	if err != nil {
		return nil, err
	}

	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Tags != nil {
		m.Tags = *p.Tags
	}
	if p.Severity != nil {
		m.Severity = *p.Severity
	}
	if p.Source != nil {
		m.Source = *p.Source
	}
	for k, v := range p.Extra {
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
	m.Updated = time.Now().UTC().Truncate(time.Second)

	entry := s.byID[id]
	if err := s.writeMemory(m, entry.RelativePath); err != nil {
		return nil, err
	}

	entry.Title = m.Title
	entry.Tags = m.Tags
	entry.Updated = m.Updated
	if err := s.saveIndex(); err != nil {
		return nil, fmt.Errorf("memory written but index update failed: %w", err)
	}
	logging.Store("updated %s in scope %s", id, s.scopeName)
	return m, nil
}

// SetLinks rewrites a memory's links frontmatter. The links field is a
// projection of the graph, so this does not count as a content change
// and Updated is preserved.
func (s *Store) SetLinks(id string, links []string) error {
	m, err := s.Read(id)
	if err != nil {
		return err
	}
	sorted := append([]string(nil), links...)
	sort.Strings(sorted)
	m.Links = sorted

	entry := s.byID[id]
	return s.writeMemory(m, entry.RelativePath)
}

// Delete removes the memory file and its index entry. Deletion is
// permanent; graph cascade is handled by the graph store. The removed
// entry is returned so callers can cascade.
func (s *Store) Delete(id string) (IndexEntry, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Delete")
	defer timer.Stop()

	entry, ok := s.byID[id]
	if !ok {
		return IndexEntry{}, memerr.NotFound("memory.delete", id, s.scopeName)
	}
	removed := *entry

	if err := os.Remove(filepath.Join(s.root, entry.RelativePath)); err != nil && !os.IsNotExist(err) {
		return IndexEntry{}, fmt.Errorf("failed to remove memory file: %w", err)
	}

	kept := s.index.Memories[:0]
	for _, e := range s.index.Memories {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.index.Memories = kept
	s.reindex()
	if err := s.saveIndex(); err != nil {
		return IndexEntry{}, fmt.Errorf("file removed but index update failed: %w", err)
	}

	logging.Store("deleted %s from scope %s", id, s.scopeName)
	return removed, nil
}

// List returns index entries matching the filter, sorted by Updated
// descending. It reads only the index, never individual files.
func (s *Store) List(f Filter) []IndexEntry {
	timer := logging.StartTimer(logging.CategoryStore, "List")
	defer timer.Stop()

	var out []IndexEntry
	for _, e := range s.index.Memories {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Updated.After(out[j].Updated)
	})
	return out
}

// writeMemory encodes and atomically persists a memory file.
func (s *Store) writeMemory(m *Memory, relPath string) error {
	data, err := m.EncodeFile()
	if err != nil {
		return err
	}
	return WriteFileAtomic(filepath.Join(s.root, relPath), data)
}

// healEntry re-adds an on-disk memory that was missing from the index.
func (s *Store) healEntry(m *Memory, relPath string) {
	if _, ok := s.byID[m.ID]; ok {
		return
	}
	s.index.Memories = append(s.index.Memories, IndexEntry{
		ID:           m.ID,
		Type:         m.Type,
		Title:        m.Title,
		Tags:         m.Tags,
		Created:      m.Created,
		Updated:      m.Updated,
		Scope:        s.scopeName,
		RelativePath: relPath,
	})
	s.reindex()
	if err := s.saveIndex(); err != nil {
		logging.Get(logging.CategoryStore).Warn("failed to heal index for %s: %v", m.ID, err)
	}
}

func dirFor(t Type) string {
	if t.Ephemeral() {
		return TempDir
	}
	return PermanentDir
}

// WriteFileAtomic writes data to a uuid-suffixed temporary file in the
// target directory and renames it into place. Concurrent invocations
// against the same path resolve to last-writer-wins, never a torn file.
func WriteFileAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString()[:8])
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file into place: %w", err)
	}
	return nil
}
