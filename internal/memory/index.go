package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
)

// IndexFileName is the per-scope index cache file.
const IndexFileName = "index.json"

const rebuildParallelism = 8

// loadIndex reads index.json. Any failure (missing file, bad JSON)
// triggers a transparent full rebuild; the in-flight operation never
// fails because of a corrupted index.
func (s *Store) loadIndex() error {
	path := s.IndexPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.StoreDebug("no index at %s, rebuilding from files", path)
		} else {
			logging.Get(logging.CategoryStore).Warn("failed to read index %s: %v, rebuilding", path, err)
		}
		return s.RebuildIndex()
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		logging.Get(logging.CategoryStore).Warn("corrupted index %s: %v, rebuilding", path, err)
		return s.RebuildIndex()
	}

	s.index = &idx
	s.reindex()
	logging.StoreDebug("loaded index with %d entries from %s", len(idx.Memories), path)
	return nil
}

// RebuildIndex rescans every memory file in the scope and regenerates
// index.json. The result is deterministic: entries sorted by id, so an
// uncorrupted index and a rebuilt one hold the same logical content.
func (s *Store) RebuildIndex() error {
	timer := logging.StartTimer(logging.CategoryStore, "RebuildIndex")
	defer timer.Stop()

	var (
		mu      sync.Mutex
		entries []IndexEntry
	)

	g := new(errgroup.Group)
	g.SetLimit(rebuildParallelism)

	for _, dir := range []string{PermanentDir, TempDir} {
		dirPath := filepath.Join(s.root, dir)
		names, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, de := range names {
			if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
				continue
			}
			relPath := filepath.Join(dir, de.Name())
			id := strings.TrimSuffix(de.Name(), ".md")
			g.Go(func() error {
				data, err := os.ReadFile(filepath.Join(s.root, relPath))
				if err != nil {
					logging.Get(logging.CategoryStore).Warn("rebuild: cannot read %s: %v", relPath, err)
					return nil
				}
				m, err := ParseFile(id, data)
				if err != nil {
					// A single bad file must not abort the rescan.
					logging.Get(logging.CategoryStore).Warn("rebuild: cannot parse %s: %v", relPath, err)
					return nil
				}
				entry := IndexEntry{
					ID:           m.ID,
					Type:         m.Type,
					Title:        m.Title,
					Tags:         m.Tags,
					Created:      m.Created,
					Updated:      m.Updated,
					Scope:        s.scopeName,
					RelativePath: relPath,
				}
				mu.Lock()
				entries = append(entries, entry)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	s.index = &Index{
		Version:     IndexVersion,
		LastUpdated: time.Now().UTC(),
		Memories:    entries,
	}
	s.reindex()
	logging.Store("rebuilt index for scope %s: %d entries", s.scopeName, len(entries))
	return s.saveIndex()
}

// saveIndex persists index.json atomically. Sorting moves entries
// between slice slots, so the id map must be rebuilt afterwards.
func (s *Store) saveIndex() error {
	s.index.LastUpdated = time.Now().UTC()
	sort.Slice(s.index.Memories, func(i, j int) bool {
		return s.index.Memories[i].ID < s.index.Memories[j].ID
	})
	s.reindex()
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(s.IndexPath(), append(data, '\n'))
}

// reindex refreshes the id lookup map from the index slice.
func (s *Store) reindex() {
	s.byID = make(map[string]*IndexEntry, len(s.index.Memories))
	for i := range s.index.Memories {
		s.byID[s.index.Memories[i].ID] = &s.index.Memories[i]
	}
}

// IndexPath returns the scope's index.json location.
func (s *Store) IndexPath() string {
	return filepath.Join(s.root, IndexFileName)
}

// HasIndexFile reports whether index.json exists on disk.
func (s *Store) HasIndexFile() bool {
	_, err := os.Stat(s.IndexPath())
	return err == nil
}

// DiskIDs scans the scope directories and returns id -> relative path
// for every memory file actually on disk. Used by the quality engine
// to detect index drift.
func (s *Store) DiskIDs() map[string]string {
	ids := make(map[string]string)
	for _, dir := range []string{PermanentDir, TempDir} {
		names, err := os.ReadDir(filepath.Join(s.root, dir))
		if err != nil {
			continue
		}
		for _, de := range names {
			if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
				continue
			}
			ids[strings.TrimSuffix(de.Name(), ".md")] = filepath.Join(dir, de.Name())
		}
	}
	return ids
}
