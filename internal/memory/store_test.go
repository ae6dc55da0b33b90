package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), "project")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *Store, title, typ, content string) *Memory {
	t.Helper()
	m, err := s.Create(CreateParams{Title: title, Type: typ, Content: content})
	if err != nil {
		t.Fatalf("Create(%q) failed: %v", title, err)
	}
	return m
}

func TestCreateAssignsSlugAndWritesFile(t *testing.T) {
	s := openTestStore(t)

	m := mustCreate(t, s, "OAuth2 Decision", "decision", "use PKCE")
	if m.ID != "decision-oauth2" {
		t.Fatalf("id = %q, want decision-oauth2", m.ID)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), PermanentDir, "decision-oauth2.md")); err != nil {
		t.Fatalf("memory file not written: %v", err)
	}

	// Same title again in the same scope collides deterministically.
	m2 := mustCreate(t, s, "OAuth2 Decision", "decision", "second")
	if m2.ID != "decision-oauth2-1" {
		t.Fatalf("second id = %q, want decision-oauth2-1", m2.ID)
	}
}

func TestLookupSurvivesResort(t *testing.T) {
	s := openTestStore(t)

	// learning-three sorts between learning-one and learning-two, so
	// creating it shifts existing index entries to new slice slots.
	mustCreate(t, s, "One", "learning", "x")
	m2 := mustCreate(t, s, "Two", "learning", "y")
	mustCreate(t, s, "Three", "learning", "z")

	got, err := s.Read(m2.ID)
	if err != nil {
		t.Fatalf("Read(%q) failed: %v", m2.ID, err)
	}
	if got.Title != "Two" || got.Content != "y" {
		t.Fatalf("Read(%q) = title %q content %q, want Two/y", m2.ID, got.Title, got.Content)
	}

	tags := []string{"auth"}
	if _, err := s.Update(m2.ID, UpdateParams{Tags: &tags}); err != nil {
		t.Fatalf("Update(%q) failed: %v", m2.ID, err)
	}
	for _, e := range s.Entries() {
		hasTag := len(e.Tags) == 1 && e.Tags[0] == "auth"
		if hasTag != (e.ID == m2.ID) {
			t.Fatalf("entry %s tags = %v after updating %s", e.ID, e.Tags, m2.ID)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Create(CreateParams{Title: "T", Type: "banana", Content: "c"})
	if !memerr.IsKind(err, memerr.KindValidation) {
		t.Fatalf("bad type should be validation error, got %v", err)
	}

	_, err = s.Create(CreateParams{Type: "decision", Content: "c"})
	if !memerr.IsKind(err, memerr.KindValidation) {
		t.Fatalf("missing title should be validation error, got %v", err)
	}
}

func TestEphemeralTypeGoesToTemp(t *testing.T) {
	s := openTestStore(t)

	m := mustCreate(t, s, "Session trail", "breadcrumb", "visited auth.go")
	if _, err := os.Stat(filepath.Join(s.Root(), TempDir, m.ID+".md")); err != nil {
		t.Fatalf("breadcrumb should live under %s: %v", TempDir, err)
	}
}

func TestReadFallsBackToDiskProbe(t *testing.T) {
	s := openTestStore(t)
	m := mustCreate(t, s, "Probe", "learning", "body")

	// Wipe the index from disk and memory to simulate staleness.
	if err := os.Remove(s.IndexPath()); err != nil {
		t.Fatalf("remove index: %v", err)
	}
	s.index.Memories = nil
	s.reindex()

	got, err := s.Read(m.ID)
	if err != nil {
		t.Fatalf("Read after index wipe failed: %v", err)
	}
	if got.Title != "Probe" {
		t.Errorf("title = %q", got.Title)
	}
	// The probe heals the index.
	if !s.Exists(m.ID) {
		t.Errorf("expected index to be healed after disk probe")
	}
}

func TestReadNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Read("decision-nope")
	if !memerr.IsKind(err, memerr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUpdateRefreshesUpdatedOnly(t *testing.T) {
	s := openTestStore(t)
	m := mustCreate(t, s, "Mutable", "learning", "v1")

	created := m.Created

	newContent := "v2"
	newTags := []string{"a", "b"}
	got, err := s.Update(m.ID, UpdateParams{Content: &newContent, Tags: &newTags})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Content != "v2" {
		t.Errorf("content = %q", got.Content)
	}
	if !got.Created.Equal(created) {
		t.Errorf("created changed: %v -> %v", created, got.Created)
	}
	if got.ID != m.ID {
		t.Errorf("id changed: %q -> %q", m.ID, got.ID)
	}
	if got.Updated.Before(created) {
		t.Errorf("updated went backwards: %v < %v", got.Updated, created)
	}

	entry, _ := s.Entry(m.ID)
	if len(entry.Tags) != 2 {
		t.Errorf("index entry tags not refreshed: %v", entry.Tags)
	}
}

func TestDeleteIsPermanent(t *testing.T) {
	s := openTestStore(t)
	m := mustCreate(t, s, "Doomed", "gotcha", "bye")

	removed, err := s.Delete(m.ID)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if removed.ID != m.ID {
		t.Errorf("removed entry id = %q", removed.ID)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), removed.RelativePath)); !os.IsNotExist(err) {
		t.Errorf("file should be gone")
	}
	if s.Exists(m.ID) {
		t.Errorf("index entry should be gone")
	}
	if _, err := s.Delete(m.ID); !memerr.IsKind(err, memerr.KindNotFound) {
		t.Errorf("double delete should be NotFound, got %v", err)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	s := openTestStore(t)
	mustCreate(t, s, "One", "decision", "x")
	m2 := mustCreate(t, s, "Two", "learning", "y")
	mustCreate(t, s, "Three", "decision", "z")

	tags := []string{"hot"}
	if _, err := s.Update(m2.ID, UpdateParams{Tags: &tags}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	decisions := s.List(Filter{Type: TypeDecision})
	if len(decisions) != 2 {
		t.Fatalf("decisions = %d, want 2", len(decisions))
	}

	tagged := s.List(Filter{Tag: "hot"})
	if len(tagged) != 1 || tagged[0].ID != m2.ID {
		t.Fatalf("tag filter = %v", tagged)
	}

	all := s.List(Filter{})
	for i := 1; i < len(all); i++ {
		if all[i-1].Updated.Before(all[i].Updated) {
			t.Errorf("list not sorted by updated desc at %d", i)
		}
	}
}

func TestCorruptIndexRebuildsTransparently(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "project")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustCreate(t, s, "Alpha", "decision", "a")
	mustCreate(t, s, "Beta", "learning", "b")

	// Corrupt the index with invalid JSON.
	if err := os.WriteFile(s.IndexPath(), []byte("{corrupt"), 0644); err != nil {
		t.Fatalf("corrupt index: %v", err)
	}

	// Reopening (a fresh invocation) must rebuild and carry on.
	s2, err := Open(root, "project")
	if err != nil {
		t.Fatalf("Open after corruption failed: %v", err)
	}
	all := s2.List(Filter{})
	if len(all) != 2 {
		t.Fatalf("rebuilt index has %d entries, want 2", len(all))
	}

	// The rebuilt file must be valid JSON with sorted entries.
	data, err := os.ReadFile(s2.IndexPath())
	if err != nil {
		t.Fatalf("read rebuilt index: %v", err)
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		t.Fatalf("rebuilt index not parseable: %v", err)
	}
	if idx.Version != IndexVersion {
		t.Errorf("version = %d", idx.Version)
	}
	for i := 1; i < len(idx.Memories); i++ {
		if idx.Memories[i-1].ID > idx.Memories[i].ID {
			t.Errorf("rebuilt index not sorted by id")
		}
	}
}

func TestRebuildSkipsUnparseableFile(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root, "global")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mustCreate(t, s, "Good", "decision", "fine")

	bad := filepath.Join(root, PermanentDir, "decision-bad.md")
	if err := os.WriteFile(bad, []byte("not a memory file"), 0644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}

	if err := s.RebuildIndex(); err != nil {
		t.Fatalf("RebuildIndex failed: %v", err)
	}
	if !s.Exists("decision-good") {
		t.Errorf("good memory lost in rebuild")
	}
	if s.Exists("decision-bad") {
		t.Errorf("unparseable file should not be indexed")
	}
}

func TestSetLinksPreservesUpdated(t *testing.T) {
	s := openTestStore(t)
	m := mustCreate(t, s, "Linked", "decision", "x")

	if err := s.SetLinks(m.ID, []string{"learning-b", "artifact-a"}); err != nil {
		t.Fatalf("SetLinks failed: %v", err)
	}

	got, err := s.Read(m.ID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Links) != 2 || got.Links[0] != "artifact-a" {
		t.Errorf("links = %v, want sorted [artifact-a learning-b]", got.Links)
	}
	if !got.Updated.Equal(m.Updated) {
		t.Errorf("SetLinks must not touch Updated: %v -> %v", m.Updated, got.Updated)
	}
}

func TestTimestampsAreUTC(t *testing.T) {
	s := openTestStore(t)
	m := mustCreate(t, s, "Zones", "artifact", "x")
	if m.Created.Location() != time.UTC {
		t.Errorf("created not UTC: %v", m.Created)
	}
}
