package scope

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/config"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
)

func newTestResolver(t *testing.T, cfg *config.Config, workDir string) *Resolver {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r, err := NewResolver(cfg, workDir)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func gitWorkDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git", "info"), 0755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}
	return dir
}

func TestParse(t *testing.T) {
	for _, valid := range []string{"enterprise", "local", "project", "global"} {
		if _, err := Parse(valid); err != nil {
			t.Errorf("Parse(%q) failed: %v", valid, err)
		}
	}
	if _, err := Parse("user"); !memerr.IsKind(err, memerr.KindValidation) {
		t.Errorf("Parse(user) should be a validation error, got %v", err)
	}
}

func TestProjectRootInsideWorktree(t *testing.T) {
	dir := gitWorkDir(t)
	sub := filepath.Join(dir, "src", "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	r := newTestResolver(t, nil, sub)
	root, err := r.Root(Project)
	if err != nil {
		t.Fatalf("Root(Project) failed: %v", err)
	}
	if want := filepath.Join(dir, ".memory"); root != want {
		t.Errorf("project root = %q, want %q", root, want)
	}
}

func TestProjectRootOutsideWorktree(t *testing.T) {
	r := newTestResolver(t, nil, t.TempDir())
	if _, err := r.Root(Project); !memerr.IsKind(err, memerr.KindValidation) {
		t.Errorf("expected validation error outside worktree, got %v", err)
	}
}

func TestEnterpriseRequiresOptIn(t *testing.T) {
	dir := t.TempDir()

	// Disabled entirely.
	r := newTestResolver(t, nil, dir)
	_, err := r.Root(Enterprise)
	if !memerr.IsKind(err, memerr.KindPermissionDenied) {
		t.Fatalf("expected PermissionDenied with enterprise disabled, got %v", err)
	}
	if !strings.Contains(err.Error(), "enterprise.enabled") {
		t.Errorf("error should explain how to enable: %v", err)
	}

	// Enabled but no directory.
	cfg := config.DefaultConfig()
	cfg.Enterprise.Enabled = true
	r = newTestResolver(t, cfg, dir)
	if _, err := r.Root(Enterprise); !memerr.IsKind(err, memerr.KindPermissionDenied) {
		t.Fatalf("expected PermissionDenied with no directory, got %v", err)
	}

	// Enabled with a resolvable directory.
	entDir := t.TempDir()
	cfg.Enterprise.Dir = entDir
	r = newTestResolver(t, cfg, dir)
	root, err := r.Root(Enterprise)
	if err != nil {
		t.Fatalf("Root(Enterprise) failed: %v", err)
	}
	if root != entDir {
		t.Errorf("enterprise root = %q, want %q", root, entDir)
	}
}

func TestDefaultScopePrecedence(t *testing.T) {
	worktree := gitWorkDir(t)
	outside := t.TempDir()

	// Forced override wins.
	r := newTestResolver(t, nil, worktree)
	s, err := r.DefaultScope("global")
	if err != nil || s != Global {
		t.Errorf("forced scope: got %v, %v", s, err)
	}

	// Invalid forced override is an error, not a fallthrough.
	if _, err := r.DefaultScope("nonsense"); !memerr.IsKind(err, memerr.KindValidation) {
		t.Errorf("invalid forced scope should be a validation error, got %v", err)
	}

	// Valid configured default.
	cfg := config.DefaultConfig()
	cfg.DefaultScope = "local"
	r = newTestResolver(t, cfg, worktree)
	if s, _ := r.DefaultScope(""); s != Local {
		t.Errorf("configured default: got %v, want local", s)
	}

	// Invalid configured default falls through, never errors.
	cfg = config.DefaultConfig()
	cfg.DefaultScope = "user"
	r = newTestResolver(t, cfg, worktree)
	s, err = r.DefaultScope("")
	if err != nil {
		t.Fatalf("invalid configured default must not error: %v", err)
	}
	if s != Project {
		t.Errorf("inside worktree should default to project, got %v", s)
	}

	// Outside a worktree falls back to global.
	r = newTestResolver(t, nil, outside)
	if s, _ := r.DefaultScope(""); s != Global {
		t.Errorf("outside worktree should default to global, got %v", s)
	}
}

func TestAccessibleScopesOrder(t *testing.T) {
	worktree := gitWorkDir(t)

	cfg := config.DefaultConfig()
	cfg.Enterprise.Enabled = true
	cfg.Enterprise.Dir = t.TempDir()

	r := newTestResolver(t, cfg, worktree)
	got := r.AccessibleScopes()
	want := []Scope{Enterprise, Local, Project, Global}
	if len(got) != len(want) {
		t.Fatalf("AccessibleScopes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("AccessibleScopes = %v, want %v", got, want)
		}
	}

	// Outside a worktree only global remains (enterprise disabled).
	r = newTestResolver(t, nil, t.TempDir())
	got = r.AccessibleScopes()
	if len(got) != 1 || got[0] != Global {
		t.Errorf("AccessibleScopes outside worktree = %v, want [global]", got)
	}
}

func TestLocalScopeUpdatesExcludeFile(t *testing.T) {
	dir := gitWorkDir(t)
	excludePath := filepath.Join(dir, ".git", "info", "exclude")
	if err := os.WriteFile(excludePath, []byte("*.log\n"), 0644); err != nil {
		t.Fatalf("seed exclude: %v", err)
	}

	r := newTestResolver(t, nil, dir)
	if _, err := r.Root(Local); err != nil {
		t.Fatalf("Root(Local) failed: %v", err)
	}
	// Resolving twice must not duplicate the entry.
	if _, err := r.Root(Local); err != nil {
		t.Fatalf("Root(Local) second call failed: %v", err)
	}

	data, err := os.ReadFile(excludePath)
	if err != nil {
		t.Fatalf("read exclude: %v", err)
	}
	count := strings.Count(string(data), ".memory.local/")
	if count != 1 {
		t.Errorf("exclude should contain exactly one entry, got %d in %q", count, data)
	}
	if !strings.Contains(string(data), "*.log") {
		t.Errorf("existing exclude content was lost: %q", data)
	}
}

func TestPathResolvesWithoutSideEffects(t *testing.T) {
	dir := gitWorkDir(t)
	excludePath := filepath.Join(dir, ".git", "info", "exclude")

	r := newTestResolver(t, nil, dir)
	root, err := r.Path(Local)
	if err != nil {
		t.Fatalf("Path(Local) failed: %v", err)
	}
	if want := filepath.Join(dir, ".memory.local"); root != want {
		t.Errorf("local path = %q, want %q", root, want)
	}
	if _, err := os.Stat(excludePath); !os.IsNotExist(err) {
		t.Errorf("Path(Local) must not touch the exclude file: %v", err)
	}

	if _, err := r.Root(Local); err != nil {
		t.Fatalf("Root(Local) failed: %v", err)
	}
	if _, err := os.Stat(excludePath); err != nil {
		t.Errorf("Root(Local) should write the exclude file: %v", err)
	}
}
