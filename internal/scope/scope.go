// Package scope maps logical memory scopes to root directories.
// Four scopes exist: enterprise (organization-managed, opt-in), local
// (personal, excluded from version control), project (shared,
// version-controlled) and global (all contexts).
package scope

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/config"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memerr"
)

// Scope is an isolation boundary for memories.
type Scope string

const (
	Enterprise Scope = "enterprise"
	Local      Scope = "local"
	Project    Scope = "project"
	Global     Scope = "global"
)

// All lists every scope in most-specific-wins order.
var All = []Scope{Enterprise, Local, Project, Global}

// Parse validates a scope name.
func Parse(s string) (Scope, error) {
	switch Scope(s) {
	case Enterprise, Local, Project, Global:
		return Scope(s), nil
	}
	return "", memerr.Validation("scope.parse",
		fmt.Sprintf("invalid scope %q", s),
		"valid scopes: enterprise, local, project, global")
}

const (
	projectDirName = ".memory"
	localDirName   = ".memory.local"
	excludeEntry   = localDirName + "/"
)

// Resolver maps scopes to root directories for one invocation.
type Resolver struct {
	cfg        *config.Config
	workDir    string // where the invocation runs, used for worktree detection
	home       string
	gitRoot    string // cached; empty when not inside a worktree
	gitChecked bool
}

// NewResolver builds a resolver rooted at workDir. An empty workDir
// means the current directory.
func NewResolver(cfg *config.Config, workDir string) (*Resolver, error) {
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		workDir = wd
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to determine home directory: %w", err)
	}
	return &Resolver{cfg: cfg, workDir: workDir, home: home}, nil
}

// GitRoot returns the enclosing git worktree root, or "" when workDir
// is not inside one.
func (r *Resolver) GitRoot() string {
	if r.gitChecked {
		return r.gitRoot
	}
	r.gitChecked = true

	dir := r.workDir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			r.gitRoot = dir
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	logging.ScopeDebug("git root for %s: %q", r.workDir, r.gitRoot)
	return r.gitRoot
}

// Root resolves a scope for use. Same as Path, except resolving local
// also ensures the local directory is excluded from version control.
func (r *Resolver) Root(s Scope) (string, error) {
	path, err := r.Path(s)
	if err != nil {
		return "", err
	}
	if s == Local {
		if err := r.ensureLocalExcluded(r.GitRoot()); err != nil {
			logging.Get(logging.CategoryScope).Warn("could not update git exclude file: %v", err)
		}
	}
	return path, nil
}

// Path resolves a single scope to its root directory without side
// effects. Enterprise requires both the config opt-in and a resolvable
// directory; the error names exactly which precondition is missing.
func (r *Resolver) Path(s Scope) (string, error) {
	switch s {
	case Global:
		return filepath.Join(r.home, projectDirName), nil

	case Project:
		root := r.GitRoot()
		if root == "" {
			return "", memerr.Validation("scope.resolve",
				"project scope requires a version-controlled working tree",
				"run inside a git repository, or use --scope global")
		}
		return filepath.Join(root, projectDirName), nil

	case Local:
		root := r.GitRoot()
		if root == "" {
			return "", memerr.Validation("scope.resolve",
				"local scope requires a version-controlled working tree",
				"run inside a git repository, or use --scope global")
		}
		return filepath.Join(root, localDirName), nil

	case Enterprise:
		if !r.cfg.Enterprise.Enabled {
			return "", memerr.PermissionDenied("scope.resolve",
				"enterprise scope is disabled",
				"set enterprise.enabled: true in "+config.DefaultPath())
		}
		dir := r.cfg.Enterprise.Dir
		if dir == "" {
			return "", memerr.PermissionDenied("scope.resolve",
				"enterprise scope has no directory configured",
				"set MEMORY_ENTERPRISE_DIR to the organization memory directory")
		}
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return "", memerr.PermissionDenied("scope.resolve",
				fmt.Sprintf("enterprise directory %q is not accessible", dir),
				"verify MEMORY_ENTERPRISE_DIR points to an existing, readable directory")
		}
		return dir, nil
	}
	return "", memerr.Validation("scope.resolve",
		fmt.Sprintf("invalid scope %q", s),
		"valid scopes: enterprise, local, project, global")
}

// DefaultScope selects the scope for operations that did not specify
// one. Precedence: forced override > validated config default >
// inside a worktree -> project > global. An invalid configured default
// falls through silently.
func (r *Resolver) DefaultScope(forced string) (Scope, error) {
	if forced != "" {
		s, err := Parse(forced)
		if err != nil {
			return "", err
		}
		return s, nil
	}

	if r.cfg.DefaultScope != "" {
		if s, err := Parse(r.cfg.DefaultScope); err == nil {
			// An enterprise default only holds when enterprise resolves.
			if s != Enterprise {
				return s, nil
			}
			if _, err := r.Path(Enterprise); err == nil {
				return Enterprise, nil
			}
		}
		logging.ScopeDebug("ignoring invalid configured default scope %q", r.cfg.DefaultScope)
	}

	if r.GitRoot() != "" {
		return Project, nil
	}
	return Global, nil
}

// AccessibleScopes returns the ordered set of currently-usable scopes:
// enterprise (only when enabled and resolvable), then local, project,
// global. Used by list and search to fan out across scopes.
func (r *Resolver) AccessibleScopes() []Scope {
	scopes := make([]Scope, 0, len(All))
	if _, err := r.Path(Enterprise); err == nil {
		scopes = append(scopes, Enterprise)
	}
	if r.GitRoot() != "" {
		scopes = append(scopes, Local, Project)
	}
	scopes = append(scopes, Global)
	return scopes
}

// ensureLocalExcluded makes sure .git/info/exclude carries the local
// memory directory. Appending is idempotent.
func (r *Resolver) ensureLocalExcluded(gitRoot string) error {
	gitDir := filepath.Join(gitRoot, ".git")
	info, err := os.Stat(gitDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		// .git is a file in linked worktrees; leave exclusion to the user.
		logging.ScopeDebug("%s is not a directory, skipping exclude update", gitDir)
		return nil
	}

	excludePath := filepath.Join(gitDir, "info", "exclude")
	data, err := os.ReadFile(excludePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == excludeEntry {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(excludePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(excludePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	entry := excludeEntry + "\n"
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		entry = "\n" + entry
	}
	if _, err := f.WriteString(entry); err != nil {
		return err
	}
	logging.Scope("added %s to %s", excludeEntry, excludePath)
	return nil
}
