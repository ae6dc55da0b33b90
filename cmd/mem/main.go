package main

import (
	"context"
	"fmt"
	"os"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/config"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/embedding"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/graph"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/logging"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/scope"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	scopeFlag  string
	projectDir string
	jsonOutput bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mem",
	Short: "mem - scoped knowledge store for projects and teams",
	Long: `mem keeps typed, linkable notes (decisions, learnings, gotchas,
artifacts) as plain files under scope directories, with a relationship
graph, health scoring and keyword/semantic search on top.

Scopes: enterprise (org-managed, opt-in), local (worktree, unversioned),
project (worktree, versioned), global (per user).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// env bundles the per-invocation state every command needs.
type env struct {
	cfg      *config.Config
	resolver *scope.Resolver
	scope    scope.Scope
	mem      *memory.Store
	graph    *graph.Store
	cache    *embedding.Cache
}

// openEnv loads config, resolves the effective scope and opens the
// store and graph for it. State is loaded fresh each invocation; there
// is no resident process.
func openEnv() (*env, error) {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return nil, err
	}

	resolver, err := scope.NewResolver(cfg, projectDir)
	if err != nil {
		return nil, err
	}
	s, err := resolver.DefaultScope(scopeFlag)
	if err != nil {
		return nil, err
	}
	root, err := resolver.Root(s)
	if err != nil {
		return nil, err
	}

	if err := logging.Initialize(root); err != nil {
		logger.Warn("file logging unavailable", zap.Error(err))
	}
	logging.Boot("scope=%s root=%s", s, root)

	mem, err := memory.Open(root, string(s))
	if err != nil {
		return nil, err
	}
	g, err := graph.Open(mem)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:      cfg,
		resolver: resolver,
		scope:    s,
		mem:      mem,
		graph:    g,
		cache:    embedding.OpenCache(root),
	}, nil
}

// scopeTarget is one accessible scope opened for a read fan-out.
type scopeTarget struct {
	scope scope.Scope
	mem   *memory.Store
	cache *embedding.Cache
}

// fanOut returns the stores list and search operate over: the forced
// scope alone when --scope is set, otherwise every accessible scope in
// precedence order. A scope that cannot be opened is skipped with a
// warning instead of failing the whole read.
func (e *env) fanOut() []scopeTarget {
	if scopeFlag != "" {
		return []scopeTarget{{scope: e.scope, mem: e.mem, cache: e.cache}}
	}
	var targets []scopeTarget
	for _, s := range e.resolver.AccessibleScopes() {
		if s == e.scope {
			targets = append(targets, scopeTarget{scope: s, mem: e.mem, cache: e.cache})
			continue
		}
		root, err := e.resolver.Root(s)
		if err != nil {
			continue
		}
		mem, err := memory.Open(root, string(s))
		if err != nil {
			logger.Warn("skipping unreadable scope", zap.String("scope", string(s)), zap.Error(err))
			continue
		}
		targets = append(targets, scopeTarget{scope: s, mem: mem, cache: embedding.OpenCache(root)})
	}
	return targets
}

// embedEngine probes the configured provider chain once for this
// invocation. nil means semantic features degrade to keyword.
func (e *env) embedEngine(ctx context.Context) embedding.EmbeddingEngine {
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout())
	defer cancel()
	engine, err := embedding.NewEngine(probeCtx, e.cfg.Embedding)
	if err != nil {
		logger.Debug("embedding engine unavailable", zap.Error(err))
		return nil
	}
	return engine
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&scopeFlag, "scope", "s", "", "Scope to operate on (enterprise|local|project|global)")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project-dir", "C", "", "Project directory (default: current)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of text")

	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(scopesCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
