package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/health"

	"github.com/spf13/cobra"
)

var (
	healthDeep    bool
	healthVerbose bool
	watchRepair   bool
)

var healthCmd = &cobra.Command{
	Use:     "health [id]",
	Aliases: []string{"assess"},
	Short:   "Score scope or memory health",
	Long: `Without an id, reports the whole scope: per-memory quality plus
index/graph consistency (ghost nodes, broken edges, connectivity).
With an id, scores that single memory. --deep adds embedding-based
checks (near-duplicates, semantic outliers) when a vector cache
exists.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHealth,
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Fix mechanical drift in the effective scope",
	Long: `Rebuilds the index from files, drops edges with missing endpoints and
ghost nodes, and regenerates stale embeddings. Anything needing
judgment (like merging near-duplicates) is reported, never applied.`,
	RunE: runRepair,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the scope and report or repair drift as it lands",
	RunE:  runWatch,
}

func init() {
	healthCmd.Flags().BoolVar(&healthDeep, "deep", false, "Add embedding-based checks")
	healthCmd.Flags().BoolVar(&healthVerbose, "all", false, "Include healthy memories in the report")
	watchCmd.Flags().BoolVar(&watchRepair, "auto-repair", false, "Apply mechanical fixes instead of only reporting")
}

func runHealth(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	eng := health.New(e.mem, e.graph, e.cache, nil, e.resolver.GitRoot())

	if len(args) == 1 {
		a, err := eng.Assess(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(a)
		}
		fmt.Printf("%s: %d/100 (%s)\n", a.ID, a.Score, a.Rating)
		for _, f := range a.Findings {
			fmt.Printf("  -%d %-22s %s\n", f.Deduction, f.Check, f.Detail)
		}
		return nil
	}

	r := eng.ScopeReport(cmd.Context(), health.ReportOptions{Deep: healthDeep, Verbose: healthVerbose})
	if jsonOutput {
		return printJSON(r)
	}
	fmt.Printf("Scope %s: %d/100 (%s)\n", r.Scope, r.Score, r.Rating)
	fmt.Printf("  %d memories, %d nodes, %d edges\n", r.MemoryCount, r.NodeCount, r.EdgeCount)
	for _, f := range r.Findings {
		fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Check, f.Detail)
	}
	for _, a := range r.Assessments {
		if len(a.Findings) == 0 && !healthVerbose {
			continue
		}
		fmt.Printf("  %s: %d/100 (%s)\n", a.ID, a.Score, a.Rating)
		for _, f := range a.Findings {
			fmt.Printf("    -%d %-22s %s\n", f.Deduction, f.Check, f.Detail)
		}
	}
	return nil
}

func runRepair(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	eng := health.New(e.mem, e.graph, e.cache, e.embedEngine(cmd.Context()), e.resolver.GitRoot())

	res := eng.Repair(cmd.Context())
	if jsonOutput {
		return printJSON(res)
	}
	fmt.Printf("Repair of %s scope:\n", e.scope)
	fmt.Printf("  index rebuilt: %v\n", res.IndexRebuilt)
	fmt.Printf("  edges dropped: %d, ghost nodes dropped: %d\n", res.EdgesDropped, res.GhostsDropped)
	fmt.Printf("  embeddings regenerated: %d\n", res.EmbeddingsRegenerated)
	for _, f := range res.Reported {
		fmt.Printf("  reported: %s\n", f.Detail)
	}
	for _, f := range res.Failures {
		fmt.Printf("  FAILED: %s\n", f.Detail)
	}
	if len(res.Failures) > 0 {
		return fmt.Errorf("repair finished with %d failure(s)", len(res.Failures))
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	eng := health.New(e.mem, e.graph, e.cache, nil, e.resolver.GitRoot())

	w, err := health.NewWatcher(eng, watchRepair)
	if err != nil {
		return err
	}
	if err := w.Start(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Watching %s scope (auto-repair: %v). Ctrl-C to stop.\n", e.scope, watchRepair)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	w.Stop()
	stats := w.Stats()
	fmt.Printf("Stopped. %d events, %d passes, %d repairs, %d errors\n",
		stats.Events, stats.PassesRun, stats.RepairsApplied, stats.Errors)
	return nil
}
