package main

import (
	"fmt"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/embedding"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/search"

	"github.com/spf13/cobra"
)

var (
	searchSemantic bool
	searchMinSim   float64
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search memories by keyword or meaning",
	Long: `Keyword search matches title and body case-insensitively, ranking
title hits first. --semantic ranks by embedding similarity instead; if
no embedding provider is reachable it falls back to keyword search and
says so.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().BoolVar(&searchSemantic, "semantic", false, "Rank by embedding similarity")
	searchCmd.Flags().Float64Var(&searchMinSim, "min-similarity", 0, "Similarity cutoff (default from config)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (default from config)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	var engine embedding.EmbeddingEngine
	if searchSemantic {
		engine = e.embedEngine(cmd.Context())
	}
	opts := search.Options{
		Semantic:      searchSemantic,
		MinSimilarity: searchMinSim,
		Limit:         searchLimit,
	}

	// Fan out over accessible scopes in precedence order; hits keep
	// their scope tag and identical ids in different scopes both show.
	merged := &search.Results{Mode: search.ModeSemantic}
	for _, tgt := range e.fanOut() {
		res, err := search.New(tgt.mem, tgt.cache, engine, e.cfg.Search).Search(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		if res.Mode == search.ModeKeyword {
			merged.Mode = search.ModeKeyword
		}
		merged.Hits = append(merged.Hits, res.Hits...)
	}

	limit := searchLimit
	if limit <= 0 {
		limit = e.cfg.Search.MaxResults
	}
	if limit > 0 && len(merged.Hits) > limit {
		merged.Hits = merged.Hits[:limit]
	}

	if jsonOutput {
		return printJSON(merged)
	}
	if searchSemantic && merged.Mode == search.ModeKeyword {
		fmt.Println("(embedding provider unreachable; showing keyword results)")
	}
	if len(merged.Hits) == 0 {
		fmt.Println("No results")
		return nil
	}
	for _, h := range merged.Hits {
		if merged.Mode == search.ModeSemantic {
			fmt.Printf("%.3f  %-40s %-10s %s\n", h.Score, h.ID, h.Scope, h.Title)
		} else {
			fmt.Printf("%-40s %-10s %s\n", h.ID, h.Scope, h.Snippet)
		}
	}
	return nil
}
