package main

import (
	"fmt"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/graph"

	"github.com/spf13/cobra"
)

var (
	linkLabel   string
	unlinkLabel string
	graphDepth  int
)

var linkCmd = &cobra.Command{
	Use:   "link [source-id] [target-id]",
	Short: "Link two memories",
	Long: `Records a labelled relationship. The inverse edge is written
automatically (implements <-> implemented-by, supersedes <->
superseded-by, depends-on <-> required-by, derived-from <-> source-of,
part-of <-> contains, blocks <-> blocked-by; anything else is its own
inverse). Linking the same pair and label twice is a no-op.`,
	Args: cobra.ExactArgs(2),
	RunE: runLink,
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink [source-id] [target-id]",
	Short: "Remove a link between two memories",
	Args:  cobra.ExactArgs(2),
	RunE:  runUnlink,
}

var graphCmd = &cobra.Command{
	Use:   "graph [id]",
	Short: "Show a memory's edges, or traverse from it",
	Long: `Without --depth, lists the memory's inbound and outbound edges.
With --depth, walks the graph breadth-first from the memory (capped
output; cycles are safe).`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	linkCmd.Flags().StringVarP(&linkLabel, "label", "l", "relates-to", "Relationship label")
	unlinkCmd.Flags().StringVarP(&unlinkLabel, "label", "l", "", "Label to remove (default: all labels between the pair)")
	graphCmd.Flags().IntVarP(&graphDepth, "depth", "d", 0, "Traverse to this depth instead of listing edges")
}

func runLink(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	already, err := e.graph.Link(args[0], args[1], linkLabel)
	if err != nil {
		return err
	}
	if already {
		fmt.Printf("%s -[%s]-> %s already exists\n", args[0], linkLabel, args[1])
		return nil
	}
	fmt.Printf("Linked %s -[%s]-> %s (inverse: %s)\n", args[0], linkLabel, args[1], graph.InverseLabel(linkLabel))
	return nil
}

func runUnlink(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	if err := e.graph.Unlink(args[0], args[1], unlinkLabel); err != nil {
		return err
	}
	fmt.Printf("Unlinked %s and %s\n", args[0], args[1])
	return nil
}

func runGraph(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	id := args[0]

	if graphDepth > 0 {
		res, err := e.graph.Traverse(id, graphDepth)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("Reachable from %s (depth %d):\n", id, graphDepth)
		for _, n := range res.Nodes {
			fmt.Printf("  %-40s %s\n", n.ID, n.Title)
		}
		for _, edge := range res.Edges {
			fmt.Printf("  %s -[%s]-> %s\n", edge.Source, edge.Label, edge.Target)
		}
		if res.Truncated {
			fmt.Println("  (output truncated)")
		}
		return nil
	}

	set := e.graph.Edges(id)
	if jsonOutput {
		return printJSON(set)
	}
	if len(set.Outbound) == 0 && len(set.Inbound) == 0 {
		fmt.Printf("%s has no edges\n", id)
		return nil
	}
	for _, edge := range set.Outbound {
		fmt.Printf("  %s -[%s]-> %s\n", edge.Source, edge.Label, edge.Target)
	}
	for _, edge := range set.Inbound {
		fmt.Printf("  %s <-[%s]- %s\n", edge.Target, edge.Label, edge.Source)
	}
	return nil
}
