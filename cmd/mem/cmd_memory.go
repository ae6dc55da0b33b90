package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/memory"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/scope"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	writeType     string
	writeContent  string
	writeTags     []string
	writeSeverity string
	writeSource   string

	listType string
	listTag  string

	updateTitle    string
	updateContent  string
	updateTags     []string
	updateSeverity string

	moveTarget string
)

var writeCmd = &cobra.Command{
	Use:   "write [title]",
	Short: "Create a memory",
	Long: `Creates a memory in the effective scope. The id is derived from the
title and type; a second write with the same title gets a -1 suffix.

Example:
  mem write "OAuth2 Decision" --type decision --content "We chose PKCE" --tags auth,oauth`,
	Args: cobra.ExactArgs(1),
	RunE: runWrite,
}

var readCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Print a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories in the effective scope",
	RunE:  runList,
}

var updateCmd = &cobra.Command{
	Use:   "update [id]",
	Short: "Merge changes into a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdate,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a memory and its graph edges",
	Long: `Removes the file, the index entry and every edge touching the memory,
and updates surviving neighbours' links. There is no recycle bin.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var moveCmd = &cobra.Command{
	Use:   "move [id]",
	Short: "Move a memory to another scope",
	Long: `Copies the memory into the target scope, then deletes it from the
source scope (cascading through the source graph). Links do not follow
across scopes.`,
	Args: cobra.ExactArgs(1),
	RunE: runMove,
}

func init() {
	writeCmd.Flags().StringVarP(&writeType, "type", "t", "", "Memory type (decision|learning|artifact|gotcha|breadcrumb|hub)")
	writeCmd.Flags().StringVarP(&writeContent, "content", "c", "", "Memory body (or pipe via stdin)")
	writeCmd.Flags().StringSliceVar(&writeTags, "tags", nil, "Comma-separated tags")
	writeCmd.Flags().StringVar(&writeSeverity, "severity", "", "Severity (for gotchas)")
	writeCmd.Flags().StringVar(&writeSource, "source", "", "Where this memory came from")
	writeCmd.MarkFlagRequired("type")

	listCmd.Flags().StringVarP(&listType, "type", "t", "", "Filter by type")
	listCmd.Flags().StringVar(&listTag, "tag", "", "Filter by tag")

	updateCmd.Flags().StringVar(&updateTitle, "title", "", "New title (id is unchanged)")
	updateCmd.Flags().StringVarP(&updateContent, "content", "c", "", "New body")
	updateCmd.Flags().StringSliceVar(&updateTags, "tags", nil, "Replacement tags")
	updateCmd.Flags().StringVar(&updateSeverity, "severity", "", "New severity")

	moveCmd.Flags().StringVar(&moveTarget, "to", "", "Target scope (required)")
	moveCmd.MarkFlagRequired("to")
}

func runWrite(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	content := writeContent
	if content == "" {
		if data, err := readStdin(); err == nil && len(data) > 0 {
			content = string(data)
		}
	}

	m, err := e.mem.Create(memory.CreateParams{
		Title:    args[0],
		Type:     writeType,
		Content:  content,
		Tags:     writeTags,
		Severity: writeSeverity,
		Source:   writeSource,
	})
	if err != nil {
		return err
	}

	logger.Debug("memory created", zap.String("id", m.ID), zap.String("scope", string(e.scope)))
	if jsonOutput {
		return printJSON(map[string]string{"id": m.ID, "scope": string(e.scope)})
	}
	fmt.Printf("Created %s in %s scope\n", m.ID, e.scope)
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	m, err := e.mem.Read(args[0])
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(m)
	}
	fmt.Printf("# %s\n", m.Title)
	fmt.Printf("id:      %s\ntype:    %s\nscope:   %s\n", m.ID, m.Type, e.scope)
	if len(m.Tags) > 0 {
		fmt.Printf("tags:    %s\n", strings.Join(m.Tags, ", "))
	}
	fmt.Printf("created: %s\nupdated: %s\n", m.Created.Format("2006-01-02 15:04"), m.Updated.Format("2006-01-02 15:04"))
	if len(m.Links) > 0 {
		fmt.Printf("links:   %s\n", strings.Join(m.Links, ", "))
	}
	fmt.Printf("\n%s\n", m.Content)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	f := memory.Filter{Tag: listTag}
	if listType != "" {
		t, err := memory.ParseType(listType)
		if err != nil {
			return err
		}
		f.Type = t
	}

	// Fan out over accessible scopes in precedence order. The same id
	// in two scopes names two distinct memories, so nothing is deduped.
	targets := e.fanOut()
	var entries []memory.IndexEntry
	for _, tgt := range targets {
		entries = append(entries, tgt.mem.List(f)...)
	}

	if jsonOutput {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("No memories found")
		return nil
	}
	for _, entry := range entries {
		fmt.Printf("%-40s %-10s %-10s %s\n", entry.ID, entry.Type, entry.Scope, entry.Updated.Format("2006-01-02"))
	}
	fmt.Printf("\n%d memories across %d scope(s)\n", len(entries), len(targets))
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	p := memory.UpdateParams{}
	if cmd.Flags().Changed("title") {
		p.Title = &updateTitle
	}
	if cmd.Flags().Changed("content") {
		p.Content = &updateContent
	}
	if cmd.Flags().Changed("tags") {
		p.Tags = &updateTags
	}
	if cmd.Flags().Changed("severity") {
		p.Severity = &updateSeverity
	}

	m, err := e.mem.Update(args[0], p)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(map[string]string{"id": m.ID, "updated": m.Updated.Format("2006-01-02 15:04:05")})
	}
	fmt.Printf("Updated %s\n", m.ID)
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}

	emptyHubs, err := e.graph.DeleteMemory(args[0])
	if err != nil {
		return err
	}
	e.cache.Remove(args[0])
	if err := e.cache.Save(); err != nil {
		logger.Warn("failed to update embedding cache", zap.Error(err))
	}

	fmt.Printf("Deleted %s\n", args[0])
	for _, hub := range emptyHubs {
		fmt.Printf("Note: hub %s now has no edges; review or delete it\n", hub)
	}
	return nil
}

func runMove(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	target, err := scope.Parse(moveTarget)
	if err != nil {
		return err
	}
	if target == e.scope {
		fmt.Printf("%s is already in %s scope\n", args[0], target)
		return nil
	}

	m, err := e.mem.Read(args[0])
	if err != nil {
		return err
	}

	targetRoot, err := e.resolver.Root(target)
	if err != nil {
		return err
	}
	targetStore, err := memory.Open(targetRoot, string(target))
	if err != nil {
		return err
	}

	moved, err := targetStore.Create(memory.CreateParams{
		Title:    m.Title,
		Type:     string(m.Type),
		Content:  m.Content,
		Tags:     m.Tags,
		Severity: m.Severity,
		Source:   m.Source,
		Extra:    m.Extra,
	})
	if err != nil {
		return err
	}

	if _, err := e.graph.DeleteMemory(m.ID); err != nil {
		return fmt.Errorf("copied to %s but failed to remove source: %w", target, err)
	}

	fmt.Printf("Moved %s from %s to %s (id %s)\n", m.ID, e.scope, target, moved.ID)
	if len(m.Links) > 0 {
		fmt.Printf("Note: %d link(s) did not follow across scopes\n", len(m.Links))
	}
	return nil
}

func readStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return nil, err
	}
	return io.ReadAll(os.Stdin)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
