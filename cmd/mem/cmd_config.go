package main

import (
	"fmt"
	"os"

	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/config"
	"github.com/GaZmagik/claude-memory-plugin-sub008/internal/scope"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var scopesCmd = &cobra.Command{
	Use:   "scopes",
	Short: "Show which scopes are usable from here",
	RunE:  runScopes,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func runScopes(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}
	resolver, err := scope.NewResolver(cfg, projectDir)
	if err != nil {
		return err
	}

	accessible := resolver.AccessibleScopes()
	effective, _ := resolver.DefaultScope(scopeFlag)

	for _, s := range scope.All {
		root, err := resolver.Path(s)
		usable := false
		for _, a := range accessible {
			if a == s {
				usable = true
			}
		}
		marker := " "
		if s == effective {
			marker = "*"
		}
		switch {
		case err != nil:
			fmt.Printf("%s %-11s unavailable: %v\n", marker, s, err)
		case !usable:
			fmt.Printf("%s %-11s %s (not usable here)\n", marker, s, root)
		default:
			fmt.Printf("%s %-11s %s\n", marker, s, root)
		}
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cfg)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", config.DefaultPath(), out)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s; edit it directly", path)
	}
	cfg := config.DefaultConfig()
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote defaults to %s\n", path)
	return nil
}
