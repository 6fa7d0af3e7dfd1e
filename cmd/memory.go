/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/memory"
	"github.com/josephgoksu/ProbeWing/internal/ui"
	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect the local memory store",
}

var memorySearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored conversations, audits and findings",
	Long: `Search the memory store. Without a query, entries are listed by importance.

Examples:
  probewing memory search "xss on login"
  probewing memory search --tag audit --tag switched
  probewing memory search --tag finding --min-importance 0.8 --json`,
	Args: cobra.ArbitraryArgs,
	RunE: runMemorySearch,
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show where memory lives and how many entries it holds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := memory.NewSQLiteStore(memoryPath(), memory.WithLogger(slog.Default()))
		if err != nil {
			return fmt.Errorf("open memory: %w", err)
		}
		defer func() { _ = store.Close() }()

		n, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "path:    %s\nentries: %d\n", memoryPath(), n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memorySearchCmd, memoryStatsCmd)

	memorySearchCmd.Flags().StringSlice("tag", nil, "require a tag (repeatable)")
	memorySearchCmd.Flags().Int("limit", memory.DefaultLimit, "maximum entries")
	memorySearchCmd.Flags().Float64("min-importance", 0, "minimum importance")
	memorySearchCmd.Flags().Bool("json", false, "output as JSON")
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	tags, _ := cmd.Flags().GetStringSlice("tag")
	limit, _ := cmd.Flags().GetInt("limit")
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := cmd.Context()
	store, err := openMemory(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Retrieve(ctx, memory.Query{
		Text:          strings.Join(args, " "),
		Tags:          tags,
		MinImportance: minImportance,
		Limit:         limit,
	})
	if err != nil {
		return fmt.Errorf("search memory: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		if entries == nil {
			entries = []memory.Entry{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	fmt.Fprint(out, ui.RenderMemory(entries))
	return nil
}
