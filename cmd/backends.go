/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/josephgoksu/ProbeWing/internal/ui"
	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List the configured chat backends",
	Long: `List every configured backend in registry order. The default backend
starts new sessions; relaxed backends take over after a refusal.`,
	Args: cobra.NoArgs,
	RunE: runBackends,
}

func init() {
	rootCmd.AddCommand(backendsCmd)
	backendsCmd.Flags().Bool("json", false, "output as JSON")
}

func runBackends(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("backends: %w", err)
	}

	descs := registry.All()
	out := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(descs)
	}
	fmt.Fprint(out, ui.RenderBackends(descs))
	if len(registry.Relaxed()) == 0 {
		fmt.Fprintln(out, ui.StyleWarning.Render("no relaxed backend configured: refusals will not switch"))
	}
	return nil
}
