/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/josephgoksu/ProbeWing/internal/ui"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration to ./.probewing",
	Long: `Write ./.probewing/.probewing.yaml with the default backends and settings.
API keys are read from the environment and are never written to the file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "overwrite an existing configuration")
}

func runInit(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path := filepath.Join(config.LocalDir, config.FileName+".yaml")

	if err := config.WriteStarter(appFs, path, force); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %s\n", ui.Icon("✓", ui.StyleSuccess), path)
	return nil
}
