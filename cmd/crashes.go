/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/josephgoksu/ProbeWing/internal/logger"
	"github.com/josephgoksu/ProbeWing/internal/ui"
	"github.com/spf13/cobra"
)

var crashesCmd = &cobra.Command{
	Use:   "crashes",
	Short: "List crash logs, or print the newest with --last",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		paths, err := logger.ListCrashLogs()
		if err != nil {
			return fmt.Errorf("list crash logs: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(paths) == 0 {
			fmt.Fprintln(out, ui.StyleSubtle.Render("No crash logs."))
			return nil
		}

		if last, _ := cmd.Flags().GetBool("last"); last {
			content, err := logger.ReadCrashLog(paths[len(paths)-1])
			if err != nil {
				return err
			}
			fmt.Fprint(out, content)
			return nil
		}
		for _, p := range paths {
			fmt.Fprintln(out, filepath.Base(p))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crashesCmd)
	crashesCmd.Flags().Bool("last", false, "print the newest crash log")
}
