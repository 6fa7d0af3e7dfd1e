/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/josephgoksu/ProbeWing/internal/dump"
	"github.com/josephgoksu/ProbeWing/internal/evolve"
	"github.com/josephgoksu/ProbeWing/internal/logger"
	"github.com/josephgoksu/ProbeWing/internal/probe"
	"github.com/josephgoksu/ProbeWing/internal/ui"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run the probes and refine the findings",
	Long: `Run every probe against the target, optionally analyze a system dump, then
refine findings below the confidence threshold through chat backends until
the cycle cap is reached or nothing is left to refine.

Examples:
  probewing scan --target https://app.example
  probewing scan --target https://app.example --dump ./sysinfo.txt --max-cycles 3
  probewing scan --target https://app.example --verify --json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("target", "", "target URL")
	scanCmd.Flags().String("dump", "", "system dump file to analyze")
	scanCmd.Flags().Int("max-cycles", 0, "cycle cap including cycle 1 (default from evolve.max_cycles)")
	scanCmd.Flags().Bool("verify", false, "confirm high-confidence findings with a live request")
	scanCmd.Flags().Bool("no-persist", false, "do not store findings in memory")
	scanCmd.Flags().Bool("json", false, "output the run as JSON")
	scanCmd.Flags().Bool("detail", false, "print vectors, evidence and payloads")
}

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	target, _ := cmd.Flags().GetString("target")
	dumpPath, _ := cmd.Flags().GetString("dump")
	maxCycles, _ := cmd.Flags().GetInt("max-cycles")
	verifyFlag, _ := cmd.Flags().GetBool("verify")
	noPersist, _ := cmd.Flags().GetBool("no-persist")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	detail, _ := cmd.Flags().GetBool("detail")

	logger.SetTarget(target)

	var dumpText string
	if dumpPath != "" {
		if dumpText, err = dump.Load(appFs, dumpPath); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	so := scanOptions{MaxCycles: maxCycles, NoPersist: noPersist, Verify: verifyFlag}
	if !jsonOutput {
		so.Progress = func(cycle int, message string) {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.FormatProgress(cycle, message))
		}
	}

	out := cmd.OutOrStdout()
	run, runErr := a.scan(ctx, evolve.Input{Target: target, Dump: dumpText}, so)
	if run != nil {
		if failed := failedProbes(run.Reports); len(failed) > 0 && !jsonOutput {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.RenderWarningPanel(fmt.Sprintf("%d probe(s) failed", len(failed)), strings.Join(failed, ", ")))
		}
		if err := printRun(out, run, jsonOutput, detail); err != nil {
			return err
		}
	}
	if runErr != nil {
		if errors.Is(runErr, ctx.Err()) {
			return fmt.Errorf("scan interrupted: %w", runErr)
		}
		return runErr
	}
	return nil
}

func failedProbes(reports []probe.Report) []string {
	var ids []string
	for _, r := range reports {
		if r.Err != nil {
			ids = append(ids, r.ProbeID)
		}
	}
	return ids
}

func printRun(w io.Writer, run *evolve.Run, jsonOutput, detail bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	fmt.Fprintln(w)
	fmt.Fprint(w, ui.RenderCycles(run.Cycles))
	fmt.Fprintln(w)
	fmt.Fprint(w, ui.RenderFindings(run.Findings))
	if run.Verified > 0 {
		fmt.Fprintf(w, "\n%s\n", ui.StyleSuccess.Render(fmt.Sprintf("%d finding(s) verified against the target", run.Verified)))
	}
	if detail {
		for _, f := range run.Findings {
			fmt.Fprintln(w)
			fmt.Fprint(w, ui.RenderFindingDetail(f))
		}
	}
	return nil
}
