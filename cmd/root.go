/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/josephgoksu/ProbeWing/internal/config"
	"github.com/josephgoksu/ProbeWing/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables debug logging.
	verbose bool
	// version is the application version.
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "probewing",
	Short: "ProbeWing - client-side security assessment with self-refining findings",
	Long: `ProbeWing runs heuristic probes against a target, refines weak findings with
chat backends over a bounded number of cycles, and keeps an audit trail in a
local memory store.

Backends that refuse a request are swapped for a configured "relaxed" backend
automatically, and every switch is recorded.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer logger.HandlePanic()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetVersion returns the binary version.
func GetVersion() string { return version }

func init() {
	cobra.OnInitialize(InitConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.probewing/.probewing.yaml or $HOME/.probewing.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("memory-path", "", "memory directory (default resolves .probewing/memory, XDG, ~/.probewing/memory)")

	bindFlags()
}

// bindFlags exposes the persistent flags through viper.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("memory.path", rootCmd.PersistentFlags().Lookup("memory-path"))
}

// setup runs before every command: it surfaces config errors, installs the
// logger and primes the crash context.
func setup(cmd *cobra.Command, args []string) error {
	logger.SetVersion(version)
	logger.SetCommand(strings.TrimSpace(cmd.CommandPath() + " " + strings.Join(args, " ")))
	logger.SetBasePath(config.GetStateDir())

	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	level := cfg.Log.Level
	if viper.GetBool("verbose") {
		level = "debug"
	}
	if _, err := logger.Setup(cmd.ErrOrStderr(), level, cfg.Log.JSON); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	return nil
}
