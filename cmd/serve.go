/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/josephgoksu/ProbeWing/internal/chat"
	"github.com/josephgoksu/ProbeWing/internal/dump"
	"github.com/josephgoksu/ProbeWing/internal/evolve"
	"github.com/josephgoksu/ProbeWing/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scans, chat sessions and memory search over HTTP",
	Long: `Start a local JSON API.

Endpoints:
  GET    /api/info
  GET    /api/backends
  POST   /api/scan                      {"target", "dump", "maxCycles"}
  GET    /api/memory?q=&tag=&limit=&min=
  POST   /api/sessions                  {"backend", "autoSwitch"}
  POST   /api/sessions/{id}/messages    {"text"}
  GET    /api/sessions/{id}/history
  GET    /api/sessions/{id}/switches
  DELETE /api/sessions/{id}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := newServer(a)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errChan := make(chan error, 1)
	srv.Start(&wg, errChan)
	fmt.Fprintf(cmd.OutOrStdout(), "ProbeWing API on http://%s (Ctrl-C to stop)\n", cfg.Server.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown: %w", err)
	}
	wg.Wait()
	return serveErr
}

// newServer binds the API to the app.
func newServer(a *app) (*server.Server, error) {
	return server.New(server.Options{
		Addr:        a.cfg.Server.Addr,
		Origins:     a.cfg.Server.Origins,
		MaxSessions: a.cfg.Server.MaxSessions,
		AutoSwitch:  a.cfg.Chat.AutoSwitch,
		Version:     version,
		Backends:    a.registry.All(),
		Memory:      a.memory,
		Logger:      a.logger,
		Scan: func(ctx context.Context, req server.ScanRequest) (*evolve.Run, error) {
			if len(req.Dump) > dump.MaxBytes {
				return nil, fmt.Errorf("dump is %d bytes, limit is %d", len(req.Dump), dump.MaxBytes)
			}
			return a.scan(ctx, evolve.Input{Target: req.Target, Dump: req.Dump}, scanOptions{MaxCycles: req.MaxCycles})
		},
		NewSession: func(initial string, autoSwitch bool) (*chat.Session, error) {
			return a.newSession(initial, autoSwitch)
		},
	})
}
