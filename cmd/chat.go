/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/josephgoksu/ProbeWing/internal/chat"
	"github.com/josephgoksu/ProbeWing/internal/logger"
	"github.com/josephgoksu/ProbeWing/internal/ui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive session with backend failover",
	Long: `Open a line-based chat session. Each turn is sent to the current backend;
a refusal or transport failure switches to a relaxed backend once per turn.

Ctrl-C stops the turn in flight. Commands:
  /switches   show backend switches so far
  /history    show the conversation
  /backend    show the current backend
  /exit       leave the session`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("backend", "", "initial backend id (default is the registry default)")
	chatCmd.Flags().Bool("no-switch", false, "disable automatic backend switching")
}

// interrupts delivers Ctrl-C presses to the REPL. Tests replace it.
var interrupts = func() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	return ch, func() { signal.Stop(ch) }
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}
	initial, _ := cmd.Flags().GetString("backend")
	noSwitch, _ := cmd.Flags().GetBool("no-switch")

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	autoSwitch := cfg.Chat.AutoSwitch && !noSwitch
	sess, err := a.newSession(initial, autoSwitch)
	if err != nil {
		return err
	}
	defer sess.Wait()

	sigs, stopSignals := interrupts()
	defer stopSignals()

	r := &repl{
		ctx:         ctx,
		session:     sess,
		in:          cmd.InOrStdin(),
		out:         cmd.OutOrStdout(),
		interactive: ui.IsInteractive(),
		autoSwitch:  autoSwitch,
		sigs:        sigs,
	}
	return r.run()
}

type repl struct {
	ctx         context.Context
	session     *chat.Session
	in          io.Reader
	out         io.Writer
	interactive bool
	autoSwitch  bool
	sigs        <-chan os.Signal

	mu     sync.Mutex
	cancel context.CancelFunc // Cancels the turn in flight, nil when idle
}

func (r *repl) run() error {
	if r.interactive {
		ui.RenderPageHeader(r.out, "ProbeWing chat", fmt.Sprintf("session %s on %s, /exit to leave", ui.TruncateID(r.session.ID()), r.session.Current()))
	}

	done := make(chan struct{})
	defer close(done)
	go r.watchInterrupts(done)

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		r.prompt()
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}
		if err := r.turn(line); err != nil {
			return err
		}
	}
}

func (r *repl) prompt() {
	if r.interactive {
		fmt.Fprint(r.out, ui.StylePrefixUser.Render("you")+" › ")
	}
}

// command handles a slash command and reports whether to quit.
func (r *repl) command(line string) bool {
	switch strings.Fields(line)[0] {
	case "/exit", "/quit":
		return true
	case "/switches":
		fmt.Fprint(r.out, ui.RenderSwitches(r.session.Switches()))
	case "/history":
		fmt.Fprint(r.out, ui.RenderHistory(r.session.History()))
	case "/backend":
		fmt.Fprintln(r.out, r.session.Current())
	default:
		fmt.Fprintf(r.out, "unknown command %s (try /switches, /history, /backend, /exit)\n", line)
	}
	return false
}

func (r *repl) turn(text string) error {
	logger.SetLastInput(text)

	ctx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	before := len(r.session.Switches())
	res, err := r.session.Send(ctx, text)
	logger.SetLastBackend(res.BackendID)

	if switches := r.session.Switches(); len(switches) > before {
		for _, e := range switches[before:] {
			fmt.Fprintln(r.out, ui.FormatSwitch(e))
		}
	}

	who := ui.StylePrefixAssistant.Render(res.BackendID)
	switch res.Status {
	case chat.StatusStopped:
		fmt.Fprintf(r.out, "%s %s %s\n", who, res.Text, ui.StyleSubtle.Render("[stopped]"))
	case chat.StatusFailed:
		fmt.Fprintln(r.out, ui.RenderErrorPanel("Request failed", res.Text))
	default:
		fmt.Fprintf(r.out, "%s %s\n", who, res.Text)
		if notice := r.refusalNotice(res); notice != "" {
			fmt.Fprintln(r.out, ui.StyleWarning.Render(notice))
		}
	}

	// A failed turn still leaves the session usable; only the parent
	// context ending stops the loop.
	if err != nil && r.ctx.Err() != nil {
		return r.ctx.Err()
	}
	return nil
}

// refusalNotice explains why a refused reply was delivered as is.
func (r *repl) refusalNotice(res chat.Result) string {
	switch {
	case !res.Refused:
		return ""
	case res.Switched:
		return "(the relaxed backend refused as well)"
	case !r.autoSwitch:
		return "(the backend refused; automatic switching is off)"
	default:
		return "(the backend refused and no relaxed backend could take over)"
	}
}

// watchInterrupts cancels the turn in flight on Ctrl-C. At the prompt it
// only prints a hint.
func (r *repl) watchInterrupts(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-r.sigs:
			r.mu.Lock()
			cancel := r.cancel
			r.mu.Unlock()
			if cancel != nil {
				cancel()
				continue
			}
			fmt.Fprintln(r.out, "\n(use /exit to leave)")
		}
	}
}
