package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowrl/internal/engine"
)

// shutdownFlushTimeout bounds the final flush on shutdown.
const shutdownFlushTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Events []string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Configure the client and flush events until interrupted",
		Long: `Configure the FlowRL client and keep it running.

The initial sequence loads (or refreshes) the experiment configuration and
flushes the event backlog; afterwards the backlog is flushed on the configured
interval. On SIGINT or SIGTERM a final flush is attempted before exiting.

Events given with --event are logged once configuration has been applied.

Example:
  flowrl run --config flowrl.yaml
  flowrl run --db ./flowrl.db --event click:ui:home --event open:app:launch`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Events, "event", nil, "event to log, as action:category:screen (repeatable)")

	return cmd
}

func runClient(opts *RunOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	events, err := parseEvents(opts.Events)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --event", err)
	}

	sess, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer sess.Close()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	eng, err := sess.newEngine(opts.engineOptions...)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to create client", err)
	}
	defer eng.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			sess.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	select {
	case <-eng.Configure(sess.settings()):
	case <-ctx.Done():
		return shutdown(eng, sess)
	}

	for _, ev := range events {
		if err := eng.LogEvent(ctx, ev.action, ev.category, ev.screen); err != nil {
			sess.logger.Warn("event not persisted", "action", ev.action, "error", err)
		}
	}

	f.VerboseLog("client configured (flush every %s)", sess.cfg.FlushInterval)
	fmt.Fprintln(f.GetErrWriter(), "Client running. Press Ctrl-C to stop.")

	<-ctx.Done()
	return shutdown(eng, sess)
}

// shutdown performs the suspend flush and reports the final state.
func shutdown(eng *engine.Engine, sess *session) error {
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()

	if err := eng.Suspend(flushCtx); err != nil {
		sess.logger.Warn("final flush incomplete", "pending", eng.Pending(), "error", err)
	}
	sess.logger.Info("client stopped", "pending", eng.Pending())
	return nil
}

type eventArg struct {
	action, category, screen string
}

// parseEvents parses action:category:screen triples.
func parseEvents(raw []string) ([]eventArg, error) {
	out := make([]eventArg, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, ":", 3)
		if len(parts) != 3 || parts[0] == "" {
			return nil, fmt.Errorf("event %q: want action:category:screen", r)
		}
		out = append(out, eventArg{action: parts[0], category: parts[1], screen: parts[2]})
	}
	return out, nil
}
