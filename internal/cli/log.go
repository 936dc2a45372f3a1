package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// LogResult is the output of the log command.
type LogResult struct {
	Action   string `json:"action"`
	Category string `json:"category"`
	Screen   string `json:"screen"`
	UserID   string `json:"user_id"`
	Pending  int    `json:"pending"`
}

func (r LogResult) String() string {
	return fmt.Sprintf("queued %s/%s on %s for %s (%d pending)",
		r.Category, r.Action, r.Screen, r.UserID, r.Pending)
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "log <action> <category> <screen>",
		Short: "Queue an analytics event without contacting the service",
		Long: `Append an event to the local backlog. Nothing is sent; the event is
delivered by the next 'flowrl sync' or 'flowrl run'.

Example:
  flowrl log click ui home
  flowrl log purchase checkout cart --db ./flowrl.db`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(rootOpts, cmd, args[0], args[1], args[2])
		},
	}
}

func runLog(opts *RootOptions, cmd *cobra.Command, action, category, screen string) error {
	f := opts.formatter(cmd)

	sess, err := opts.openSession(cmd, f)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := sess.newEngine(opts.engineOptions...)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to create client", err)
	}
	defer eng.Close()

	// Offline: apply the identity override and the cached configuration
	// without a configure sequence.
	eng.SetUserID(sess.cfg.UserID)
	eng.RestoreConfiguration(ctx)
	if err := eng.LogEvent(ctx, action, category, screen); err != nil {
		return f.Fail(ExitFailure, "event not persisted", err)
	}

	return f.Success(LogResult{
		Action:   action,
		Category: category,
		Screen:   screen,
		UserID:   eng.UserID(ctx),
		Pending:  eng.Pending(),
	})
}
