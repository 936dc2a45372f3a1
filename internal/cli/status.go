package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowrl/internal/model"
	"github.com/roach88/flowrl/internal/store"
)

// StatusResult is the output of the status command.
type StatusResult struct {
	Database    string                    `json:"database"`
	DeviceID    string                    `json:"device_id,omitempty"`
	UserID      string                    `json:"user_id,omitempty"`
	Cached      bool                      `json:"cached"`
	Fresh       bool                      `json:"fresh"`
	GeneratedAt *time.Time                `json:"generated_at,omitempty"`
	ExpiresAt   *time.Time                `json:"expires_at,omitempty"`
	Assignments []model.ExperimentContext `json:"assignments"`
	Pending     int                       `json:"pending"`
}

func (r StatusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "database:  %s\n", r.Database)
	device := r.DeviceID
	if device == "" {
		device = "(not generated)"
	}
	fmt.Fprintf(&b, "device:    %s\n", device)
	if r.UserID != "" {
		fmt.Fprintf(&b, "user:      %s\n", r.UserID)
	}
	switch {
	case !r.Cached:
		fmt.Fprintf(&b, "config:    none cached\n")
	case r.Fresh:
		fmt.Fprintf(&b, "config:    fresh until %s\n", r.ExpiresAt.Format(time.RFC3339))
	default:
		fmt.Fprintf(&b, "config:    stale since %s\n", r.ExpiresAt.Format(time.RFC3339))
	}
	for _, a := range r.Assignments {
		fmt.Fprintf(&b, "  %s = %s\n", a.Name, a.Value)
	}
	fmt.Fprintf(&b, "pending:   %d", r.Pending)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the locally persisted client state",
		Long: `Print the device id, cached configuration and event backlog stored in the
local database. Nothing is generated, fetched or sent.

Example:
  flowrl status --db ./flowrl.db
  flowrl status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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

	result, err := readStatus(ctx, sess.store, opts.now())
	if err != nil {
		return f.Fail(ExitCommandError, "failed to read client state", err)
	}
	result.Database = sess.cfg.Database
	result.UserID = sess.cfg.UserID

	return f.Success(result)
}

// readStatus inspects the persisted records without modifying them.
func readStatus(ctx context.Context, s store.Store, now time.Time) (StatusResult, error) {
	result := StatusResult{Assignments: []model.ExperimentContext{}}

	device, found, err := s.Get(ctx, store.KeyDeviceID)
	if err != nil {
		return result, err
	}
	if found {
		result.DeviceID = string(device)
	}

	cfg, err := readCachedConfiguration(ctx, s)
	if err != nil {
		return result, err
	}
	if cfg != nil {
		generated, expires := cfg.GeneratedAt().UTC(), cfg.ExpiresAt().UTC()
		result.Cached = true
		result.Fresh = cfg.ValidAt(now)
		result.GeneratedAt = &generated
		result.ExpiresAt = &expires
		result.Assignments = cfg.Assignments()
	}

	var events []model.Event
	if _, err := store.GetJSON(ctx, s, store.KeyEvents, &events); err != nil {
		return result, err
	}
	result.Pending = len(events)

	return result, nil
}

// readCachedConfiguration returns the persisted configuration, or nil when
// none is stored.
func readCachedConfiguration(ctx context.Context, s store.Store) (*model.Configuration, error) {
	var cfg model.Configuration
	found, err := store.GetJSON(ctx, s, store.KeyConfiguration, &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}
