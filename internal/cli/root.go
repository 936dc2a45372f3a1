package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flowrl/internal/clock"
	"github.com/roach88/flowrl/internal/config"
	"github.com/roach88/flowrl/internal/engine"
	"github.com/roach88/flowrl/internal/remote"
	"github.com/roach88/flowrl/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	// engineOptions are appended when a command builds an engine (tests).
	engineOptions []engine.Option
	// clock judges cache freshness in status and variant (default system).
	clock clock.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the flowrl CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flowrl",
		Short: "FlowRL experimentation client",
		Long: `Fetch experiment configurations and deliver analytics events to FlowRL.

Configuration is read from --config (YAML or CUE) and the FLOWRL_API_KEY,
FLOWRL_USER_ID and FLOWRL_BASE_URL environment variables. State (device id,
cached configuration, event backlog) lives in a local SQLite database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .cue)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewVariantCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) now() time.Time {
	if o.clock == nil {
		return time.Now()
	}
	return o.clock.Now()
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// logger builds the diagnostic logger. Logs go to stderr so JSON output on
// stdout stays parseable.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig resolves the config file, environment and --db flag.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	return cfg, nil
}

// session is the state a command works against.
type session struct {
	cfg    *config.Config
	store  *store.SQLite
	logger *slog.Logger
}

// openSession loads configuration and opens the database. Failures are
// reported through f and returned as ExitCommandError.
func (o *RootOptions) openSession(cmd *cobra.Command, f *OutputFormatter) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, "failed to open database", err)
	}

	logger := o.logger(cmd.ErrOrStderr())
	logger.Debug("session opened", "database", cfg.Database, "base_url", cfg.BaseURL)
	return &session{cfg: cfg, store: st, logger: logger}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// newEngine wires an engine to the session's store and a remote client for
// the configured base URL.
func (s *session) newEngine(extra ...engine.Option) (*engine.Engine, error) {
	client, err := remote.New(s.cfg.BaseURL,
		remote.WithTimeout(s.cfg.RequestTimeout),
		remote.WithLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithStore(s.store),
		engine.WithRemote(client),
		engine.WithLogger(s.logger),
		engine.WithFlushInterval(s.cfg.FlushInterval),
		engine.WithFlushPolicy(s.cfg.FlushPolicy),
	}
	return engine.New(append(opts, extra...)...)
}

func (s *session) settings() engine.Settings {
	return engine.Settings{
		Name:   s.cfg.Name,
		UserID: s.cfg.UserID,
		APIKey: s.cfg.APIKey,
	}
}
