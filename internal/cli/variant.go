package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/flowrl/internal/variant"
)

// VariantOptions holds flags for the variant command.
type VariantOptions struct {
	*RootOptions
	Default  string
	Fallback bool
}

// VariantResult is the output of the variant command.
type VariantResult struct {
	Test    string `json:"test"`
	Variant string `json:"variant"`
	Cached  bool   `json:"cached"`
	Stale   bool   `json:"stale"`
}

func (r VariantResult) String() string {
	switch {
	case !r.Cached:
		return fmt.Sprintf("%s = %s (no configuration cached)", r.Test, r.Variant)
	case r.Stale:
		return fmt.Sprintf("%s = %s (stale configuration)", r.Test, r.Variant)
	default:
		return fmt.Sprintf("%s = %s", r.Test, r.Variant)
	}
}

// NewVariantCommand creates the variant command.
func NewVariantCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VariantOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "variant <test>",
		Short: "Resolve the variant selected for an experiment",
		Long: `Look up the variant selected for <test> in the cached configuration.
The cache is read as-is, even when expired; run 'flowrl sync' to refresh it.

With --fallback, a test without a selection resolves to its first listed
variant before the default is used.

Example:
  flowrl variant btn_color --default red
  flowrl variant onboarding --default control --fallback`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVariant(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Default, "default", "", "value returned when the test has no selection")
	cmd.Flags().BoolVar(&opts.Fallback, "fallback", false, "fall back to the first listed variant")

	return cmd
}

func runVariant(opts *VariantOptions, cmd *cobra.Command, test string) error {
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

	cfg, err := readCachedConfiguration(ctx, sess.store)
	if err != nil {
		return f.Fail(ExitCommandError, "failed to read cached configuration", err)
	}

	result := VariantResult{Test: test, Cached: cfg != nil}
	if cfg != nil {
		result.Stale = !cfg.ValidAt(opts.now())
	}
	if opts.Fallback {
		result.Variant = variant.ResolveWithFallback(cfg, test, opts.Default)
	} else {
		result.Variant = variant.Resolve(cfg, test, opts.Default)
	}

	return f.Success(result)
}
