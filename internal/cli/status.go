package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/truth"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report what is running right now, with provenance",
		Long: `Answer "what is running right now". Prefers a fresh materialized
snapshot, falls back to live reconciliation from the raw sources, and
degrades to a sanitized idle payload when nothing is readable.

In JSON mode the output is the raw runtime payload consumed by the
dashboard builder, not the standard CLI envelope.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config, opts.Root)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	selector := &truth.Selector{
		StatePath: cfg.Paths.StateFile,
		Paths:     cfg.Paths,
		Policy:    cfg.Policy,
		Log:       slog.Default(),
	}
	rt := selector.Runtime(cmd.Context(), opts.Now().UnixMilli())

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		payload, err := json.MarshalIndent(rt, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode payload", err)
		}
		if err := formatter.Raw(payload); err != nil {
			return WrapExitError(ExitCommandError, "failed to write payload", err)
		}
	} else {
		printRuntime(formatter.Writer, rt)
	}

	if rt.SnapshotMode == truth.SnapshotModeSanitized {
		return NewExitError(ExitFailure, "runtime status degraded: "+rt.DegradedReason)
	}
	return nil
}

func printRuntime(w io.Writer, rt truth.Runtime) {
	fmt.Fprintf(w, "%s (%d active) via %s revision %s\n",
		rt.Status, rt.ActiveCount, rt.Source, rt.Revision)
	if rt.DegradedReason != "" {
		fmt.Fprintf(w, "degraded: %s\n", rt.DegradedReason)
	}
	for _, run := range rt.ActiveRuns {
		name := run.JobName
		if name == "" {
			name = run.Summary
		}
		fmt.Fprintf(w, "  %-11s %s  started %s  running %s\n",
			run.ActivityType, name, run.StartedAtLocal, formatDuration(run.RunningForMs))
	}
}

// formatDuration renders a millisecond duration as 1h02m, 5m03s or 42s.
func formatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%dh%02dm", seconds/3600, (seconds%3600)/60)
	case seconds >= 60:
		return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
