package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/materialize"
)

// materializeSummary is the command's output shape.
type materializeSummary struct {
	Revision      string `json:"revision"`
	GeneratedAtMs int64  `json:"generatedAtMs"`
	ActiveCount   int    `json:"activeCount"`
	TerminalCount int    `json:"terminalCount"`
	StatePath     string `json:"statePath"`
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Replay the journal into the runtime state snapshot",
		Long: `Run one materialization pass: resume from the last checkpoint, apply
new journal events in deterministic order, expire stale orphans, and
atomically replace the runtime state snapshot with a bumped revision.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(rootOpts, cmd)
		},
	}
	return cmd
}

func runMaterialize(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.Config, opts.Root)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	m := &materialize.Materializer{
		JournalPath: cfg.Paths.JournalFile,
		StatePath:   cfg.Paths.StateFile,
		Policy:      cfg.Policy,
		Log:         slog.Default(),
	}

	state, err := m.Materialize(opts.Now().UnixMilli())
	if err != nil {
		return WrapExitError(ExitCommandError, "materialization pass failed", err)
	}

	summary := materializeSummary{
		Revision:      state.Revision,
		GeneratedAtMs: state.GeneratedAtMs,
		ActiveCount:   len(state.ActiveRecords()),
		TerminalCount: state.TerminalCount,
		StatePath:     cfg.Paths.StateFile,
	}
	return formatter.Success(summary, func(w io.Writer) {
		fmt.Fprintf(w, "materialized %s: %d active, %d terminal\n",
			summary.Revision, summary.ActiveCount, summary.TerminalCount)
	})
}
