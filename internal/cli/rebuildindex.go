package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/journal"
)

// NewRebuildIndexCommand creates the rebuild-index command.
func NewRebuildIndexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild the event index from the journal",
		Long: `Repopulate the dedup index by replaying the journal from the start.
The journal is the source of truth; the index is a derived cache and
can be deleted and rebuilt at any time.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuildIndex(rootOpts, cmd)
		},
	}
	return cmd
}

func runRebuildIndex(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.Config, opts.Root)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	idx, err := journal.OpenIndex(cfg.Paths.IndexFile)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event index", err)
	}
	defer func() {
		if closeErr := idx.Close(); closeErr != nil {
			slog.Error("error closing event index", "error", closeErr)
		}
	}()

	count, err := idx.Rebuild(cmd.Context(), cfg.Paths.JournalFile, opts.Now().UnixMilli())
	if err != nil {
		return WrapExitError(ExitCommandError, "index rebuild failed", err)
	}

	result := struct {
		Indexed int    `json:"indexed"`
		Journal string `json:"journal"`
	}{Indexed: count, Journal: cfg.Paths.JournalFile}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "indexed %d event(s) from %s\n", count, cfg.Paths.JournalFile)
	})
}
