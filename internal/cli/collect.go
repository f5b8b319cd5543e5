package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/runtruth/internal/collect"
	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/journal"
	"github.com/roach88/runtruth/internal/source"
)

// NewCollectCommand creates the collect command.
func NewCollectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Read raw sources and append new lifecycle events to the journal",
		Long: `Run one collection pass: read the session store, the scheduler run
logs and the subagent registry, derive lifecycle events, and append the
ones not seen before to the journal.

Safe to run on a tight schedule; overlapping passes deduplicate through
the event index.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(rootOpts, cmd)
		},
	}
	return cmd
}

func runCollect(opts *RootOptions, cmd *cobra.Command) error {
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

	collector := &collect.Collector{
		Journal: journal.Open(cfg.Paths.JournalFile, idx),
		Index:   idx,
		Sources: buildSources(cfg),
		Policy:  cfg.Policy,
		Log:     slog.Default(),
	}

	result, err := collector.Collect(cmd.Context(), opts.Now().UnixMilli())
	if err != nil {
		return WrapExitError(ExitCommandError, "collection pass failed", err)
	}

	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "collected %d observation(s), appended %d new event(s)\n",
			result.Collected, result.Appended)
		names := make([]string, 0, len(result.Sources))
		for name := range result.Sources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sr := result.Sources[name]
			if sr.Err != "" {
				fmt.Fprintf(w, "  %s: error: %s\n", name, sr.Err)
				continue
			}
			fmt.Fprintf(w, "  %s: observed %d, skipped %d, appended %d\n",
				name, sr.Observed, sr.Skipped, sr.Appended)
		}
	})
}

// buildSources assembles the raw sources in merge-priority order.
func buildSources(cfg config.Config) []source.Source {
	jobs := source.LoadJobs(cfg.Paths.JobsFile)
	return []source.Source{
		&source.CronRunsSource{Dir: cfg.Paths.RunsDir},
		&source.SubagentSource{Path: cfg.Paths.SubagentFile},
		&source.SessionsSource{Path: cfg.Paths.SessionsFile, Jobs: jobs},
	}
}
