package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/runtruth/internal/config"
	"github.com/roach88/runtruth/internal/schema"
)

// validateResult reports one document check.
type validateResult struct {
	Document string `json:"document"`
	Path     string `json:"path"`
	Status   string `json:"status"` // "ok" | "missing" | "invalid"
	Error    string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [document file]",
		Short: "Validate data files against their schemas",
		Long: `Check JSON documents against the embedded CUE schemas.

With no arguments, validates every known document at its configured
path (missing files are reported but do not fail the command). With a
document name and a file path, validates that single file.

Known documents: ` + strings.Join(schema.Names(), ", ") + `.`,
		Args:          cobra.RangeArgs(0, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateDocs(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidateDocs(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	cfg, err := config.Load(opts.Config, opts.Root)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	var targets []validateResult
	switch len(args) {
	case 0:
		targets = []validateResult{
			{Document: schema.DocJobs, Path: cfg.Paths.JobsFile},
			{Document: schema.DocSessions, Path: cfg.Paths.SessionsFile},
			{Document: schema.DocSubagentRuns, Path: cfg.Paths.SubagentFile},
			{Document: schema.DocRuntimeState, Path: cfg.Paths.StateFile},
		}
	case 2:
		targets = []validateResult{{Document: args[0], Path: args[1]}}
	default:
		return NewExitError(ExitCommandError, "expected either no arguments or a document name and a file path")
	}

	failed := 0
	for i := range targets {
		targets[i] = checkDocument(targets[i])
		if targets[i].Status == "invalid" {
			failed++
		}
	}

	if err := formatter.Success(targets, func(w io.Writer) {
		for _, res := range targets {
			switch res.Status {
			case "ok":
				fmt.Fprintf(w, "ok       %-14s %s\n", res.Document, res.Path)
			case "missing":
				fmt.Fprintf(w, "missing  %-14s %s\n", res.Document, res.Path)
			default:
				fmt.Fprintf(w, "invalid  %-14s %s\n         %s\n", res.Document, res.Path, res.Error)
			}
		}
	}); err != nil {
		return err
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d document(s) failed validation", failed))
	}
	return nil
}

func checkDocument(res validateResult) validateResult {
	data, err := os.ReadFile(res.Path)
	if err != nil {
		if os.IsNotExist(err) {
			res.Status = "missing"
			return res
		}
		res.Status = "invalid"
		res.Error = err.Error()
		return res
	}
	if err := schema.Validate(res.Document, data); err != nil {
		res.Status = "invalid"
		res.Error = err.Error()
		return res
	}
	res.Status = "ok"
	return res
}
