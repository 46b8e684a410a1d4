package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wiki-data-pipeline/internal/app"
	"wiki-data-pipeline/internal/model"
	"wiki-data-pipeline/internal/pipeline"
	"wiki-data-pipeline/pkg/utils"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jobName string
	var dryRun bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job",
		Long:  "Run one of the registered jobs. Steps run in dependency order and the first failure stops the job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if verbose {
				ctx.setLogLevel("debug")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg, logger, app.Options{WithoutStore: dryRun})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if dryRun {
				plan, err := a.Runner.Plan(jobName)
				if err != nil {
					return unknownJobError(err, a.Graph)
				}
				fmt.Fprintf(out, "Job %s would run %d steps:\n", jobName, len(plan))
				fmt.Fprintln(out, renderPlan(plan))
				return nil
			}

			unlock, err := a.Output.Lock()
			if err != nil {
				return err
			}
			defer unlock()

			result, runErr := a.Runner.RunJob(cmd.Context(), jobName)
			if result == nil {
				return unknownJobError(runErr, a.Graph)
			}
			printRunReport(out, result, runErr, a.Output)
			if verbose {
				printRunLogs(out, result.Logs())
			}
			if runErr != nil {
				return fmt.Errorf("job %s failed at step %s", result.Job, result.FailedStep)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobName, "job", "j", "", "Job to run (see `pipeline jobs`)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the execution plan without running anything")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging and per-step log lines")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func unknownJobError(err error, graph *pipeline.Graph) error {
	if errors.Is(err, pipeline.ErrUnknownJob) {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(graph.JobNames(), ", "))
	}
	return err
}

func renderPlan(plan []pipeline.PlannedStep) string {
	rows := make([][]string, 0, len(plan))
	for i, step := range plan {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			step.Name,
			dash(strings.Join(step.Upstreams, ", ")),
			step.Description,
		})
	}
	return renderTable([]string{"#", "Step", "Upstreams", "Description"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft})
}

// printRunReport lists every step with its row count and, for a failed run,
// the failing step and error kind.
func printRunReport(out io.Writer, result *pipeline.RunResult, runErr error, output *utils.OutputManager) {
	rows := make([][]string, 0, len(result.Steps))
	for _, step := range result.Summary() {
		rowCount := "-"
		if step.Status == model.StepCompleted {
			rowCount = strconv.Itoa(step.Rows)
		}
		rows = append(rows, []string{step.Step, string(step.Status), rowCount})
	}
	fmt.Fprintf(out, "Run %s (%s): %s\n", result.RunID, result.Job, result.Status)
	fmt.Fprintln(out, renderTable([]string{"Step", "Status", "Rows"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight}))

	for _, step := range result.Steps {
		if step.Status != model.StepCompleted {
			continue
		}
		destination, ok := step.Metadata["file_path"]
		if !ok {
			continue
		}
		path := destination.String()
		fmt.Fprintf(out, "Wrote %s (%s, %d bytes)\n", path, output.GetFileType(path), output.GetFileSize(path))
	}

	if runErr != nil {
		fmt.Fprintf(out, "Failed step: %s\n", result.FailedStep)
		fmt.Fprintf(out, "Error kind:  %s\n", pipeline.KindOf(runErr))
		fmt.Fprintf(out, "Error:       %v\n", runErr)
	}
}

func printRunLogs(out io.Writer, entries []model.LogEntry) {
	for _, entry := range entries {
		fmt.Fprintf(out, "%s %-5s [%s] %s\n", entry.Time.Local().Format("15:04:05.000"), entry.Level, entry.Step, entry.Message)
	}
}
