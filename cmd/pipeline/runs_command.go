package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wiki-data-pipeline/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(s *store.Store) error {
				runs, err := s.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					created := run.CreatedAt
					rows = append(rows, []string{
						run.ID,
						run.Job,
						string(run.Status),
						dash(run.FailedStep),
						formatTime(&created),
						formatTime(run.FinishedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Job", "Status", "Failed step", "Started", "Finished"}, rows, nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")

	cmd.AddCommand(newRunsShowCommand(ctx))
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	var logLines int

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps, errors and logs of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(ctx, func(s *store.Store) error {
				runID := args[0]
				run, err := s.GetRun(cmd.Context(), runID)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("run %s not found", runID)
				}
				if err != nil {
					return err
				}
				steps, err := s.ListSteps(cmd.Context(), runID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				created := run.CreatedAt
				fmt.Fprintf(out, "Run:      %s\n", run.ID)
				fmt.Fprintf(out, "Job:      %s\n", run.Job)
				fmt.Fprintf(out, "Status:   %s\n", run.Status)
				fmt.Fprintf(out, "Started:  %s\n", formatTime(&created))
				fmt.Fprintf(out, "Finished: %s\n", formatTime(run.FinishedAt))

				rows := make([][]string, 0, len(steps))
				for _, step := range steps {
					rows = append(rows, []string{
						step.Step,
						string(step.Status),
						strconv.Itoa(step.Rows),
						formatTime(step.StartedAt),
						formatTime(step.FinishedAt),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Step", "Status", "Rows", "Started", "Finished"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))

				errs, err := s.ListErrors(cmd.Context(), runID)
				if err != nil {
					return err
				}
				for _, e := range errs {
					fmt.Fprintf(out, "Error in %s (%s): %s\n", e.Step, e.Kind, e.Message)
				}

				if logLines > 0 {
					logs, err := s.ListLogs(cmd.Context(), runID, logLines)
					if err != nil {
						return err
					}
					for _, line := range logs {
						fmt.Fprintf(out, "%s %-5s [%s] %s\n", line.CreatedAt.Local().Format("15:04:05.000"), line.Level, line.Step, line.Message)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&logLines, "logs", 0, "Also print up to this many log lines")
	return cmd
}

func withStore(ctx *commandContext, fn func(*store.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return errors.New("store.path is not configured")
	}
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
