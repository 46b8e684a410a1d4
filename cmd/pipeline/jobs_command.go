package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"wiki-data-pipeline/internal/app"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var showSteps bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List registered jobs and their steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), cfg, logger, app.Options{WithoutStore: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if showSteps {
				steps := a.Graph.Steps()
				rows := make([][]string, 0, len(steps))
				for _, step := range steps {
					rows = append(rows, []string{step.Name, dash(strings.Join(step.Upstreams, ", ")), step.Description})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Step", "Upstreams", "Description"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			}

			jobs := a.Graph.Jobs()
			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				plan := job.Plan()
				rows = append(rows, []string{
					job.Name,
					strconv.Itoa(len(plan)),
					strings.Join(plan, " -> "),
					job.Description,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Job", "Steps", "Order", "Description"}, rows,
				[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSteps, "steps", false, "List every step with its upstreams instead of jobs")
	return cmd
}
