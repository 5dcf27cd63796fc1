package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"transmute/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "jobs [id]",
		Short: "List jobs held by the daemon, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return wrapAPIError(err)
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				printJobDetail(out, job)
				return nil
			}

			var status jobs.Status
			if statusFlag != "" {
				status, err = jobs.ParseStatus(statusFlag)
				if err != nil {
					return err
				}
			}
			list, err := client.Jobs(cmd.Context(), status)
			if err != nil {
				return wrapAPIError(err)
			}
			if jsonOutput {
				if list == nil {
					list = []jobs.Job{}
				}
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(list))
			for _, job := range list {
				rows = append(rows, []string{
					job.ID,
					filepath.Base(job.Input.Path),
					routeLabel(job.Route),
					statusLabel(job.Status),
					fmt.Sprintf("%.0f%%", job.Progress),
					formatDuration(job.Elapsed(now)),
				})
			}
			fmt.Fprintln(out, renderTable("", []string{"ID", "File", "Route", "Status", "Progress", "Elapsed"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Only list jobs in this status")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running job on the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Cancel(cmd.Context(), args[0])
			if err != nil {
				return wrapAPIError(err)
			}
			out := cmd.OutOrStdout()
			if resp.Cancelled {
				fmt.Fprintf(out, "Cancellation requested for job %s\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "Job %s is already %s\n", args[0], resp.Job.Status)
			return nil
		},
	}
}

func printJobDetail(out io.Writer, job jobs.Job) {
	fmt.Fprintf(out, "Job:      %s\n", job.ID)
	if job.BatchID != "" {
		fmt.Fprintf(out, "Batch:    %s\n", job.BatchID)
	}
	fmt.Fprintf(out, "Input:    %s\n", job.Input.Path)
	fmt.Fprintf(out, "Route:    %s (%s)\n", routeLabel(job.Route), tierLabel(job.Route.Quality))
	fmt.Fprintf(out, "Status:   %s", statusLabel(job.Status))
	if !job.Status.Terminal() {
		fmt.Fprintf(out, " %.0f%%", job.Progress)
		if job.Step != "" {
			fmt.Fprintf(out, " (%s)", job.Step)
		}
	}
	fmt.Fprintln(out)
	if job.EstimatedRemaining > 0 {
		fmt.Fprintf(out, "Remaining: ~%s\n", formatDuration(job.EstimatedRemaining))
	}
	fmt.Fprintf(out, "Created:  %s\n", formatTimestamp(job.CreatedAt))
	if !job.EndedAt.IsZero() {
		fmt.Fprintf(out, "Ended:    %s (%s)\n", formatTimestamp(job.EndedAt), formatDuration(job.Elapsed(job.EndedAt)))
	}
	if job.Output != nil {
		fmt.Fprintf(out, "Output:   %s (%s)\n", job.Output.Path, formatSize(job.Output.Size))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", job.Error)
	}
}
