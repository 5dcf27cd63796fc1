package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"transmute/internal/api"
	"transmute/internal/catalog"
	"transmute/internal/jobs"
	"transmute/internal/services"
)

const remotePollInterval = 500 * time.Millisecond

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		toFlag     string
		fromFlag   string
		domainFlag string
		outputDir  string
		dryRun     bool
		remote     bool
		wait       bool
		jsonOutput bool
		opts       optionFlags
	)

	cmd := &cobra.Command{
		Use:   "convert <file> --to <format>",
		Short: "Convert one file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(toFlag) == "" {
				return fmt.Errorf("--to is required")
			}
			options, err := opts.options()
			if err != nil {
				return err
			}
			input, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve input: %w", err)
			}
			req := jobs.Request{
				Input:   input,
				From:    catalog.ParseFormat(fromFlag),
				To:      catalog.ParseFormat(toFlag),
				Options: options,
			}
			if domainFlag != "" {
				domain, err := catalog.ParseDomain(domainFlag)
				if err != nil {
					return err
				}
				req.Domain = domain
			}
			if outputDir != "" {
				dir, err := filepath.Abs(outputDir)
				if err != nil {
					return fmt.Errorf("resolve output dir: %w", err)
				}
				req.OutputDir = dir
			}

			if remote {
				if dryRun {
					return fmt.Errorf("--dry-run cannot be combined with --remote")
				}
				return convertRemote(cmd, ctx, req, wait, jsonOutput)
			}
			return convertLocal(cmd, ctx, req, dryRun, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&toFlag, "to", "t", "", "Target format")
	cmd.Flags().StringVarP(&fromFlag, "from", "f", "", "Source format (detected when omitted)")
	cmd.Flags().StringVarP(&domainFlag, "domain", "d", "", "Conversion domain (inferred when omitted)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for the result (default paths.output_dir)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan the conversion without running it")
	cmd.Flags().BoolVar(&remote, "remote", false, "Submit to the running daemon instead of converting in-process")
	cmd.Flags().BoolVar(&wait, "wait", false, "With --remote, wait until the job finishes")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	opts.register(cmd.Flags())
	return cmd
}

func convertLocal(cmd *cobra.Command, ctx *commandContext, req jobs.Request, dryRun, jsonOutput bool) error {
	rt, err := ctx.newLocalRuntime()
	if err != nil {
		return err
	}
	defer rt.close()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	if dryRun {
		plan, err := rt.manager.Plan(runCtx, req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd, plan)
		}
		return printPlan(out, plan)
	}

	var view *progressView
	if !jsonOutput {
		view = newProgressView(out, isTerminal(out))
		// The local manager runs only this job, so every event belongs to it.
		sub := rt.manager.Subscribe(jobs.AllJobs, view.handle)
		defer rt.manager.Unsubscribe(sub)
	}

	submission, err := rt.manager.Submit(runCtx, req)
	if err != nil {
		return err
	}
	if !submission.Plan.Supported() {
		if view != nil {
			view.finish()
		}
		if jsonOutput {
			if err := writeJSON(cmd, submission); err != nil {
				return err
			}
		}
		return services.Wrap(services.ErrUnsupported, "convert", "", submission.Plan.Unsupported.Message(), nil)
	}

	job, err := rt.manager.Wait(runCtx, submission.JobID)
	if err != nil && runCtx.Err() != nil {
		rt.manager.Cancel(submission.JobID)
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		job, err = rt.manager.Wait(waitCtx, submission.JobID)
		cancel()
	}
	if view != nil {
		view.finish()
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		if err := writeJSON(cmd, job); err != nil {
			return err
		}
	} else {
		printJobResult(out, job, isTerminal(out))
	}
	return jobError(job)
}

func convertRemote(cmd *cobra.Command, ctx *commandContext, req jobs.Request, wait, jsonOutput bool) error {
	client, err := ctx.apiClient()
	if err != nil {
		return err
	}
	submission, err := client.Submit(cmd.Context(), req)
	if err != nil {
		return wrapAPIError(err)
	}
	out := cmd.OutOrStdout()
	if !submission.Plan.Supported() {
		if jsonOutput {
			if err := writeJSON(cmd, submission); err != nil {
				return err
			}
		}
		return services.Wrap(services.ErrUnsupported, "convert", "", submission.Plan.Unsupported.Message(), nil)
	}
	if !wait {
		if jsonOutput {
			return writeJSON(cmd, submission)
		}
		fmt.Fprintf(out, "Submitted job %s (%s)\n", submission.JobID, routeLabel(submission.Plan.Route))
		return nil
	}

	job, err := pollJob(cmd.Context(), client, submission.JobID)
	if err != nil {
		return wrapAPIError(err)
	}
	if jsonOutput {
		if err := writeJSON(cmd, job); err != nil {
			return err
		}
	} else {
		printJobResult(out, job, isTerminal(out))
	}
	return jobError(job)
}

func pollJob(ctx context.Context, client *api.Client, id string) (jobs.Job, error) {
	ticker := time.NewTicker(remotePollInterval)
	defer ticker.Stop()
	for {
		job, err := client.Job(ctx, id)
		if err != nil {
			return jobs.Job{}, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printPlan(out io.Writer, plan jobs.Plan) error {
	fmt.Fprintf(out, "Input:   %s (%s, %s)\n", plan.Input.Path, formatLabel(plan.Input.Format), formatSize(plan.Input.Size))
	if !plan.Supported() {
		fmt.Fprintf(out, "Route:   none (%s)\n", plan.Unsupported.Message())
		return services.Wrap(services.ErrUnsupported, "convert", "plan", plan.Unsupported.Message(), nil)
	}
	fmt.Fprintf(out, "Route:   %s\n", routeLabel(plan.Route))
	fmt.Fprintf(out, "Quality: %s (weight %.2f)\n", tierLabel(plan.Route.Quality), plan.Route.Weight)
	fmt.Fprintf(out, "Metadata: %s\n", metadataLabel(plan.Route))
	fmt.Fprintf(out, "Preset:  %s\n", plan.Options.Preset)
	if plan.Options.Width > 0 {
		fmt.Fprintf(out, "Size:    %dx%d\n", plan.Options.Width, plan.Options.Height)
	}
	if !plan.Route.IsTrivial() {
		fmt.Fprintln(out, renderTable("", []string{"Hop", "From", "To", "Method", "Quality"}, hopRows(plan.Route), []columnAlignment{alignRight}))
	}
	return nil
}

func printJobResult(out io.Writer, job jobs.Job, colorize bool) {
	var detail string
	switch job.Status {
	case jobs.StatusCompleted:
		if job.Output != nil {
			detail = fmt.Sprintf("%s (%s) in %s", job.Output.Path, formatSize(job.Output.Size), formatDuration(job.Elapsed(time.Now())))
		}
	case jobs.StatusFailed:
		detail = job.Error
	case jobs.StatusCancelled:
		detail = "stopped before completion"
	}
	fmt.Fprintln(out, renderStatusLine(routeLabel(job.Route), jobStatusKind(job.Status), detail, colorize))
}

// jobError turns a non-completed job into a command error so the exit code
// reflects the outcome.
func jobError(job jobs.Job) error {
	switch job.Status {
	case jobs.StatusCompleted:
		return nil
	case jobs.StatusFailed:
		return services.Wrap(services.Marker(job.ErrorKind), "convert", "", "job "+job.ID+" failed", nil)
	default:
		return fmt.Errorf("job %s %s", job.ID, job.Status)
	}
}
