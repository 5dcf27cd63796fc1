package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"transmute/internal/catalog"
	"transmute/internal/config"
	"transmute/internal/daemonrun"
	"transmute/internal/jobs"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		toFlag     string
		domainFlag string
		outputDir  string
		workers    int
		remote     bool
		jsonOutput bool
		opts       optionFlags
	)

	cmd := &cobra.Command{
		Use:   "batch <file>... --to <format>",
		Short: "Convert several files to one format",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(toFlag) == "" {
				return fmt.Errorf("--to is required")
			}
			options, err := opts.options()
			if err != nil {
				return err
			}
			req := jobs.BatchRequest{
				To:      catalog.ParseFormat(toFlag),
				Options: options,
			}
			for _, arg := range args {
				abs, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve %s: %w", arg, err)
				}
				req.Files = append(req.Files, abs)
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

			var batch jobs.Batch
			if remote {
				batch, err = batchRemote(cmd, ctx, req)
			} else {
				batch, err = batchLocal(cmd, ctx, req, workers)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, batch); err != nil {
					return err
				}
			} else {
				printBatch(cmd.OutOrStdout(), batch)
			}
			if failed := batch.Count(jobs.StatusFailed); failed > 0 {
				return fmt.Errorf("%d of %d file(s) failed", failed, batch.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&toFlag, "to", "t", "", "Target format")
	cmd.Flags().StringVarP(&domainFlag, "domain", "d", "", "Conversion domain (inferred per file when omitted)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for results (default paths.output_dir)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Files converted at once (default jobs.batch_workers)")
	cmd.Flags().BoolVar(&remote, "remote", false, "Run the batch on the daemon and wait for it")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	opts.register(cmd.Flags())
	return cmd
}

func batchLocal(cmd *cobra.Command, ctx *commandContext, req jobs.BatchRequest, workers int) (jobs.Batch, error) {
	if workers < 0 {
		return jobs.Batch{}, fmt.Errorf("--workers must not be negative")
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return jobs.Batch{}, err
	}
	if workers > 0 {
		// Copy so the cached config keeps the file value.
		override := *cfg
		override.Jobs.BatchWorkers = workers
		cfg = &override
	}
	return runLocalBatch(cmd, ctx, cfg, req)
}

func runLocalBatch(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, req jobs.BatchRequest) (jobs.Batch, error) {
	logger, err := ctx.cliLogger(cfg)
	if err != nil {
		return jobs.Batch{}, fmt.Errorf("init logger: %w", err)
	}
	rt := attachRuntime(cfg, daemonrun.NewManager(cfg, logger), logger)
	defer rt.close()

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.ErrOrStderr()
	sub := rt.manager.Subscribe(jobs.AllJobs, func(ev jobs.Event) {
		if ev.Type == jobs.EventBatchProgress && ev.Batch != nil && ev.Batch.CurrentFile != "" {
			fmt.Fprintf(out, "[%d/%d] %s\n", ev.Batch.Completed+1, ev.Batch.Total, filepath.Base(ev.Batch.CurrentFile))
		}
	})
	defer rt.manager.Unsubscribe(sub)

	id, err := rt.manager.StartBatch(req)
	if err != nil {
		return jobs.Batch{}, err
	}
	batch, err := rt.manager.WaitBatch(runCtx, id)
	if err != nil && runCtx.Err() != nil {
		// Interrupted: close fails the running job and the rest are skipped.
		rt.manager.Close()
		if snapshot, ok := rt.manager.Batch(id); ok {
			return snapshot, nil
		}
	}
	return batch, err
}

func batchRemote(cmd *cobra.Command, ctx *commandContext, req jobs.BatchRequest) (jobs.Batch, error) {
	client, err := ctx.apiClient()
	if err != nil {
		return jobs.Batch{}, err
	}
	id, err := client.StartBatch(cmd.Context(), req)
	if err != nil {
		return jobs.Batch{}, wrapAPIError(err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Started batch %s\n", id)

	ticker := time.NewTicker(remotePollInterval)
	defer ticker.Stop()
	for {
		batch, err := client.Batch(cmd.Context(), id)
		if err != nil {
			return jobs.Batch{}, wrapAPIError(err)
		}
		if batch.Status == jobs.BatchCompleted {
			return batch, nil
		}
		select {
		case <-cmd.Context().Done():
			return batch, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}

func printBatch(out io.Writer, batch jobs.Batch) {
	rows := make([][]string, 0, len(batch.Results))
	for _, job := range batch.Results {
		output, detail := "-", ""
		if job.Output != nil {
			output = job.Output.Path
		}
		switch job.Status {
		case jobs.StatusFailed:
			detail = job.Error
		case jobs.StatusCompleted:
			if job.Output != nil {
				detail = formatSize(job.Output.Size)
			}
		}
		rows = append(rows, []string{filepath.Base(job.Input.Path), statusLabel(job.Status), output, detail})
	}
	title := fmt.Sprintf("Batch %s -> %s", batch.ID, formatLabel(batch.Target))
	fmt.Fprintln(out, renderTable(title, []string{"File", "Status", "Output", "Detail"}, rows, nil))
	fmt.Fprintf(out, "%d completed, %d failed, %d cancelled\n",
		batch.Count(jobs.StatusCompleted), batch.Count(jobs.StatusFailed), batch.Count(jobs.StatusCancelled))
}
