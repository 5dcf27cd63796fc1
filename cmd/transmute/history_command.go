package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"transmute/internal/history"
	"transmute/internal/jobs"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		statusFlag string
		batchFlag  string
		sinceFlag  string
		limit      int
		prune      time.Duration
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			out := cmd.OutOrStdout()

			if cmd.Flags().Changed("prune") {
				if prune <= 0 {
					return fmt.Errorf("--prune must be a positive duration")
				}
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d entr%s older than %s\n", removed, pluralY(removed), prune)
				return nil
			}

			filter := history.Filter{BatchID: strings.TrimSpace(batchFlag), Limit: limit}
			if statusFlag != "" {
				filter.Status, err = jobs.ParseStatus(statusFlag)
				if err != nil {
					return err
				}
			}
			if sinceFlag != "" {
				filter.Since, err = parseSince(sinceFlag, time.Now())
				if err != nil {
					return err
				}
			}
			entries, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				if entries == nil {
					entries = []history.Entry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No history entries")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				detail := e.OutputPath
				if e.Error != "" {
					detail = e.Error
				}
				rows = append(rows, []string{
					formatTimestamp(e.EndedAt),
					filepath.Base(e.SourcePath),
					strings.ToUpper(e.Route),
					statusLabel(e.Status),
					formatDuration(e.Duration),
					detail,
				})
			}
			fmt.Fprintln(out, renderTable("", []string{"Ended", "File", "Route", "Status", "Duration", "Output / Error"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))

			totals, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Totals: %d completed, %d failed, %d cancelled\n",
				totals[jobs.StatusCompleted], totals[jobs.StatusFailed], totals[jobs.StatusCancelled])
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusFlag, "status", "s", "", "Only show entries with this status")
	cmd.Flags().StringVar(&batchFlag, "batch", "", "Only show entries from this batch")
	cmd.Flags().StringVar(&sinceFlag, "since", "", "Only show entries ended after an RFC3339 time or a duration ago (e.g. 24h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show")
	cmd.Flags().DurationVar(&prune, "prune", 0, "Delete entries older than this duration and exit")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// parseSince accepts an RFC3339 timestamp or a duration measured back from now.
func parseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid --since %q: want RFC3339 time or duration", value)
	}
	return now.Add(-d), nil
}

func pluralY(n int64) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

