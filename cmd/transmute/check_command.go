package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"transmute/internal/deps"
	"transmute/internal/notifications"
	"transmute/internal/preflight"
)

type checkReport struct {
	Checks       []preflight.Result `json:"checks"`
	Dependencies []deps.Status      `json:"dependencies"`
	Unavailable  []string           `json:"unavailable_methods,omitempty"`
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var notify bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, external tools and notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := checkReport{
				Checks:       preflight.RunAll(cmd.Context(), cfg),
				Dependencies: preflight.CheckTools(cmd.Context(), cfg),
			}
			for _, m := range deps.UnavailableMethods(report.Dependencies) {
				report.Unavailable = append(report.Unavailable, string(m))
			}

			var notifyErr error
			if notify {
				if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
					notifyErr = fmt.Errorf("notifications.ntfy_topic is not set")
				} else {
					notifyErr = notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil)
				}
				report.Checks = append(report.Checks, preflight.Result{
					Name:   "Test notification",
					Passed: notifyErr == nil,
					Detail: errorDetail(notifyErr, "sent"),
				})
			}

			if jsonOutput {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := isTerminal(out)
				for _, line := range renderSectionHeader("Checks", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, r := range report.Checks {
					kind := statusOK
					if !r.Passed {
						kind = statusError
					}
					fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
				}
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Tools", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, dep := range report.Dependencies {
					fmt.Fprintln(out, renderStatusLine(dep.Name, toolStatusKind(dep), toolDetail(dep), colorize))
				}
				if len(report.Unavailable) > 0 {
					fmt.Fprintf(out, "\nRoutes through these methods are skipped: %s\n", strings.Join(report.Unavailable, ", "))
				}
			}

			if failed := preflight.Failed(report.Checks); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&notify, "notify", false, "Also send a test notification")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func toolStatusKind(dep deps.Status) statusKind {
	switch {
	case dep.Available:
		return statusOK
	case dep.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func toolDetail(dep deps.Status) string {
	if dep.Available {
		if dep.Version != "" {
			return dep.Version
		}
		return dep.Command
	}
	if dep.Detail != "" {
		return dep.Detail
	}
	return dep.Command + " not found"
}

func errorDetail(err error, ok string) string {
	if err != nil {
		return err.Error()
	}
	return ok
}
