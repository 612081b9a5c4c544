package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"syncline/internal/engine/slo"
)

// NewSLOCommand creates the slo command.
func NewSLOCommand(rootOpts *RootOptions) *cobra.Command {
	var windowHours int

	cmd := &cobra.Command{
		Use:          "slo",
		Short:        "Show rolling-window failure metrics and alerts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report slo.SLOReport
			path := fmt.Sprintf("/api/v1/ops/slo?window_hours=%d", windowHours)
			if err := doRequest(rootOpts, "GET", path, nil, &report); err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return outputJSON(cmd, report)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "SLO (%dh window)\n", report.WindowHours)
			fmt.Fprintf(w, "  runs: %d total, %d failed (%.1f%%)\n",
				report.TotalRuns, report.FailedRuns, report.FailureRate*100)
			fmt.Fprintf(w, "  stale integrations: %d\n", report.StaleIntegrations)

			if len(report.ByProvider) > 0 {
				fmt.Fprintln(w, "  by provider:")
				for provider, failures := range report.ByProvider {
					fmt.Fprintf(w, "    %-10s  %d failed runs, %d failure events\n",
						provider, failures.FailedRuns, failures.FailureEvents)
				}
			}

			if len(report.Alerts) == 0 {
				fmt.Fprintln(w, "  alerts: none")
				return nil
			}
			fmt.Fprintln(w, "  alerts:")
			for _, alert := range report.Alerts {
				fmt.Fprintf(w, "    [%s] %s: %s (%.2f > %.2f)\n",
					alert.Level, alert.Metric, alert.Message, alert.Value, alert.Threshold)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&windowHours, "window-hours", 24, "metrics window in hours")

	return cmd
}

// NewStatusCommand creates the pipeline status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var windowHours int

	cmd := &cobra.Command{
		Use:          "status",
		Short:        "Show pipeline status rolled up by run type",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report slo.PipelineReport
			path := fmt.Sprintf("/api/v1/ops/pipeline?window_hours=%d", windowHours)
			if err := doRequest(rootOpts, "GET", path, nil, &report); err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return outputJSON(cmd, report)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Pipeline status (%dh window)\n", report.WindowHours)
			for _, name := range []string{"sync", "backfill", "replay"} {
				summary := report.RunTypes[name]
				if summary == nil {
					continue
				}
				fmt.Fprintf(w, "  %-8s  %d total (%d completed, %d failed, %d running), %d records\n",
					name, summary.Total, summary.Completed, summary.Failed, summary.Running, summary.Processed)
			}
			fmt.Fprintf(w, "  pending approvals: %d\n", report.PendingApprovals)
			fmt.Fprintf(w, "  failed backfills:  %d\n", report.FailedBackfills)
			return nil
		},
	}

	cmd.Flags().IntVar(&windowHours, "window-hours", 24, "metrics window in hours")

	return cmd
}

// NewHealthCommand creates the health command.
func NewHealthCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "health",
		Short:        "Probe the engine's critical dependencies",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report slo.HealthReport
			// 503 on CRITICAL still carries the report body.
			err := doRequest(rootOpts, "GET", "/health", nil, &report)
			if err != nil && report.Status == "" {
				return err
			}

			if rootOpts.Format == "json" {
				return outputJSON(cmd, report)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Status: %s (%s)\n", report.Status, formatUnix(report.Timestamp))
			for _, check := range report.Checks {
				mark := "✓"
				if !check.Healthy {
					mark = "✗"
				}
				fmt.Fprintf(w, "  %s %s", mark, check.Dependency)
				if check.Detail != "" {
					fmt.Fprintf(w, " — %s", check.Detail)
				}
				fmt.Fprintln(w)
			}

			if report.Status == slo.StatusCritical {
				return fmt.Errorf("engine is %s", report.Status)
			}
			return nil
		},
	}

	return cmd
}
