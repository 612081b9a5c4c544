package cli

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"syncline/internal/platform/models"
)

type dlqListOptions struct {
	*RootOptions
	Provider string
	Limit    int
}

type deadLetterList struct {
	FailedRuns  []*models.IntegrationRun `json:"failed_runs"`
	TotalFailed int                      `json:"total_failed"`
}

// NewDLQCommand creates the dead-letter command group.
func NewDLQCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-letter runs",
	}

	cmd.AddCommand(newDLQListCommand(rootOpts))
	cmd.AddCommand(newDLQReplayCommand(rootOpts))

	return cmd
}

func newDLQListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &dlqListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List terminally failed runs",
		Example: `  syncctl dlq list
  syncctl dlq list --provider gong --limit 20`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Provider, "provider", "", "filter by provider")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum runs to return")

	return cmd
}

func runDLQList(opts *dlqListOptions, cmd *cobra.Command) error {
	query := url.Values{}
	if opts.Provider != "" {
		query.Set("provider", opts.Provider)
	}
	if opts.Limit > 0 {
		query.Set("limit", fmt.Sprint(opts.Limit))
	}

	var list deadLetterList
	if err := doRequest(opts.RootOptions, "GET", "/api/v1/ops/dead-letters?"+query.Encode(), nil, &list); err != nil {
		return err
	}

	if opts.Format == "json" {
		return outputJSON(cmd, list)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Dead-letter runs: %d total failed\n\n", list.TotalFailed)
	for _, run := range list.FailedRuns {
		fmt.Fprintf(w, "%s  %-10s  %-9s  finished %s\n", run.ID, run.Provider, run.RunType, formatUnix(deref(run.FinishedAt)))
		fmt.Fprintf(w, "  key: %s\n", run.IdempotencyKey)
		if run.ErrorMessage != "" {
			fmt.Fprintf(w, "  error: %s\n", run.ErrorMessage)
		}
	}
	return nil
}

func newDLQReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "replay <run_id>",
		Short:        "Re-submit a failed run under a fresh idempotency key",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				RunID string `json:"run_id"`
			}
			path := "/api/v1/ops/dead-letters/" + url.PathEscape(args[0]) + "/replay"
			if err := doRequest(rootOpts, "POST", path, nil, &resp); err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return outputJSON(cmd, resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replay submitted: %s\n", resp.RunID)
			return nil
		},
	}

	return cmd
}

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
