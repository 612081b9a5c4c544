package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	ServerURL string
	APIKey    string
	Format    string // "json" | "text"
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the syncctl CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operator CLI for the integration sync engine",
		Long:  "syncctl inspects and drives the sync engine's operator API: dead-letter runs, backfills, SLO metrics and pipeline status.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "http://localhost:8080", "base URL of the sync engine API")
	cmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", "", "operator API key (or SYNCLINE_API_KEY)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewDLQCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))
	cmd.AddCommand(NewSLOCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewAPIKeyCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}
