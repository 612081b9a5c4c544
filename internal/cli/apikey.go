package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"syncline/internal/platform/auth"
	"syncline/internal/platform/config"
	"syncline/internal/platform/database"
	"syncline/internal/platform/models"
	"syncline/internal/platform/repositories"
)

type apiKeyCreateOptions struct {
	*RootOptions
	ConfigPath string
	Name       string
	Role       string
}

// NewAPIKeyCommand creates the apikey command group. Key management talks
// to the database directly rather than the API: the first key has to exist
// before anything can authenticate.
func NewAPIKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage operator API keys",
	}

	cmd.AddCommand(newAPIKeyCreateCommand(rootOpts))
	cmd.AddCommand(newAPIKeyRevokeCommand(rootOpts))

	return cmd
}

func newAPIKeyCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &apiKeyCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:          "create",
		Short:        "Create an API key (the raw key is shown once)",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPIKeyCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "configs/config.yaml", "path to config file")
	cmd.Flags().StringVar(&opts.Name, "name", "", "key name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&opts.Role, "role", "operator", "role granted to the key (operator|viewer|admin)")

	return cmd
}

func runAPIKeyCreate(opts *apiKeyCreateOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	raw, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}

	key := &models.APIKey{
		Name:      opts.Name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		Role:      opts.Role,
	}
	if err := repositories.NewAPIKeyRepository(db).Create(key); err != nil {
		return fmt.Errorf("storing key: %w", err)
	}

	if opts.Format == "json" {
		return outputJSON(cmd, map[string]string{
			"id":   key.ID,
			"name": key.Name,
			"role": key.Role,
			"key":  raw,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Created API key %s (%s)\n", key.ID, key.Name)
	fmt.Fprintf(w, "Key (store it now, it will not be shown again):\n  %s\n", raw)
	return nil
}

func newAPIKeyRevokeCommand(rootOpts *RootOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "revoke <key_id>",
		Short:        "Revoke an API key",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			db, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("opening database: %w", err)
			}
			defer db.Close()

			if err := repositories.NewAPIKeyRepository(db).Revoke(args[0]); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")

	return cmd
}
