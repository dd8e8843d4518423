package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chenpu17/cc-gateway/internal/config"
)

// NewConfigCmd builds the "config" command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the gateway configuration file",
	}
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the config file and report provider/endpoint counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			fmt.Printf("providers: %d\n", len(cfg.Providers))
			for _, p := range cfg.Providers {
				fmt.Printf("  - %s (%s) base=%s models=%d\n", p.ID, p.Type, p.BaseURL, len(p.Models))
			}
			fmt.Printf("endpoints: %d\n", len(cfg.Endpoints))
			for id, ep := range cfg.Endpoints {
				fmt.Printf("  - %s enabled=%v paths=%d validation=%s\n", id, ep.Enabled, len(ep.Paths), ep.Validation.Mode)
			}
			fmt.Printf("apiKeys: %d\n", len(cfg.APIKeys))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml (defaults to ~/.cc-gateway/config.yaml)")
	return cmd
}
