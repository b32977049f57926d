package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"kestrel-hq/kestrel/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file without starting the gateway.

The same loading path as 'kestrel run' is exercised: defaults are applied,
environment overrides are folded in, and the full validation pass runs, so
a configuration that passes here will start.

Examples:
  # Validate the default config
  kestrel validate

  # Validate a specific file
  kestrel validate --config /etc/kestrel/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return fmt.Errorf("configuration invalid: %w", err)
		}

		fmt.Printf("✓ Configuration valid: %s\n", cfgFile)
		fmt.Printf("  routes: %d\n", len(cfg.Routes))
		fmt.Printf("  pools: %d (default %q)\n", len(cfg.Pools), cfg.DefaultPool)
		fmt.Printf("  classes: %d\n", len(cfg.Classes))
		fmt.Printf("  cache enabled: %v\n", cfg.Cache.Enabled)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
