package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Kestrel - edge gateway and reverse proxy",
	Long: `Kestrel is an edge gateway that fronts a fleet of HTTP upstreams.

It provides:
  - Route classification with per-class rate limits and deadlines
  - Per-client token-bucket rate limiting
  - A shared response cache with stale-while-revalidate
  - Weighted least-connections balancing over health-checked pools
  - Automatic retry of transient upstream failures`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
