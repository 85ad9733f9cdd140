package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "windowlimit",
	Short: "Distributed multi-window rate limiter on Redis",
	Long: `windowlimit enforces several fixed-window limits per identity at once,
for example "3 requests per 10 seconds and 100 per hour", with counters
shared through Redis.

Quick start:
  windowlimit validate                 # Validate configuration
  windowlimit serve                    # Start the demo API and the admin API

Operations:
  windowlimit check api alice          # Count one request for alice
  windowlimit check api alice --dry-run
  windowlimit clear api alice          # Reset alice's current windows`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "windowlimit.yaml", "config file path")
}
