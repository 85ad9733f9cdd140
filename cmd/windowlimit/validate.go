package main

import (
	"context"
	"fmt"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/jassus213/go-window-limiter/config"
	"github.com/jassus213/go-window-limiter/store"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the windowlimit configuration file.

Checks:
  - YAML syntax is valid
  - Every policy normalizes to a usable set of windows
  - Redis is reachable and accepts scripts (optional)

Examples:
  windowlimit validate
  windowlimit validate --check-redis --config /etc/windowlimit/config.yaml`,
	RunE: runValidate,
}

var validateCheckRedis bool

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckRedis, "check-redis", false, "check that redis is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	fmt.Fprintf(out, "  %s Strategy: %s\n", checkMark, cfg.Strategy())

	for _, name := range cfg.PolicyNames() {
		limits, _ := ratelimiter.Normalize(cfg.Policies[name]...)
		fmt.Fprintf(out, "  %s Policy %s: %v\n", checkMark, name, limits.Rules())
	}

	if validateCheckRedis && cfg.Strategy() != store.StrategyMemory {
		if err := checkRedis(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(out, "  %s Redis reachable\n", crossMark)
			return err
		}
		fmt.Fprintf(out, "  %s Redis reachable\n", checkMark)
	}

	fmt.Fprintf(out, "\nConfiguration valid\n")
	return nil
}

func checkRedis(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := config.NewRedisClient(cfg.Redis)
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
