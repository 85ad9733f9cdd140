package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear <policy> <identity>",
	Short: "Reset the current windows of an identity",
	Long: `Delete the counters of the current windows of identity under policy.
Counters of past windows are left to expire on their own.

Examples:
  windowlimit clear api alice`,
	Args: cobra.ExactArgs(2),
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	policy, identity := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rules, err := cfg.Policy(policy)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg, newLogger(cfg.Logging, cmd.ErrOrStderr()), nil)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Clear(cmd.Context(), identity, rules...); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Cleared the current windows of %s for %s\n", checkMark, policy, identity)
	return nil
}
