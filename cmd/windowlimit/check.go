package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/spf13/cobra"
)

// ErrThrottled is returned by the check command when the request was denied,
// so that the process exits non-zero.
var ErrThrottled = errors.New("throttled")

var checkDryRun bool

var checkCmd = &cobra.Command{
	Use:   "check <policy> <identity>",
	Short: "Count one request for an identity against a policy",
	Long: `Count one request for identity against every window of policy and
print the per-window result. Exits non-zero when the request is throttled.

With --dry-run nothing is counted; the current counters are reported.

Examples:
  windowlimit check api alice
  windowlimit check login 10.0.0.7 --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "report without counting the request")
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	ctx := cmd.Context()
	var outcomes []ratelimiter.Outcome
	if checkDryRun {
		outcomes, err = b.Limiter().DryRun(ctx, identity, rules...)
	} else {
		outcomes, err = b.Limiter().Check(ctx, identity, rules...)
	}

	var throttled *ratelimiter.ThrottledError
	switch {
	case err == nil:
		printOutcomes(cmd.OutOrStdout(), outcomes)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s allowed\n", checkMark)
		return nil
	case errors.As(err, &throttled):
		printOutcomes(cmd.OutOrStdout(), throttled.Outcomes)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s throttled, retry after %s\n", crossMark, throttled.RetryAfter(time.Now()))
		return ErrThrottled
	default:
		return err
	}
}

func printOutcomes(out io.Writer, outcomes []ratelimiter.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WINDOW\tLIMIT\tCURRENT\tREMAINING\tRESET\tOK")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%ds\t%d\t%d\t%d\t%s\t%v\n",
			o.Window, o.Limit, o.Current, o.Remaining(), o.ResetAt().UTC().Format("15:04:05"), o.Success)
	}
	w.Flush()
}
