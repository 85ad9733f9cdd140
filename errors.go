package ratelimiter

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorExceeded is returned (wrapped in ThrottledError) when at least one
// window rejected the request.
//
// Users can use errors.Is(err, ratelimiter.ErrorExceeded) to detect this
// condition.
var ErrorExceeded = errors.New("rate limit exceeded")

// ErrInvalidRule marks configuration errors.
var ErrInvalidRule = errors.New("invalid rate limit configuration")

// ErrStoreUnavailable marks infrastructure failures: the store could not be
// reached, timed out, or answered with something unparseable. The outcome of
// the check is unknown.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// ConfigError reports a malformed rule set. It is never retryable.
type ConfigError struct {
	Rule   *Rule
	Reason string
}

func configErrorf(r Rule, format string, args ...interface{}) error {
	return &ConfigError{Rule: &r, Reason: fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	if e.Rule != nil {
		return fmt.Sprintf("%s: rule %s: %s", ErrInvalidRule, e.Rule, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidRule, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidRule) hold.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidRule
}

// ThrottledError is returned when one or more windows are exhausted. It carries
// every Outcome of the call so callers can report which window was exceeded.
type ThrottledError struct {
	Identity string
	Outcomes []Outcome
}

func (e *ThrottledError) Error() string {
	failed := e.Failed()
	parts := make([]string, 0, len(failed))
	for _, o := range failed {
		parts = append(parts, fmt.Sprintf("%d/%ds (current %d)", o.Limit, o.Window, o.Current))
	}
	return fmt.Sprintf("%s for %q: %s", ErrorExceeded, e.Identity, strings.Join(parts, ", "))
}

// Is makes errors.Is(err, ErrorExceeded) hold.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrorExceeded
}

// Failed returns the outcomes of the windows that rejected the request.
func (e *ThrottledError) Failed() []Outcome {
	var failed []Outcome
	for _, o := range e.Outcomes {
		if !o.Success {
			failed = append(failed, o)
		}
	}
	return failed
}

// RetryAfter returns how long the caller has to wait until every exhausted
// window has rolled over.
func (e *ThrottledError) RetryAfter(now time.Time) time.Duration {
	var latest time.Time
	for _, o := range e.Failed() {
		if reset := o.ResetAt(); reset.After(latest) {
			latest = reset
		}
	}
	if d := latest.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ExternalError wraps a store failure. The check is indeterminate: callers
// decide whether to fail open or closed.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

// Unwrap returns the transport error, e.g. context.DeadlineExceeded.
func (e *ExternalError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStoreUnavailable) hold.
func (e *ExternalError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// Evaluate classifies engine outcomes: nil when every window admitted the
// request, a *ThrottledError carrying all outcomes otherwise.
func Evaluate(identity string, outcomes []Outcome) error {
	for _, o := range outcomes {
		if !o.Success {
			return &ThrottledError{Identity: identity, Outcomes: outcomes}
		}
	}
	return nil
}

// Tightest returns the outcome with the fewest remaining requests, preferring
// failed windows. It is what the HTTP middleware reports in X-RateLimit-*
// headers.
func Tightest(outcomes []Outcome) (Outcome, bool) {
	if len(outcomes) == 0 {
		return Outcome{}, false
	}
	best := outcomes[0]
	for _, o := range outcomes[1:] {
		switch {
		case best.Success && !o.Success:
			best = o
		case best.Success == o.Success && o.Remaining() < best.Remaining():
			best = o
		}
	}
	return best, true
}
