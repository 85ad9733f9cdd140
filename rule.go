package ratelimiter

import (
	"fmt"
	"sort"
	"time"
)

// Rule is a single rate limit: at most Limit requests per Window.
//
// Window must be a positive whole number of seconds.
type Rule struct {
	Limit  int64         `yaml:"limit" json:"limit"`
	Window time.Duration `yaml:"window" json:"window"`
}

// PerWindow is shorthand for Rule{Limit: limit, Window: window}.
func PerWindow(limit int64, window time.Duration) Rule {
	return Rule{Limit: limit, Window: window}
}

// String formats the rule as "limit/window", e.g. "3/10s".
func (r Rule) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

// Validate reports a ConfigError if the rule can never be enforced.
func (r Rule) Validate() error {
	if r.Limit <= 0 {
		return configErrorf(r, "limit must be positive")
	}
	if r.Window <= 0 {
		return configErrorf(r, "window must be positive")
	}
	if r.Window%time.Second != 0 {
		return configErrorf(r, "window must be a whole number of seconds")
	}
	return nil
}

// Limits is a normalized limit table: window length in seconds mapped to the
// strictest limit configured for that window.
type Limits map[int64]int64

// Normalize validates rules and collapses rules sharing a window into the
// smallest limit among them.
//
// Input order does not matter. An empty rule list is a configuration error.
//
// Example:
//
//	limits, _ := ratelimiter.Normalize(
//	    ratelimiter.PerWindow(10, time.Minute),
//	    ratelimiter.PerWindow(5, time.Minute),
//	)
//	// limits == Limits{60: 5}
func Normalize(rules ...Rule) (Limits, error) {
	if len(rules) == 0 {
		return nil, &ConfigError{Reason: "at least one rule is required"}
	}

	limits := make(Limits, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		seconds := int64(r.Window / time.Second)
		if current, ok := limits[seconds]; !ok || r.Limit < current {
			limits[seconds] = r.Limit
		}
	}
	return limits, nil
}

// Windows returns the window lengths in seconds, longest first.
func (l Limits) Windows() []int64 {
	windows := make([]int64, 0, len(l))
	for w := range l {
		windows = append(windows, w)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i] > windows[j] })
	return windows
}

// Rules converts the table back into a rule list, longest window first.
func (l Limits) Rules() []Rule {
	rules := make([]Rule, 0, len(l))
	for _, w := range l.Windows() {
		rules = append(rules, Rule{Limit: l[w], Window: time.Duration(w) * time.Second})
	}
	return rules
}
