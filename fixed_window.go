package ratelimiter

import (
	"context"
	"errors"
	"time"
)

// Metric names reported through Recorder.
const (
	MetricCheck   = "ratelimit.check"
	MetricLatency = "ratelimit.latency"
)

// Limiter enforces multi-window fixed-window limits against a Store.
//
// A Limiter holds no mutable state and is safe for concurrent use; every
// coordination between callers happens in the store.
//
// Example usage:
//
//	s := store.NewMemory(ctx, time.Minute)
//	l := ratelimiter.New(s)
//	_, err := l.Check(ctx, "user:123",
//	    ratelimiter.PerWindow(3, 10*time.Second),
//	    ratelimiter.PerWindow(100, time.Hour),
//	)
//	if errors.Is(err, ratelimiter.ErrorExceeded) {
//	    // reject request
//	}
type Limiter struct {
	store    Store
	logger   Logger
	recorder Recorder
	clock    Clock
	timeout  time.Duration
}

// New creates a Limiter on top of store.
func New(store Store, opts ...Option) *Limiter {
	l := &Limiter{
		store:    store,
		logger:   noopLogger{},
		recorder: noopRecorder{},
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one request for identity against every rule.
//
// It returns the per-window outcomes and nil when the request is admitted, a
// *ThrottledError when at least one window is exhausted, a *ConfigError for
// malformed rules (before any store call) and an *ExternalError when the store
// failed. Check is not idempotent and is never retried internally.
func (l *Limiter) Check(ctx context.Context, identity string, rules ...Rule) ([]Outcome, error) {
	return l.check(ctx, identity, rules, true)
}

// DryRun reports what Check would decide without touching any counter.
// Outcome.Current holds the pre-call count.
func (l *Limiter) DryRun(ctx context.Context, identity string, rules ...Rule) ([]Outcome, error) {
	return l.check(ctx, identity, rules, false)
}

func (l *Limiter) check(ctx context.Context, identity string, rules []Rule, increment bool) ([]Outcome, error) {
	limits, err := Normalize(rules...)
	if err != nil {
		return nil, err
	}

	mode := "check"
	if !increment {
		mode = "dryrun"
	}

	buckets := BuildBuckets(identity, limits, l.clock.Now())

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	outcomes, err := l.store.Apply(ctx, buckets, increment)
	l.recorder.Observe(MetricLatency, time.Since(start).Seconds(), map[string]string{"mode": mode})
	if err != nil {
		l.recorder.Add(MetricCheck, 1, map[string]string{"mode": mode, "result": "error"})
		l.logger.Errorf("Limiter store failed for identity '%s': %v", identity, err)
		return nil, asExternal("apply", err)
	}

	if err := Evaluate(identity, outcomes); err != nil {
		l.recorder.Add(MetricCheck, 1, map[string]string{"mode": mode, "result": "throttled"})
		l.logger.Debugf("Request denied for identity '%s': %v", identity, err)
		return outcomes, err
	}

	l.recorder.Add(MetricCheck, 1, map[string]string{"mode": mode, "result": "allowed"})
	l.logger.Debugf("Request allowed for identity '%s' across %d window(s)", identity, len(outcomes))
	return outcomes, nil
}

// Clear deletes the counters of the current windows of identity in a single
// store call. Past windows are not touched; they expire on their own.
func (l *Limiter) Clear(ctx context.Context, identity string, rules ...Rule) error {
	limits, err := Normalize(rules...)
	if err != nil {
		return err
	}

	keys := Keys(BuildBuckets(identity, limits, l.clock.Now()))

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	if err := l.store.Delete(ctx, keys...); err != nil {
		l.recorder.Add(MetricCheck, 1, map[string]string{"mode": "clear", "result": "error"})
		l.logger.Errorf("Limiter failed to clear identity '%s': %v", identity, err)
		return asExternal("delete", err)
	}

	l.recorder.Add(MetricCheck, 1, map[string]string{"mode": "clear", "result": "cleared"})
	l.logger.Debugf("Cleared %d window(s) for identity '%s'", len(keys), identity)
	return nil
}

// Timeout returns the deadline applied to each store round trip.
func (l *Limiter) Timeout() time.Duration { return l.timeout }

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func asExternal(op string, err error) error {
	var ext *ExternalError
	if errors.As(err, &ext) {
		return ext
	}
	return &ExternalError{Op: op, Err: err}
}
