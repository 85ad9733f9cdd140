// Package ratelimiter provides distributed multi-window rate limiting on top of
// a shared key-value store.
//
// A caller describes a limit as one or more Rules (for example "3 requests per
// 10 seconds" and "100 requests per hour") and checks an identity (a user id,
// an IP address, an API key) against all of them at once. Every rule maps to a
// fixed, epoch-aligned window whose counter lives in the store under a bucket
// key of the form:
//
//	{identity}:{window seconds}:{slot}
//
// The package defines three core abstractions:
//   - Store: the check-and-increment engine (see package store for the Redis
//     script, Redis pipeline and in-memory implementations)
//   - Limiter: the facade that normalizes rules, builds bucket keys and
//     classifies the engine's answer
//   - Outcome: one per-window result, carried by ThrottledError on denial
package ratelimiter

import (
	"context"
)

// Outcome is the result of checking a single window.
//
// It is a value type: the engine builds it once per call and nothing mutates it
// afterwards.
type Outcome struct {
	Bucket

	// Current is the counter value the request observed. For a window under
	// capacity it is the request's position in the window; for a saturated
	// window it is the unincremented count.
	Current int64
	// Success reports whether this window admitted the request.
	Success bool
}

// Remaining returns how many more requests the window admits.
func (o Outcome) Remaining() int64 {
	if o.Current >= o.Limit {
		return 0
	}
	return o.Limit - o.Current
}

// Store is the check-and-increment engine backing a Limiter.
//
// Implementations must treat one Apply call as a unit: for a single identity
// they decide every window and, when increment is true, bump the counters of
// the windows that still have capacity. Infrastructure failures are returned
// as plain errors; the Limiter wraps them in ExternalError.
type Store interface {
	// Apply checks buckets and returns one Outcome per processed bucket, in
	// processing order. With increment set to false nothing is mutated and
	// Current reports the pre-call counter value.
	//
	// An implementation may stop early after the first failed window; in that
	// case the returned slice ends with the failed Outcome.
	Apply(ctx context.Context, buckets []Bucket, increment bool) ([]Outcome, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
