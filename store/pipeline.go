package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/redis/go-redis/v9"
)

// PipelineStore implements ratelimiter.Store for servers without scripting.
//
// Windows are processed longest first. Each window costs one pipelined
// INCR+EXPIRE round trip, and processing stops at the first window whose count
// exceeds its limit.
//
// Consistency is weaker than ScriptStore:
//   - only a single window's INCR+EXPIRE pair is atomic; the decision across
//     windows is not
//   - increments made for earlier windows are kept when a later window fails
//   - a saturated window keeps counting, so concurrent callers racing at the
//     boundary all observe counts above the limit and are all rejected
type PipelineStore struct {
	conn Conn
}

// NewPipeline creates a PipelineStore.
func NewPipeline(conn Conn) *PipelineStore {
	return &PipelineStore{conn: conn}
}

// Apply increments windows one by one, longest first, and stops at the first
// window over its limit. A dry run reads every window in one pipeline.
func (s *PipelineStore) Apply(ctx context.Context, buckets []ratelimiter.Bucket, increment bool) ([]ratelimiter.Outcome, error) {
	ordered := LongestFirst(buckets)

	if !increment {
		return s.peek(ctx, ordered)
	}

	outcomes := make([]ratelimiter.Outcome, 0, len(ordered))
	for _, b := range ordered {
		var incr *redis.IntCmd
		_, err := s.conn.Pipelined(ctx, func(p redis.Pipeliner) error {
			incr = p.Incr(ctx, b.Key)
			p.Expire(ctx, b.Key, windowTTL(b))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("increment %q: %w", b.Key, err)
		}

		count := incr.Val()
		o := ratelimiter.Outcome{Bucket: b, Current: count, Success: count <= b.Limit}
		outcomes = append(outcomes, o)
		if !o.Success {
			break
		}
	}
	return outcomes, nil
}

func (s *PipelineStore) peek(ctx context.Context, buckets []ratelimiter.Bucket) ([]ratelimiter.Outcome, error) {
	cmds := make([]*redis.StringCmd, len(buckets))
	_, err := s.conn.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, b := range buckets {
			cmds[i] = p.Get(ctx, b.Key)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read %d window(s): %w", len(buckets), err)
	}

	outcomes := make([]ratelimiter.Outcome, len(buckets))
	for i, b := range buckets {
		current, err := cmds[i].Int64()
		if errors.Is(err, redis.Nil) {
			current, err = 0, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", b.Key, err)
		}
		outcomes[i] = ratelimiter.Outcome{Bucket: b, Current: current, Success: current < b.Limit}
	}
	return outcomes, nil
}

// Delete removes keys with a single DEL.
func (s *PipelineStore) Delete(ctx context.Context, keys ...string) error {
	return deleteKeys(ctx, s.conn, keys)
}

// LongestFirst returns a copy of buckets sorted by window length, longest
// first. Ties keep their input order.
func LongestFirst(buckets []ratelimiter.Bucket) []ratelimiter.Bucket {
	ordered := make([]ratelimiter.Bucket, len(buckets))
	copy(ordered, buckets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Window > ordered[j].Window })
	return ordered
}
