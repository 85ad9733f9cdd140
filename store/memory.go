// Package store provides storage engines for github.com/jassus213/go-window-limiter.
//
// Supported engines:
//   - ScriptStore: Redis, every window of a call decided by one atomic Lua script
//   - PipelineStore: Redis without scripting, one INCR+EXPIRE pipeline per window
//   - MemoryStore: in-process, for single-instance applications and tests
//
// Negotiate picks between the two Redis engines at startup.
//
// Example usage:
//
//	ctx := context.Background()
//	s := store.NewMemory(ctx, time.Minute) // cleanup interval = 1 minute
//	limiter := ratelimiter.New(s)
package store

import (
	"context"
	"sync"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
)

// windowEntry stores the counter and expiration time of one bucket key.
type windowEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-memory implementation of ratelimiter.Store.
//
// It applies the same rules as the Redis check script under a single mutex,
// so one Apply call is atomic with respect to every other call. Entries expire
// after their window length and an optional background goroutine removes
// them.
//
// Note: MemoryStore is suitable for single-instance applications.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]windowEntry
	now     func() time.Time
}

// NewMemory creates a new MemoryStore instance.
//
// ctx: a parent context used to manage the lifecycle of the background cleanup goroutine.
// cleanupInterval: interval at which expired entries are removed. Pass 0 to disable cleanup.
func NewMemory(ctx context.Context, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]windowEntry),
		now:     time.Now,
	}

	if cleanupInterval > 0 {
		go s.runCleanup(ctx, cleanupInterval)
	}

	return s
}

// Apply checks and, when increment is true, counts one request in every
// bucket that still has capacity. Saturated buckets are left untouched.
func (s *MemoryStore) Apply(ctx context.Context, buckets []ratelimiter.Bucket, increment bool) ([]ratelimiter.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	outcomes := make([]ratelimiter.Outcome, len(buckets))
	for i, b := range buckets {
		e, found := s.entries[b.Key]
		if found && !now.Before(e.expiresAt) {
			e = windowEntry{}
		}

		current := e.count
		allowed := current < b.Limit
		if allowed && increment {
			current++
			s.entries[b.Key] = windowEntry{count: current, expiresAt: now.Add(windowTTL(b))}
		}

		outcomes[i] = ratelimiter.Outcome{Bucket: b, Current: current, Success: allowed}
	}
	return outcomes, nil
}

// Delete removes keys. Missing keys are ignored.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// runCleanup periodically removes expired entries until ctx is done.
func (s *MemoryStore) runCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.removeExpired()
		case <-ctx.Done():
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}

var _ ratelimiter.Store = (*MemoryStore)(nil)
