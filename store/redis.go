package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/redis/go-redis/v9"
)

//go:embed check.lua
var checkLua string

// Conn is the subset of a go-redis client the Redis stores rely on.
//
// *redis.Client, *redis.ClusterClient, *redis.Ring and redis.UniversalClient
// all satisfy it.
type Conn interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Pipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// ScriptStore implements ratelimiter.Store with a single Lua script, so that
// reading, comparing and incrementing every window of a call happens in one
// atomic step on the Redis server.
//
// The script handle is owned by the store and shared by every caller. Run uses
// EVALSHA and falls back to EVAL when the server lost its script cache.
type ScriptStore struct {
	conn   Conn
	script *redis.Script
}

// NewScript creates a ScriptStore. Call Load once at startup to register the
// script, or use Negotiate which does so.
func NewScript(conn Conn) *ScriptStore {
	return &ScriptStore{
		conn:   conn,
		script: redis.NewScript(checkLua),
	}
}

// Load registers the script on the server.
func (s *ScriptStore) Load(ctx context.Context) error {
	return s.script.Load(ctx, s.conn).Err()
}

// Apply runs the check script over buckets. Keys travel in KEYS so that they
// reach Redis byte for byte; ARGV only carries the limits.
func (s *ScriptStore) Apply(ctx context.Context, buckets []ratelimiter.Bucket, increment bool) ([]ratelimiter.Outcome, error) {
	if len(buckets) == 0 {
		return nil, nil
	}

	args := make([][2]int64, len(buckets))
	for i, b := range buckets {
		args[i] = [2]int64{b.Limit, b.Window}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode script arguments: %w", err)
	}

	flag := 0
	if increment {
		flag = 1
	}

	raw, err := s.script.Run(ctx, s.conn, ratelimiter.Keys(buckets), string(payload), flag).Text()
	if err != nil {
		return nil, fmt.Errorf("run check script: %w", err)
	}

	// One [current, allowed] pair per key, in KEYS order.
	var windows [][2]int64
	if err := json.Unmarshal([]byte(raw), &windows); err != nil {
		return nil, fmt.Errorf("decode check script response %q: %w", raw, err)
	}
	if len(windows) != len(buckets) {
		return nil, fmt.Errorf("check script answered %d window(s), want %d", len(windows), len(buckets))
	}

	outcomes := make([]ratelimiter.Outcome, len(buckets))
	for i, b := range buckets {
		outcomes[i] = ratelimiter.Outcome{
			Bucket:  b,
			Current: windows[i][0],
			Success: windows[i][1] == 1,
		}
	}
	return outcomes, nil
}

// Delete removes keys with a single DEL.
func (s *ScriptStore) Delete(ctx context.Context, keys ...string) error {
	return deleteKeys(ctx, s.conn, keys)
}

func deleteKeys(ctx context.Context, conn Conn, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := conn.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete %d key(s): %w", len(keys), err)
	}
	return nil
}

func windowTTL(b ratelimiter.Bucket) time.Duration {
	return time.Duration(b.Window) * time.Second
}
