package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
	zerologadapter "github.com/jassus213/go-window-limiter/adapters/zerolog"
	"github.com/jassus213/go-window-limiter/clock"
	"github.com/jassus213/go-window-limiter/config"
	"github.com/jassus213/go-window-limiter/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// newLogger builds the process logger from the logging section. The level
// is process wide so that a reload can change it.
func newLogger(cfg config.LoggingConfig, out io.Writer) zerolog.Logger {
	applyLogLevel(cfg)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func applyLogLevel(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// backend bundles the store, the connection it owns and the limiter built on
// top of them. The limiter is swapped on reload; the store is not.
type backend struct {
	store    ratelimiter.Store
	logger   ratelimiter.Logger
	recorder ratelimiter.Recorder
	limiter  atomic.Pointer[ratelimiter.Limiter]
	client   redis.UniversalClient
	cancel   context.CancelFunc
}

// openBackend connects to the store selected by cfg. The returned backend
// must be closed.
func openBackend(cfg *config.Config, logger zerolog.Logger, recorder ratelimiter.Recorder) (*backend, error) {
	adapter := zerologadapter.New(&logger)
	strategy := cfg.Strategy()

	var client redis.UniversalClient
	if strategy != store.StrategyMemory {
		client = config.NewRedisClient(cfg.Redis)
	}

	// ctx outlives startup: it bounds the memory store's cleanup loop.
	ctx, cancel := context.WithCancel(context.Background())

	var conn store.Conn
	if client != nil {
		conn = client
	}
	s, err := store.Open(ctx, strategy, conn, adapter)
	if err != nil {
		cancel()
		if client != nil {
			client.Close()
		}
		return nil, fmt.Errorf("open %s store: %w", strategy, err)
	}

	logger.Debug().Str("strategy", string(strategy)).Str("store", fmt.Sprintf("%T", s)).Msg("store ready")

	b := &backend{
		store:    s,
		logger:   adapter,
		recorder: recorder,
		client:   client,
		cancel:   cancel,
	}
	b.Reconfigure(cfg)
	return b, nil
}

// Limiter returns the limiter built from the latest configuration.
func (b *backend) Limiter() *ratelimiter.Limiter {
	return b.limiter.Load()
}

// Reconfigure rebuilds the limiter with the limiter settings of cfg. The
// store and its connection are kept; a strategy or Redis change needs a
// restart.
func (b *backend) Reconfigure(cfg *config.Config) {
	b.limiter.Store(ratelimiter.New(b.store,
		ratelimiter.WithLogger(b.logger),
		ratelimiter.WithClock(clock.Real{}),
		ratelimiter.WithRecorder(b.recorder),
		ratelimiter.WithTimeout(cfg.Limiter.Timeout),
	))
}

func (b *backend) DryRun(ctx context.Context, identity string, rules ...ratelimiter.Rule) ([]ratelimiter.Outcome, error) {
	return b.Limiter().DryRun(ctx, identity, rules...)
}

func (b *backend) Clear(ctx context.Context, identity string, rules ...ratelimiter.Rule) error {
	return b.Limiter().Clear(ctx, identity, rules...)
}

// Ping checks the Redis connection. It always succeeds for the memory store.
func (b *backend) Ping(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Ping(ctx).Err()
}

func (b *backend) Close() {
	b.cancel()
	if b.client != nil {
		b.client.Close()
	}
}

func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", cfgFile)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
