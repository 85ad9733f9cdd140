package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
)

// Strategy selects the engine built by Open.
type Strategy string

const (
	// StrategyAuto uses the script engine when the server supports scripting
	// and falls back to the pipeline engine otherwise.
	StrategyAuto Strategy = "auto"
	// StrategyScript requires scripting support.
	StrategyScript Strategy = "script"
	// StrategyPipeline never uses scripting.
	StrategyPipeline Strategy = "pipeline"
	// StrategyMemory keeps counters in process; no Redis connection is used.
	StrategyMemory Strategy = "memory"
)

// ParseStrategy validates a strategy name. The empty string means auto.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(strings.ToLower(strings.TrimSpace(name))); s {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyScript, StrategyPipeline, StrategyMemory:
		return s, nil
	default:
		return "", &ratelimiter.ConfigError{Reason: fmt.Sprintf("unknown store strategy %q", name)}
	}
}

// Open builds the engine for strategy. conn may be nil only for
// StrategyMemory. ctx bounds the startup round trips and, for the memory
// engine, the lifetime of its cleanup goroutine.
func Open(ctx context.Context, strategy Strategy, conn Conn, logger ratelimiter.Logger) (ratelimiter.Store, error) {
	switch strategy {
	case StrategyMemory:
		return NewMemory(ctx, time.Minute), nil
	case StrategyPipeline:
		if conn == nil {
			return nil, &ratelimiter.ConfigError{Reason: "pipeline strategy requires a redis connection"}
		}
		return NewPipeline(conn), nil
	case StrategyScript:
		if conn == nil {
			return nil, &ratelimiter.ConfigError{Reason: "script strategy requires a redis connection"}
		}
		s := NewScript(conn)
		if err := s.Load(ctx); err != nil {
			if scriptingUnsupported(err) {
				return nil, &ratelimiter.ConfigError{Reason: fmt.Sprintf("script strategy requested but the server refused scripting: %v", err)}
			}
			return nil, &ratelimiter.ExternalError{Op: "script load", Err: err}
		}
		return s, nil
	case StrategyAuto, "":
		if conn == nil {
			return nil, &ratelimiter.ConfigError{Reason: "auto strategy requires a redis connection"}
		}
		return Negotiate(ctx, conn, logger)
	default:
		return nil, &ratelimiter.ConfigError{Reason: fmt.Sprintf("unknown store strategy %q", strategy)}
	}
}

// Negotiate registers the check script and returns a ScriptStore, or a
// PipelineStore when the server does not support scripting. It runs once at
// startup; the chosen engine is then used for every call.
//
// Errors other than missing scripting support are returned as
// *ratelimiter.ExternalError.
func Negotiate(ctx context.Context, conn Conn, logger ratelimiter.Logger) (ratelimiter.Store, error) {
	s := NewScript(conn)
	err := s.Load(ctx)
	if err == nil {
		if logger != nil {
			logger.Debugf("Redis scripting available, using atomic script store")
		}
		return s, nil
	}

	if scriptingUnsupported(err) {
		if logger != nil {
			logger.Warnf("Redis scripting unavailable (%v), falling back to pipelined store", err)
		}
		return NewPipeline(conn), nil
	}
	return nil, &ratelimiter.ExternalError{Op: "script load", Err: err}
}

// scriptingUnsupported reports whether err is the server refusing SCRIPT
// commands rather than a transport failure.
func scriptingUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"unknown command",
		"command not allowed",
		"not supported",
		"scripting is disabled",
		"noperm",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var (
	_ ratelimiter.Store = (*ScriptStore)(nil)
	_ ratelimiter.Store = (*PipelineStore)(nil)
)
