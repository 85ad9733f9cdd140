package store

import (
	"context"
	"errors"
	"testing"

	ratelimiter "github.com/jassus213/go-window-limiter"
)

type recordingLogger struct {
	warnings int
}

func (l *recordingLogger) Debugf(format string, args ...interface{}) {}
func (l *recordingLogger) Warnf(format string, args ...interface{})  { l.warnings++ }
func (l *recordingLogger) Errorf(format string, args ...interface{}) {}

func TestNegotiate_PrefersScript(t *testing.T) {
	_, client := newTestRedis(t)

	s, err := Negotiate(context.Background(), client, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*ScriptStore); !ok {
		t.Errorf("expected *ScriptStore, got %T", s)
	}
}

func TestNegotiate_StoreDown(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	_, err := Negotiate(context.Background(), client, nil)
	if !errors.Is(err, ratelimiter.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestScriptingUnsupported(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"ERR unknown command 'SCRIPT', with args beginning with: 'LOAD'", true},
		{"NOPERM this user has no permissions to run the 'script|load' command", true},
		{"ERR command not allowed", true},
		{"dial tcp 127.0.0.1:6379: connect: connection refused", false},
		{"context deadline exceeded", false},
	}
	for _, tt := range tests {
		if got := scriptingUnsupported(errors.New(tt.msg)); got != tt.want {
			t.Errorf("scriptingUnsupported(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestOpen(t *testing.T) {
	_, client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tests := []struct {
		strategy Strategy
		conn     Conn
		want     string
		wantErr  error
	}{
		{strategy: StrategyMemory, want: "*store.MemoryStore"},
		{strategy: StrategyPipeline, conn: client, want: "*store.PipelineStore"},
		{strategy: StrategyScript, conn: client, want: "*store.ScriptStore"},
		{strategy: StrategyAuto, conn: client, want: "*store.ScriptStore"},
		{strategy: StrategyPipeline, wantErr: ratelimiter.ErrInvalidRule},
		{strategy: Strategy("bogus"), conn: client, wantErr: ratelimiter.ErrInvalidRule},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			s, err := Open(ctx, tt.strategy, tt.conn, &recordingLogger{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := typeName(s); got != tt.want {
				t.Errorf("Open(%s) = %s, want %s", tt.strategy, got, tt.want)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{
		"":         StrategyAuto,
		"AUTO":     StrategyAuto,
		" script ": StrategyScript,
		"pipeline": StrategyPipeline,
		"memory":   StrategyMemory,
	} {
		got, err := ParseStrategy(in)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseStrategy("lua"); !errors.Is(err, ratelimiter.ErrInvalidRule) {
		t.Errorf("expected a config error for an unknown strategy, got %v", err)
	}
}

func typeName(s ratelimiter.Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "*store.MemoryStore"
	case *PipelineStore:
		return "*store.PipelineStore"
	case *ScriptStore:
		return "*store.ScriptStore"
	default:
		return "unknown"
	}
}
