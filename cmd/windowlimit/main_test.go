package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/jassus213/go-window-limiter/config"
	"github.com/jassus213/go-window-limiter/store"
	"github.com/rs/zerolog"
)

func writeTestConfig(t *testing.T, addr, strategy string) string {
	t.Helper()
	content := `
redis:
  addrs: ["` + addr + `"]
limiter:
  strategy: ` + strategy + `
policies:
  api:
    - limit: 2
      window: 1h
    - limit: 100
      window: 24h
`
	path := filepath.Join(t.TempDir(), "windowlimit.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	checkDryRun = false
	validateCheckRedis = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckAndClear(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeTestConfig(t, mr.Addr(), "script")

	for i := 0; i < 2; i++ {
		if _, err := run(t, "check", "api", "alice", "--config", path); err != nil {
			t.Fatalf("check %d: %v", i+1, err)
		}
	}

	out, err := run(t, "check", "api", "alice", "--config", path)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("check 3: expected ErrThrottled, got %v", err)
	}
	if !strings.Contains(out, "throttled") {
		t.Errorf("output does not report throttling:\n%s", out)
	}

	out, err = run(t, "check", "api", "alice", "--dry-run", "--config", path)
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("dry run: expected ErrThrottled, got %v", err)
	}
	if !strings.Contains(out, "3600s") || !strings.Contains(out, "86400s") {
		t.Errorf("dry run output misses a window:\n%s", out)
	}

	if _, err := run(t, "clear", "api", "alice", "--config", path); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := run(t, "check", "api", "alice", "--config", path); err != nil {
		t.Errorf("check after clear: %v", err)
	}
}

func TestCheck_UnknownPolicy(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeTestConfig(t, mr.Addr(), "pipeline")

	if _, err := run(t, "check", "admin", "alice", "--config", path); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}

func TestCheck_StoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeTestConfig(t, mr.Addr(), "pipeline")
	mr.Close()

	_, err := run(t, "check", "api", "alice", "--config", path)
	if err == nil || errors.Is(err, ErrThrottled) {
		t.Errorf("expected a store error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeTestConfig(t, mr.Addr(), "auto")

	out, err := run(t, "validate", "--check-redis", "--config", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, "Policy api") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, err := run(t, "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestNewAPI(t *testing.T) {
	cfg, err := config.Parse([]byte(`
limiter:
  strategy: memory
  policy: api
  key_header: X-API-Key
policies:
  api:
    - limit: 2
      window: 1h
`))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := newAPI(ratelimiter.New(store.NewMemory(ctx, 0)), cfg, zerolog.Nop())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
		req.Header.Set("X-API-Key", "alice")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != 429 {
		t.Errorf("codes = %v, want [200 200 429]", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("X-API-Key", "bob")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other key: status = %d, want 200", rec.Code)
	}
}

func TestOnConfigChange_ReloadsLimiter(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	writeConfig := func(path, timeout, level string) {
		t.Helper()
		content := `
limiter:
  strategy: memory
  policy: api
  timeout: ` + timeout + `
logging:
  level: ` + level + `
policies:
  api:
    - limit: 1
      window: 1h
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "windowlimit.yaml")
	writeConfig(path, "100ms", "info")

	holder, err := config.NewHolder(path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Stop()

	cfg := holder.Get()
	logger := newLogger(cfg.Logging, &bytes.Buffer{})
	b, err := openBackend(cfg, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	var api atomic.Pointer[gin.Engine]
	api.Store(newAPI(b.Limiter(), cfg, logger))
	holder.OnChange(onConfigChange(b, &api, logger))

	if got := b.Limiter().Timeout(); got != 100*time.Millisecond {
		t.Fatalf("initial timeout = %v, want 100ms", got)
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("initial level = %v, want info", zerolog.GlobalLevel())
	}

	writeConfig(path, "2s", "debug")
	if err := holder.Reload(); err != nil {
		t.Fatal(err)
	}

	if got := b.Limiter().Timeout(); got != 2*time.Second {
		t.Errorf("timeout after reload = %v, want 2s", got)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("level after reload = %v, want debug", zerolog.GlobalLevel())
	}

	// Counters live in the store and survive the rebuild.
	if _, err := b.DryRun(context.Background(), "alice", ratelimiter.PerWindow(1, time.Hour)); err != nil {
		t.Fatal(err)
	}
	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		rec := httptest.NewRecorder()
		api.Load().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
		if rec.Code != want {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, want)
		}
	}
}
