package admin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/jassus213/go-window-limiter/admin"
	"github.com/jassus213/go-window-limiter/clock"
	"github.com/jassus213/go-window-limiter/config"
	"github.com/jassus213/go-window-limiter/store"
	"github.com/rs/zerolog"
)

var baseTime = time.Unix(1_700_000_000, 0)

var policies = &config.Config{Policies: map[string][]ratelimiter.Rule{
	"api": {
		ratelimiter.PerWindow(3, 10*time.Second),
		ratelimiter.PerWindow(100, time.Hour),
	},
}}

type brokenStore struct{}

func (brokenStore) Apply(ctx context.Context, buckets []ratelimiter.Bucket, increment bool) ([]ratelimiter.Outcome, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Delete(ctx context.Context, keys ...string) error {
	return errors.New("connection refused")
}

func newTestHandler(t *testing.T, s ratelimiter.Store) (*ratelimiter.Limiter, http.Handler) {
	t.Helper()
	l := ratelimiter.New(s, ratelimiter.WithClock(clock.NewFake(baseTime)))
	h := admin.NewHandler(admin.Deps{
		Limiter:  l,
		Policies: policies,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		}),
		Logger: zerolog.Nop(),
	})
	return l, h.Router()
}

func newMemoryStore(t *testing.T) *store.MemoryStore {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return store.NewMemory(ctx, 0)
}

func TestGetLimits(t *testing.T) {
	l, router := newTestHandler(t, newMemoryStore(t))
	rules, _ := policies.Policy("api")
	for i := 0; i < 3; i++ {
		if _, err := l.Check(context.Background(), "alice", rules...); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/limits/api/alice", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}

		var resp admin.LimitsResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Allowed {
			t.Error("Allowed = true, want false after 3 of 3 requests")
		}
		if len(resp.Windows) != 2 {
			t.Fatalf("windows = %d, want 2", len(resp.Windows))
		}
		hour, short := resp.Windows[0], resp.Windows[1]
		if hour.WindowSeconds != 3600 || hour.Current != 3 || hour.Remaining != 97 || !hour.Success {
			t.Errorf("hour window = %+v", hour)
		}
		if short.Key != "{alice}:10:170000000" || short.Current != 3 || short.Success {
			t.Errorf("10s window = %+v", short)
		}
		if !short.ResetAt.Equal(time.Unix(1_700_000_010, 0)) {
			t.Errorf("ResetAt = %v", short.ResetAt)
		}
	}
}

func TestClearLimits(t *testing.T) {
	l, router := newTestHandler(t, newMemoryStore(t))
	rules, _ := policies.Policy("api")
	for i := 0; i < 3; i++ {
		l.Check(context.Background(), "bob", rules...)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/limits/api/bob", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	if _, err := l.Check(context.Background(), "bob", rules...); err != nil {
		t.Errorf("expected a fresh window after clear, got %v", err)
	}
}

func TestUnknownPolicy(t *testing.T) {
	_, router := newTestHandler(t, newMemoryStore(t))

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/limits/nope/alice", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", method, rec.Code)
		}
	}
}

func TestStoreUnavailable(t *testing.T) {
	_, router := newTestHandler(t, brokenStore{})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, "/limits/api/alice", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", method, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		health func(context.Context) error
		want   int
	}{
		{name: "no check", want: http.StatusOK},
		{name: "healthy", health: func(context.Context) error { return nil }, want: http.StatusOK},
		{name: "down", health: func(context.Context) error { return errors.New("dial tcp: refused") }, want: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := admin.NewHandler(admin.Deps{Health: tt.health, Logger: zerolog.Nop()})
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	_, router := newTestHandler(t, newMemoryStore(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if len(rec.Header().Get(admin.RequestIDHeader)) != 36 {
		t.Errorf("generated request id = %q, want a uuid", rec.Header().Get(admin.RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(admin.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get(admin.RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestMetricsMounted(t *testing.T) {
	_, router := newTestHandler(t, newMemoryStore(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Errorf("metrics = %d %q", rec.Code, rec.Body.String())
	}
}
