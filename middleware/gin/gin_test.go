package gin_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/jassus213/go-window-limiter/clock"
	ginmw "github.com/jassus213/go-window-limiter/middleware/gin"
	"github.com/jassus213/go-window-limiter/store"
)

type brokenStore struct{}

func (brokenStore) Apply(ctx context.Context, buckets []ratelimiter.Bucket, increment bool) ([]ratelimiter.Outcome, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Delete(ctx context.Context, keys ...string) error {
	return errors.New("connection refused")
}

func newRouter(l *ratelimiter.Limiter, rules []ratelimiter.Rule, opts ...ratelimiter.MiddlewareOption) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ginmw.RateLimiter(l, rules, opts...))
	r.GET("/ping", func(c *gin.Context) {
		outcomes, _ := c.Get(ginmw.OutcomesKey)
		c.JSON(http.StatusOK, gin.H{"windows": len(outcomes.([]ratelimiter.Outcome))})
	})
	return r
}

func TestRateLimiter_ThrottlesAfterLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := ratelimiter.New(store.NewMemory(ctx, 0), ratelimiter.WithClock(clock.NewFake(time.Unix(1_700_000_000, 0))))
	r := newRouter(l, []ratelimiter.Rule{
		ratelimiter.PerWindow(3, 10*time.Second),
		ratelimiter.PerWindow(100, time.Hour),
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)

		if i == 0 && rec.Body.String() != `{"windows":2}` {
			t.Errorf("body = %s, want the outcomes of both windows", rec.Body.String())
		}
		if i == 3 && rec.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Errorf("X-RateLimit-Remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
		}
	}

	want := []int{200, 200, 200, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes = %v, want %v", codes, want)
			break
		}
	}
}

func TestRateLimiter_StoreFailure(t *testing.T) {
	rules := []ratelimiter.Rule{ratelimiter.PerWindow(1, time.Second)}
	l := ratelimiter.New(brokenStore{})

	rec := httptest.NewRecorder()
	newRouter(l, rules).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("fail closed: status = %d, want 503", rec.Code)
	}

	gin.SetMode(gin.TestMode)
	open := gin.New()
	open.Use(ginmw.RateLimiter(l, rules, ratelimiter.WithFailOpen(true)))
	open.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("fail open: status = %d, want 204", rec.Code)
	}
}

func TestRateLimiter_CustomErrorHandler(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := ratelimiter.New(store.NewMemory(ctx, 0))
	handler := ratelimiter.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
		w.WriteHeader(http.StatusTeapot)
	})
	r := newRouter(l, []ratelimiter.Rule{ratelimiter.PerWindow(1, time.Minute)}, handler)

	var last int
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		last = rec.Code
	}
	if last != http.StatusTeapot {
		t.Errorf("status = %d, want 418", last)
	}
}
