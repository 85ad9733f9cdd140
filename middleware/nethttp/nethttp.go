// Package nethttp provides rate limiting middleware for net/http handlers.
package nethttp

import (
	"errors"
	"net/http"

	ratelimiter "github.com/jassus213/go-window-limiter"
)

// Middleware creates a new middleware handler for the standard `net/http` library.
//
// Every request is counted against all rules for the identity returned by the
// configured KeyFunc. The X-RateLimit-* headers describe the tightest window.
// Throttled requests and store failures are handed to the ErrorHandler, except
// that store failures pass through when WithFailOpen(true) is set.
//
// Example:
//
//	l := ratelimiter.New(s)
//	mw := nethttp.Middleware(l, []ratelimiter.Rule{
//	    ratelimiter.PerWindow(3, 10*time.Second),
//	    ratelimiter.PerWindow(100, time.Hour),
//	})
//	http.ListenAndServe(":8080", mw(mux))
func Middleware(limiter *ratelimiter.Limiter, rules []ratelimiter.Rule, options ...ratelimiter.MiddlewareOption) func(http.Handler) http.Handler {
	cfg := ratelimiter.NewMiddlewareConfig(options...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := cfg.KeyFunc(r)
			if err != nil {
				cfg.Logger.Errorf("Failed to extract key: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			outcomes, err := limiter.Check(r.Context(), key, rules...)
			if err == nil {
				ratelimiter.SetHeaders(w.Header(), outcomes)
				next.ServeHTTP(w, r)
				return
			}

			var throttled *ratelimiter.ThrottledError
			switch {
			case errors.As(err, &throttled):
				ratelimiter.SetHeaders(w.Header(), throttled.Outcomes)
				cfg.Logger.Debugf("Request denied for key '%s': %v", key, err)
				cfg.ErrorHandler(w, r, err)
			case errors.Is(err, ratelimiter.ErrStoreUnavailable) && cfg.FailOpen:
				cfg.Logger.Warnf("Limiter unavailable for key '%s', failing open: %v", key, err)
				next.ServeHTTP(w, r)
			case errors.Is(err, ratelimiter.ErrStoreUnavailable):
				cfg.Logger.Errorf("Limiter unavailable for key '%s': %v", key, err)
				cfg.ErrorHandler(w, r, err)
			default:
				cfg.Logger.Errorf("Limiter failed for key '%s': %v", key, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
