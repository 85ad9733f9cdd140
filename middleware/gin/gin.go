// Package gin provides rate limiting middleware for the Gin framework.
package gin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	ratelimiter "github.com/jassus213/go-window-limiter"
)

// OutcomesKey is the context key under which admitted requests find their
// per-window outcomes.
const OutcomesKey = "ratelimiter.outcomes"

// RateLimiter creates a new Gin middleware handler.
//
// It counts every request against rules for the identity returned by the
// configured KeyFunc (WithKeyFunc). Rejections are written by the ErrorHandler
// (WithErrorHandler); store failures abort with the ErrorHandler too unless
// WithFailOpen(true) is set.
//
// Example:
//
//	import ginmw "github.com/jassus213/go-window-limiter/middleware/gin"
//
//	l := ratelimiter.New(s)
//	router := gin.Default()
//	router.Use(ginmw.RateLimiter(l, []ratelimiter.Rule{ratelimiter.PerWindow(100, time.Minute)}))
func RateLimiter(limiter *ratelimiter.Limiter, rules []ratelimiter.Rule, options ...ratelimiter.MiddlewareOption) gin.HandlerFunc {
	cfg := ratelimiter.NewMiddlewareConfig(options...)

	return func(c *gin.Context) {
		key, err := cfg.KeyFunc(c.Request)
		if err != nil {
			cfg.Logger.Errorf("Failed to extract key: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		outcomes, err := limiter.Check(c.Request.Context(), key, rules...)
		if err == nil {
			ratelimiter.SetHeaders(c.Writer.Header(), outcomes)
			c.Set(OutcomesKey, outcomes)
			c.Next()
			return
		}

		var throttled *ratelimiter.ThrottledError
		switch {
		case errors.As(err, &throttled):
			ratelimiter.SetHeaders(c.Writer.Header(), throttled.Outcomes)
			cfg.Logger.Debugf("Request denied for key '%s': %v", key, err)
			cfg.ErrorHandler(c.Writer, c.Request, err)
			c.Abort()
		case errors.Is(err, ratelimiter.ErrStoreUnavailable) && cfg.FailOpen:
			cfg.Logger.Warnf("Limiter unavailable for key '%s', failing open: %v", key, err)
			c.Next()
		case errors.Is(err, ratelimiter.ErrStoreUnavailable):
			cfg.Logger.Errorf("Limiter unavailable for key '%s': %v", key, err)
			cfg.ErrorHandler(c.Writer, c.Request, err)
			c.Abort()
		default:
			cfg.Logger.Errorf("Limiter failed for key '%s': %v", key, err)
			c.AbortWithStatus(http.StatusInternalServerError)
		}
	}
}
