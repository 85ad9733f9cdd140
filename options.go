package ratelimiter

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Logger is the interface used for logging inside the rate limiter.
//
// Implement this interface to provide your own logging backend, or use one of
// the adapters in the adapters directory (zap, zerolog, logrus, log).
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Recorder receives limiter metrics. See package metrics for a Prometheus
// implementation.
type Recorder interface {
	// Add increments a counter.
	Add(name string, value float64, tags map[string]string)
	// Observe records a timing or size sample.
	Observe(name string, value float64, tags map[string]string)
}

// Clock supplies the current time used to pick window slots.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures a Limiter.
//
// Example:
//
//	l := ratelimiter.New(s,
//	    ratelimiter.WithLogger(myLogger),
//	    ratelimiter.WithTimeout(200*time.Millisecond),
//	)
type Option func(*Limiter)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l Logger) Option {
	return func(lim *Limiter) {
		if l != nil {
			lim.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder. A nil recorder is ignored.
func WithRecorder(r Recorder) Option {
	return func(lim *Limiter) {
		if r != nil {
			lim.recorder = r
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(lim *Limiter) {
		if c != nil {
			lim.clock = c
		}
	}
}

// WithTimeout bounds every store round trip. Zero disables the limiter's own
// deadline; the caller's context still applies.
func WithTimeout(d time.Duration) Option {
	return func(lim *Limiter) {
		if d >= 0 {
			lim.timeout = d
		}
	}
}

// KeyFunc extracts the identity to rate limit from an HTTP request, e.g. the
// client IP or an API key header.
type KeyFunc func(r *http.Request) (string, error)

// ErrorHandler writes the response for a rejected request. err is either a
// *ThrottledError or an *ExternalError.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareConfig holds the options shared by the HTTP middlewares.
type MiddlewareConfig struct {
	KeyFunc      KeyFunc
	ErrorHandler ErrorHandler
	Logger       Logger
	// FailOpen lets requests through when the store is unavailable.
	FailOpen bool
}

// MiddlewareOption applies a setting to a MiddlewareConfig.
type MiddlewareOption func(*MiddlewareConfig)

// NewMiddlewareConfig returns the default middleware configuration with opts
// applied: identity is the remote address, throttled requests get a 429 with
// Retry-After, store failures get a 503.
func NewMiddlewareConfig(opts ...MiddlewareOption) *MiddlewareConfig {
	cfg := &MiddlewareConfig{
		KeyFunc: func(r *http.Request) (string, error) {
			return r.RemoteAddr, nil
		},
		ErrorHandler: DefaultErrorHandler,
		Logger:       noopLogger{},
	}

	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DefaultErrorHandler answers 429 Too Many Requests for throttled requests and
// 503 Service Unavailable when the store could not decide.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		retryAfter := int(math.Ceil(throttled.RetryAfter(time.Now()).Seconds()))
		if retryAfter <= 0 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}
	http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
}

// WithKeyFunc sets how clients are identified.
func WithKeyFunc(f KeyFunc) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if f != nil {
			c.KeyFunc = f
		}
	}
}

// WithErrorHandler sets the response writer for rejected requests.
func WithErrorHandler(f ErrorHandler) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if f != nil {
			c.ErrorHandler = f
		}
	}
}

// WithMiddlewareLogger sets the middleware logger.
func WithMiddlewareLogger(l Logger) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithFailOpen lets requests through when the store is unavailable instead of
// answering 503.
func WithFailOpen(open bool) MiddlewareOption {
	return func(c *MiddlewareConfig) {
		c.FailOpen = open
	}
}

// SetHeaders writes X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset for the tightest window of outcomes.
func SetHeaders(h http.Header, outcomes []Outcome) {
	o, ok := Tightest(outcomes)
	if !ok {
		return
	}
	h.Set("X-RateLimit-Limit", strconv.FormatInt(o.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(o.Remaining(), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(o.ResetAt().Unix(), 10))
}

// noopLogger is a private default logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Warnf(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// noopRecorder is a private default recorder that does nothing.
type noopRecorder struct{}

func (noopRecorder) Add(name string, value float64, tags map[string]string)     {}
func (noopRecorder) Observe(name string, value float64, tags map[string]string) {}
