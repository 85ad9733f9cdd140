// Package zapadapter plugs a zap logger into the rate limiter.
package zapadapter

import (
	ratelimiter "github.com/jassus213/go-window-limiter"
	"go.uber.org/zap"
)

// ZapLogger implements ratelimiter.Logger on top of a zap.SugaredLogger.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// New creates a ZapLogger named "ratelimiter".
//
// If a nil logger is provided, zap.NewNop() is used and every message is
// discarded.
//
// Example:
//
//	l := ratelimiter.New(s, ratelimiter.WithLogger(zapadapter.New(logger)))
func New(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{logger: l.Named("ratelimiter").Sugar()}
}

// With returns a logger that adds key/value pairs to every message, e.g. a
// request id.
func (z *ZapLogger) With(keysAndValues ...interface{}) *ZapLogger {
	return &ZapLogger{logger: z.logger.With(keysAndValues...)}
}

// Debugf logs at debug level.
func (z *ZapLogger) Debugf(format string, args ...interface{}) {
	z.logger.Debugf(format, args...)
}

// Warnf logs at warn level.
func (z *ZapLogger) Warnf(format string, args ...interface{}) {
	z.logger.Warnf(format, args...)
}

// Errorf logs at error level.
func (z *ZapLogger) Errorf(format string, args ...interface{}) {
	z.logger.Errorf(format, args...)
}

var _ ratelimiter.Logger = (*ZapLogger)(nil)
