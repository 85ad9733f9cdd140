// Package zerologadapter plugs a zerolog logger into the rate limiter.
package zerologadapter

import (
	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ZerologLogger implements ratelimiter.Logger using zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
}

// New creates a ZerologLogger tagged with component=ratelimiter. If nil is
// passed, zerolog's global logger is used.
func New(l *zerolog.Logger) *ZerologLogger {
	if l == nil {
		l = &log.Logger
	}
	return &ZerologLogger{
		logger: l.With().Str("component", "ratelimiter").Logger(),
	}
}

// Debugf logs a debug-level message
func (z *ZerologLogger) Debugf(format string, args ...interface{}) {
	z.logger.Debug().Msgf(format, args...)
}

// Warnf logs a warn-level message
func (z *ZerologLogger) Warnf(format string, args ...interface{}) {
	z.logger.Warn().Msgf(format, args...)
}

// Errorf logs an error-level message
func (z *ZerologLogger) Errorf(format string, args ...interface{}) {
	z.logger.Error().Msgf(format, args...)
}

var _ ratelimiter.Logger = (*ZerologLogger)(nil)
