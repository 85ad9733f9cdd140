// Package logrusadapter plugs a logrus logger into the rate limiter.
package logrusadapter

import (
	ratelimiter "github.com/jassus213/go-window-limiter"
	"github.com/sirupsen/logrus"
)

// LogrusLogger implements ratelimiter.Logger using logrus
type LogrusLogger struct {
	logger *logrus.Entry
}

// New creates a LogrusLogger with the field component=ratelimiter. If nil is
// passed, a fresh logrus.Logger is used.
func New(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.New()
	}
	return &LogrusLogger{
		logger: l.WithField("component", "ratelimiter"),
	}
}

// WithFields returns a logger that adds fields to every entry.
func (l *LogrusLogger) WithFields(fields logrus.Fields) *LogrusLogger {
	return &LogrusLogger{logger: l.logger.WithFields(fields)}
}

// Debugf logs a debug-level message
func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Warnf logs a warn-level message
func (l *LogrusLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Errorf logs an error-level message
func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

var _ ratelimiter.Logger = (*LogrusLogger)(nil)
