// Package stdlogadapter implements ratelimiter.Logger with the standard
// library log package, for programs that want no logging dependency.
package stdlogadapter

import (
	"log"

	ratelimiter "github.com/jassus213/go-window-limiter"
)

// StdLogger prefixes every line with its level.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// New creates a StdLogger. If nil is passed, log.Default() is used. Debug
// lines are dropped unless debug is true.
func New(l *log.Logger, debug bool) *StdLogger {
	if l == nil {
		l = log.Default()
	}
	return &StdLogger{
		logger: l,
		debug:  debug,
	}
}

// Debugf logs a debug-level message when debug output is enabled.
func (s *StdLogger) Debugf(format string, args ...interface{}) {
	if !s.debug {
		return
	}
	s.logger.Printf("[DEBUG] "+format, args...)
}

// Warnf logs a warn-level message
func (s *StdLogger) Warnf(format string, args ...interface{}) {
	s.logger.Printf("[WARN] "+format, args...)
}

// Errorf logs an error-level message
func (s *StdLogger) Errorf(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+format, args...)
}

var _ ratelimiter.Logger = (*StdLogger)(nil)
