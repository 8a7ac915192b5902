package fake

import (
	"fmt"
	"sync"
)

// Logger is an api.Logger that records every call instead of writing to
// stderr, so tests can assert on what the core logged.
type Logger struct {
	mu    sync.Mutex
	Lines []string
}

// NewLogger constructs an empty recording logger.
func NewLogger() *Logger { return &Logger{} }

func (l *Logger) record(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Lines = append(l.Lines, "["+level+"] "+fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.record("DEBUG", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.record("INFO", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.record("ERROR", format, args...) }

// All returns a snapshot of every recorded line.
func (l *Logger) All() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.Lines))
	copy(out, l.Lines)
	return out
}
