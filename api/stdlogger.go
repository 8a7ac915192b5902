package api

import "log"

// StdLogger implements Logger over the standard library's log package:
// log.Printf per level, no structured logging library. Debugf is routed
// through the same sink; callers that want to silence debug noise should
// filter before constructing one, since this core has no log-level
// framework.
type StdLogger struct {
	Prefix string
}

func (l StdLogger) Debugf(format string, args ...any) { log.Printf(l.tag("DEBUG")+format, args...) }
func (l StdLogger) Infof(format string, args ...any)  { log.Printf(l.tag("INFO")+format, args...) }
func (l StdLogger) Errorf(format string, args ...any) { log.Printf(l.tag("ERROR")+format, args...) }

func (l StdLogger) tag(level string) string {
	if l.Prefix == "" {
		return "[" + level + "] "
	}
	return "[" + l.Prefix + "] [" + level + "] "
}
