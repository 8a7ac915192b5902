// Package server assembles the reactor, event loop, and control surface
// into a single runnable process: NewServer wires the collaborators,
// Start/Shutdown drive the loop's own lifecycle.
package server

import "github.com/evloop/httpcore/api"

// Option customizes a Server before Start is called.
type Option func(*Server)

// WithHost overrides the bind host.
func WithHost(host string) Option {
	return func(s *Server) { s.cfg.Host = host }
}

// WithPort overrides the bind port.
func WithPort(port int) Option {
	return func(s *Server) { s.cfg.Port = port }
}

// WithCleanupInterval overrides the idle-sweep period, in seconds.
func WithCleanupInterval(seconds int) Option {
	return func(s *Server) { s.cfg.CleanupIntervalSeconds = seconds }
}

// WithConnectionTimeout overrides the idle-eviction threshold, in
// milliseconds.
func WithConnectionTimeout(millis int) Option {
	return func(s *Server) { s.cfg.ConnectionTimeoutMillis = millis }
}

// WithMaxRequestSize sets Config.MaxRequestSize. The parser does not read
// this value: the 413 cap it enforces is always protocol.MaxRequestSize.
func WithMaxRequestSize(bytes int) Option {
	return func(s *Server) { s.cfg.MaxRequestSize = bytes }
}

// WithResponseBufferSize overrides the per-write chunk size.
func WithResponseBufferSize(bytes int) Option {
	return func(s *Server) { s.cfg.ResponseBufferSize = bytes }
}

// WithMaxTasksPerIteration overrides the per-iteration task drain cap.
func WithMaxTasksPerIteration(n int) Option {
	return func(s *Server) { s.cfg.MaxTasksPerIteration = n }
}

// WithCPUAffinity pins the loop thread to a specific logical CPU. Pass -1
// (the default) to leave affinity unset.
func WithCPUAffinity(cpuID int) Option {
	return func(s *Server) { s.cfg.CPUAffinity = cpuID }
}

// WithLogger overrides the default api.StdLogger.
func WithLogger(logger api.Logger) Option {
	return func(s *Server) { s.logger = logger }
}
