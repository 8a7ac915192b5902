package server

import (
	"time"

	"github.com/evloop/httpcore/affinity"
	"github.com/evloop/httpcore/api"
	"github.com/evloop/httpcore/control"
	"github.com/evloop/httpcore/eventloop"
	"github.com/evloop/httpcore/reactor"
)

// Server owns the reactor and event loop for one listening socket. It is
// the only thing end users construct directly; everything
// else in this module is reached through it or through the TaskQueue
// handle it exposes.
type Server struct {
	cfg    control.Config
	logger api.Logger
	probes *control.DebugProbes
	loop   *eventloop.EventLoop
}

// NewServer builds a Server bound to router, applying opts over
// control.DefaultConfig(). It does not bind a socket or start the loop —
// call Start for that.
func NewServer(router api.Router, opts ...Option) (*Server, error) {
	react, err := reactor.New()
	if err != nil {
		return nil, err
	}
	return newServer(react, router, opts...), nil
}

// newServer builds a Server over an already-constructed reactor, letting
// tests inject a fake in place of the platform reactor.
func newServer(react reactor.Reactor, router api.Router, opts ...Option) *Server {
	s := &Server{
		cfg:    control.DefaultConfig(),
		logger: api.StdLogger{Prefix: "httpcore"},
		probes: control.NewDebugProbes(),
	}
	for _, opt := range opts {
		opt(s)
	}

	loopOpts := eventloop.Options{
		MaxTasksPerIteration: s.cfg.MaxTasksPerIteration,
		PollTimeoutMs:        1000,
		IdleSweepInterval:    time.Duration(s.cfg.CleanupIntervalSeconds) * time.Second,
		ConnectionTimeout:    time.Duration(s.cfg.ConnectionTimeoutMillis) * time.Millisecond,
		ResponseChunkSize:    s.cfg.ResponseBufferSize,
	}
	s.loop = eventloop.New(react, router, s.logger, loopOpts)

	s.probes.RegisterProbe("connections", func() any { return s.loop.Table().ActiveCount() })
	s.probes.RegisterProbe("queued_tasks", func() any { return s.loop.Queue().QueuedCount() })
	s.probes.RegisterProbe("total_loops", func() any { return s.loop.TotalLoops() })

	return s
}

// Start binds the configured host:port and spawns the loop thread. If
// CPUAffinity is set, the loop goroutine attempts to pin itself to that
// CPU once it starts running; a failure to pin is logged, not fatal.
func (s *Server) Start() error {
	if err := s.loop.Start(s.cfg.Host, s.cfg.Port); err != nil {
		return err
	}
	if s.cfg.CPUAffinity >= 0 {
		cpuID := s.cfg.CPUAffinity
		s.loop.Queue().Execute(func() {
			if err := affinity.SetAffinity(cpuID); err != nil {
				s.logger.Errorf("cpu affinity pin failed: %v", err)
			}
		})
	}
	return nil
}

// Shutdown stops the loop and releases the reactor.
func (s *Server) Shutdown() {
	s.loop.Shutdown()
}

// Queue returns the task queue handle external code may submit work to.
func (s *Server) Queue() interface {
	Execute(func())
} {
	return s.loop.Queue()
}

// DebugProbes returns the registered probe set for runtime inspection.
func (s *Server) DebugProbes() *control.DebugProbes { return s.probes }

// Snapshot implements control.MetricsSource.
func (s *Server) Snapshot() control.Metrics {
	return control.Metrics{
		Running:           s.loop.Running(),
		TotalLoops:        s.loop.TotalLoops(),
		TotalTasks:        s.loop.TotalTasks(),
		ActiveConnections: s.loop.Table().ActiveCount(),
		TotalConnections:  s.loop.Table().TotalCount(),
		BytesRead:         s.loop.Table().BytesRead(),
		BytesWritten:      s.loop.Table().BytesWritten(),
		QueuedTasks:       s.loop.Queue().QueuedCount(),
		LastLoopDuration:  s.loop.LastLoopDuration(),
	}
}
