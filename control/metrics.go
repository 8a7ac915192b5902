// Package control exposes the core's observable state: a typed metrics
// snapshot, a fixed configuration snapshot store, and a named-probe debug
// registry for ad hoc runtime inspection.
package control

import "time"

// Metrics is the read-only snapshot described in the configuration and
// observability surface: every field is populated from a lock-free atomic
// read, so two fields in the same snapshot may be loosely consistent with
// each other.
type Metrics struct {
	Running            bool
	TotalLoops         uint64
	TotalTasks         uint64
	ActiveConnections  int64
	TotalConnections   uint64
	BytesRead          uint64
	BytesWritten       uint64
	QueuedTasks        int64
	LastLoopDuration   time.Duration
}

// MetricsSource is whatever can produce a Metrics snapshot; server.Server
// implements it by reading its EventLoop's counters.
type MetricsSource interface {
	Snapshot() Metrics
}
