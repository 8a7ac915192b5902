package connection

import (
	"sync"
	"sync/atomic"
	"time"
)

// Table is the event loop's registry of live connections, keyed by socket
// identity (fd). Connection ids are monotonically increasing and never
// reused, even across fd reuse by the OS, so stale references from a
// completed router call can detect they refer to a connection that has
// since been closed and replaced.
type Table struct {
	mu    sync.RWMutex
	conns map[uintptr]*Conn

	nextID       atomic.Uint64
	activeCount  atomic.Int64
	totalCount   atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

// NewTable constructs an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[uintptr]*Conn)}
}

// Add registers a newly accepted fd and returns its Conn.
func (t *Table) Add(fd uintptr, now time.Time) *Conn {
	c := &Conn{
		ID:           t.nextID.Add(1),
		FD:           fd,
		State:        StateReadingRequest,
		CreatedAt:    now,
		LastActivity: now,
	}
	t.mu.Lock()
	t.conns[fd] = c
	t.mu.Unlock()
	t.activeCount.Add(1)
	t.totalCount.Add(1)
	return c
}

// Get looks up the connection currently registered under fd. A caller that
// holds a *Conn across an async router call must re-check Get against the
// stored ID before touching loop state, since the fd may have been reused
// for an unrelated connection by the time the completion arrives.
func (t *Table) Get(fd uintptr) (*Conn, bool) {
	t.mu.RLock()
	c, ok := t.conns[fd]
	t.mu.RUnlock()
	return c, ok
}

// Remove unregisters fd, releasing its chunk chain's pooled buffers.
func (t *Table) Remove(fd uintptr) {
	t.mu.Lock()
	c, ok := t.conns[fd]
	if ok {
		delete(t.conns, fd)
	}
	t.mu.Unlock()
	if ok {
		c.Chain.Reset()
		t.activeCount.Add(-1)
	}
}

// ResetForKeepAlive transitions c back to ReadingRequest, preserving any
// bytes beyond the just-completed request already sitting in its chain.
func (t *Table) ResetForKeepAlive(c *Conn, now time.Time) {
	c.resetForKeepAlive(now)
}

// ActiveCount is the number of currently registered connections.
func (t *Table) ActiveCount() int64 { return t.activeCount.Load() }

// TotalCount is the cumulative number of connections ever registered.
func (t *Table) TotalCount() uint64 { return t.totalCount.Load() }

// AddBytesRead accumulates n into the server-wide bytes-read counter,
// independent of any single connection's lifetime.
func (t *Table) AddBytesRead(n int) {
	if n > 0 {
		t.bytesRead.Add(uint64(n))
	}
}

// AddBytesWritten accumulates n into the server-wide bytes-written counter.
func (t *Table) AddBytesWritten(n int) {
	if n > 0 {
		t.bytesWritten.Add(uint64(n))
	}
}

// BytesRead is the cumulative byte count read across every connection ever
// registered, including ones since closed.
func (t *Table) BytesRead() uint64 { return t.bytesRead.Load() }

// BytesWritten is the cumulative byte count written across every
// connection ever registered, including ones since closed.
func (t *Table) BytesWritten() uint64 { return t.bytesWritten.Load() }

// SweepIdle returns the fds of every connection whose LastActivity is older
// than now.Add(-maxIdle). It does not remove them — the caller closes each
// fd through the reactor and then calls Remove.
func (t *Table) SweepIdle(maxIdle time.Duration, now time.Time) []uintptr {
	cutoff := now.Add(-maxIdle)
	t.mu.RLock()
	defer t.mu.RUnlock()
	var idle []uintptr
	for fd, c := range t.conns {
		if c.LastActivity.Before(cutoff) {
			idle = append(idle, fd)
		}
	}
	return idle
}
