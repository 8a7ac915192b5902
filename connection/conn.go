// Package connection tracks the per-socket state the event loop threads
// through a request/response cycle: the incremental read buffer, the
// request currently being processed, and the outbound response bytes not
// yet fully written.
package connection

import (
	"sync/atomic"
	"time"

	"github.com/evloop/httpcore/protocol"
)

// State is a connection's position in the ReadingRequest -> ProcessingRequest
// -> WritingResponse cycle. A Keep-Alive response resets it back to
// ReadingRequest; a non-Keep-Alive response is followed by Close.
type State uint8

const (
	StateReadingRequest State = iota
	StateProcessingRequest
	StateWritingResponse
)

func (s State) String() string {
	switch s {
	case StateReadingRequest:
		return "reading"
	case StateProcessingRequest:
		return "processing"
	case StateWritingResponse:
		return "writing"
	default:
		return "unknown"
	}
}

// Conn is one accepted socket's state. Every field except the atomic
// counters is only ever touched by the loop thread; the counters are
// atomic solely so control.DebugProbes can read them from any goroutine.
type Conn struct {
	ID    uint64
	FD    uintptr
	State State

	Chain   ChunkChain
	Pending *protocol.Request

	OutBuf      []byte
	WriteOffset int
	StatusCode  int
	KeepAlive   bool

	CreatedAt    time.Time
	LastActivity time.Time

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	requestCount atomic.Uint64
}

// AddBytesRead records n bytes consumed from the socket and bumps
// LastActivity.
func (c *Conn) AddBytesRead(n int, now time.Time) {
	if n > 0 {
		c.bytesRead.Add(uint64(n))
	}
	c.LastActivity = now
}

// AddBytesWritten records n bytes flushed to the socket and bumps
// LastActivity.
func (c *Conn) AddBytesWritten(n int, now time.Time) {
	if n > 0 {
		c.bytesWritten.Add(uint64(n))
	}
	c.LastActivity = now
}

// BytesRead returns the cumulative byte count read from this connection.
func (c *Conn) BytesRead() uint64 { return c.bytesRead.Load() }

// BytesWritten returns the cumulative byte count written to this connection.
func (c *Conn) BytesWritten() uint64 { return c.bytesWritten.Load() }

// RequestCount returns the number of requests this connection has completed.
func (c *Conn) RequestCount() uint64 { return c.requestCount.Load() }

// FullyWritten reports whether OutBuf has been completely flushed.
func (c *Conn) FullyWritten() bool {
	return c.WriteOffset >= len(c.OutBuf)
}

// RemainingOut returns the unwritten tail of OutBuf.
func (c *Conn) RemainingOut() []byte {
	if c.WriteOffset >= len(c.OutBuf) {
		return nil
	}
	return c.OutBuf[c.WriteOffset:]
}

// resetForKeepAlive returns a connection to ReadingRequest after a
// Keep-Alive response has fully drained, preserving any pipelined bytes
// already sitting in Chain so the next request continues parsing from
// them rather than losing them.
func (c *Conn) resetForKeepAlive(now time.Time) {
	c.State = StateReadingRequest
	c.Pending = nil
	c.OutBuf = nil
	c.WriteOffset = 0
	c.StatusCode = 0
	c.requestCount.Add(1)
	c.LastActivity = now
}
