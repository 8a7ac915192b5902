// Package dispatch bridges a parsed request to the external Router and
// steers whatever thread the router resolves on back onto the loop thread
// before touching any connection state.
package dispatch

import (
	"context"
	"time"

	"github.com/evloop/httpcore/api"
	"github.com/evloop/httpcore/connection"
	"github.com/evloop/httpcore/protocol"
	"github.com/evloop/httpcore/reactor"
	"github.com/evloop/httpcore/taskqueue"
)

// Dispatcher owns no state of its own; it closes over the loop's shared
// collaborators so the EventLoop can construct one without an import cycle.
type Dispatcher struct {
	Table   *connection.Table
	Queue   *taskqueue.Queue
	Reactor reactor.Reactor
	Router  api.Router
	Logger  api.Logger

	// ResponseChunkSize caps how many bytes a single write attempt sends;
	// the remainder waits for the next Write-readiness notification
	// rather than looping until the socket buffer is exhausted.
	ResponseChunkSize int
}

// Dispatch must be called from the loop thread. It transitions the
// connection to ProcessingRequest, then calls the router from a fresh
// goroutine so the router's own latency never blocks the loop; whichever
// goroutine that call resolves on enqueues the response-application step
// back onto the loop via Queue.Execute.
func (d *Dispatcher) Dispatch(fd uintptr, connID uint64, req *protocol.Request) {
	c, ok := d.Table.Get(fd)
	if !ok || c.ID != connID {
		return
	}
	c.State = connection.StateProcessingRequest
	c.Pending = req

	go d.invoke(fd, connID, req)
}

func (d *Dispatcher) invoke(fd uintptr, connID uint64, req *protocol.Request) {
	resp, err := d.Router.Route(context.Background(), req)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Errorf("router error on connection %d: %v", connID, err)
		}
		resp = protocol.InternalError()
	} else if resp == nil {
		resp = protocol.NotFound()
	}
	d.Queue.Execute(func() {
		d.applyResponse(fd, connID, resp, req.KeepAlive)
	})
}

// RespondError applies resp directly; it is for the loop-thread parse-error
// path, which never goes through a router, so no Queue.Execute hop is
// needed — the caller is already on the loop thread.
func (d *Dispatcher) RespondError(fd uintptr, connID uint64, resp *protocol.Response, requestKeepAlive bool) {
	d.applyResponse(fd, connID, resp, requestKeepAlive)
}

// applyResponse frames resp, stores it on the connection, transitions to
// WritingResponse, and attempts one write. It must only run on the loop
// thread; Dispatch's router path reaches it through Queue.Execute, and the
// parse-error path reaches it directly since it's already there.
func (d *Dispatcher) applyResponse(fd uintptr, connID uint64, resp *protocol.Response, requestKeepAlive bool) {
	c, ok := d.Table.Get(fd)
	if !ok || c.ID != connID {
		return
	}
	c.OutBuf = protocol.Frame(resp, requestKeepAlive)
	c.StatusCode = resp.Status
	c.KeepAlive = resp.KeepAlive
	c.WriteOffset = 0
	c.State = connection.StateWritingResponse

	d.AttemptWrite(c)
}

// AttemptWrite performs one non-blocking write of the connection's pending
// response bytes, arming Write-readiness if the buffer didn't fully drain,
// or completing the request (keep-alive reset, or close) if it did. After a
// keep-alive reset, any pipelined bytes left in the chain are parsed at once
// and the next request is dispatched or answered with its parse error. It is
// called both right after a response is framed and from the loop's
// handle_write path on subsequent Write-readiness notifications.
func (d *Dispatcher) AttemptWrite(c *connection.Conn) {
	remaining := c.RemainingOut()
	if len(remaining) == 0 {
		d.onWriteComplete(c)
		return
	}
	if chunk := d.ResponseChunkSize; chunk > 0 && len(remaining) > chunk {
		remaining = remaining[:chunk]
	}
	n, err := d.Reactor.Write(c.FD, remaining)
	if err != nil {
		if err == reactor.ErrWouldBlock {
			_ = d.Reactor.EnableWrite(c.FD)
			return
		}
		d.closeConnection(c)
		return
	}
	c.WriteOffset += n
	c.AddBytesWritten(n, time.Now())
	d.Table.AddBytesWritten(n)
	if c.FullyWritten() {
		d.onWriteComplete(c)
		return
	}
	_ = d.Reactor.EnableWrite(c.FD)
}

func (d *Dispatcher) onWriteComplete(c *connection.Conn) {
	_ = d.Reactor.DisableWrite(c.FD)
	if !c.KeepAlive {
		d.closeConnection(c)
		return
	}
	d.Table.ResetForKeepAlive(c, c.LastActivity)
	if c.Chain.Len() == 0 {
		return
	}
	view := c.Chain.Bytes()
	req, consumed, err := protocol.ParseRequest(view)
	if err == protocol.ErrIncomplete {
		return
	}
	if pe, ok := err.(*protocol.ParseError); ok {
		c.Chain.Consume(len(view))
		d.RespondError(c.FD, c.ID, protocol.FromParseError(pe), false)
		return
	}
	c.Chain.Consume(consumed)
	d.Dispatch(c.FD, c.ID, req)
}

func (d *Dispatcher) closeConnection(c *connection.Conn) {
	_ = d.Reactor.Close(c.FD)
	d.Table.Remove(c.FD)
}
