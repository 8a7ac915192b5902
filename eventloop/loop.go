// Package eventloop drives the single loop thread: poll readiness, dispatch
// exactly one action per ready socket, drain the task queue, sweep idle
// connections, and keep the metrics snapshot current.
package eventloop

import (
	"sync/atomic"
	"time"

	"github.com/evloop/httpcore/api"
	"github.com/evloop/httpcore/connection"
	"github.com/evloop/httpcore/dispatch"
	"github.com/evloop/httpcore/protocol"
	"github.com/evloop/httpcore/reactor"
	"github.com/evloop/httpcore/taskqueue"
)

// state values for the loop's lifecycle.
const (
	stateStopped int32 = iota
	stateRunning
)

// Options configures one EventLoop. Every field except PollTimeoutMs
// corresponds to a key in control.Config; the loop itself has no notion of
// configuration keys or their string names.
type Options struct {
	MaxTasksPerIteration int
	PollTimeoutMs        int
	IdleSweepInterval    time.Duration
	ConnectionTimeout    time.Duration
	ResponseChunkSize    int
}

// DefaultOptions returns the loop's baseline tuning values.
func DefaultOptions() Options {
	return Options{
		MaxTasksPerIteration: 10000,
		PollTimeoutMs:        1000,
		IdleSweepInterval:    30 * time.Second,
		ConnectionTimeout:    30 * time.Second,
		ResponseChunkSize:    8 * 1024,
	}
}

// EventLoop owns the reactor, connection table, and task queue exclusively;
// nothing outside this package ever touches them directly except through
// the TaskQueue handle returned by Queue().
type EventLoop struct {
	opts   Options
	react  reactor.Reactor
	table  *connection.Table
	queue  *taskqueue.Queue
	disp   *dispatch.Dispatcher
	router api.Router
	logger api.Logger

	listenerFD uintptr

	state        atomic.Int32
	loopGID      atomic.Uint64
	stopCh       chan struct{}
	doneCh       chan struct{}
	nextSweep    time.Time
	totalLoops   atomic.Uint64
	totalTasks   atomic.Uint64
	lastLoopNano atomic.Int64
}

// New constructs an EventLoop bound to react and router. The listening
// socket is created and registered by Start, not here, so construction
// never fails on bind errors.
func New(react reactor.Reactor, router api.Router, logger api.Logger, opts Options) *EventLoop {
	if logger == nil {
		logger = api.StdLogger{Prefix: "eventloop"}
	}
	el := &EventLoop{
		opts:   opts,
		react:  react,
		table:  connection.NewTable(),
		router: router,
		logger: logger,
	}
	el.queue = taskqueue.New(el.InEventLoop, func() { _ = el.react.Wake() })
	el.disp = &dispatch.Dispatcher{
		Table:             el.table,
		Queue:             el.queue,
		Reactor:           el.react,
		Router:            el.router,
		Logger:            el.logger,
		ResponseChunkSize: opts.ResponseChunkSize,
	}
	return el
}

// Queue returns the handle user-facing submission sites are allowed to
// hold; it never exposes the reactor or connection table.
func (el *EventLoop) Queue() *taskqueue.Queue { return el.queue }

// Table exposes read-only access to connection accounting for metrics.
func (el *EventLoop) Table() *connection.Table { return el.table }

// TotalLoops, TotalTasks, and LastLoopDuration back control.Metrics.
func (el *EventLoop) TotalLoops() uint64 { return el.totalLoops.Load() }
func (el *EventLoop) TotalTasks() uint64 { return el.totalTasks.Load() }
func (el *EventLoop) LastLoopDuration() time.Duration {
	return time.Duration(el.lastLoopNano.Load())
}
func (el *EventLoop) Running() bool { return el.state.Load() == stateRunning }

// InEventLoop returns true iff the calling goroutine is the loop thread.
func (el *EventLoop) InEventLoop() bool {
	return el.state.Load() == stateRunning && goroutineID() == el.loopGID.Load()
}

// Start is idempotent: it binds and registers the listening socket, then
// spawns the loop goroutine.
func (el *EventLoop) Start(host string, port int) error {
	if !el.state.CompareAndSwap(stateStopped, stateRunning) {
		return nil
	}
	fd, err := el.react.Listen(host, port)
	if err != nil {
		el.state.Store(stateStopped)
		return err
	}
	if err := el.react.RegisterServer(fd); err != nil {
		el.state.Store(stateStopped)
		return err
	}
	el.listenerFD = fd
	el.stopCh = make(chan struct{})
	el.doneCh = make(chan struct{})
	el.nextSweep = time.Now().Add(el.opts.IdleSweepInterval)
	go el.run()
	return nil
}

// Shutdown is idempotent: it wakes the poll, joins the loop thread with a
// 5-second bound, then closes the reactor.
func (el *EventLoop) Shutdown() {
	if !el.state.CompareAndSwap(stateRunning, stateStopped) {
		return
	}
	close(el.stopCh)
	_ = el.react.Wake()
	select {
	case <-el.doneCh:
	case <-time.After(5 * time.Second):
	}
	el.queue.Shutdown(5 * time.Second)
	_ = el.react.Shutdown()
}

func (el *EventLoop) run() {
	el.loopGID.Store(goroutineID())
	defer close(el.doneCh)

	for {
		select {
		case <-el.stopCh:
			return
		default:
		}

		start := time.Now()
		if err := el.iterate(); err != nil {
			el.logger.Errorf("event loop iteration error: %v", err)
			select {
			case <-el.stopCh:
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
		el.lastLoopNano.Store(int64(time.Since(start)))
		total := el.totalLoops.Add(1)
		if total%10000 == 0 {
			el.logger.Debugf("event loop: %d loops, %d active connections, %d queued tasks",
				total, el.table.ActiveCount(), el.queue.QueuedCount())
		}
	}
}

func (el *EventLoop) iterate() error {
	events, err := el.react.Poll(el.opts.PollTimeoutMs)
	if err != nil {
		return err
	}
	for _, ev := range events {
		switch {
		case ev.Kind&reactor.EventAccept != 0:
			el.handleAccept()
		case ev.Kind&reactor.EventRead != 0:
			el.handleRead(ev.FD)
		case ev.Kind&reactor.EventWrite != 0:
			el.handleWrite(ev.FD)
		}
	}

	drained := el.queue.Drain(el.opts.MaxTasksPerIteration)
	el.totalTasks.Add(uint64(drained))

	if !time.Now().Before(el.nextSweep) {
		el.sweepIdle()
		el.nextSweep = time.Now().Add(el.opts.IdleSweepInterval)
	}
	return nil
}

func (el *EventLoop) handleAccept() {
	for {
		fd, err := el.react.Accept(el.listenerFD)
		if err != nil {
			if err != reactor.ErrWouldBlock {
				el.logger.Errorf("accept error: %v", err)
			}
			return
		}
		if err := el.react.RegisterClient(fd); err != nil {
			el.logger.Errorf("register client error: %v", err)
			_ = el.react.Close(fd)
			continue
		}
		el.table.Add(fd, time.Now())
	}
}

func (el *EventLoop) handleRead(fd uintptr) {
	c, ok := el.table.Get(fd)
	if !ok || c.State != connection.StateReadingRequest {
		return
	}
	var buf [64 * 1024]byte
	for {
		n, err := el.react.Read(fd, buf[:])
		if err != nil {
			switch err {
			case reactor.ErrWouldBlock:
				return
			case reactor.ErrPeerClosed:
				_ = el.react.Close(fd)
				el.table.Remove(fd)
				return
			default:
				el.logger.Errorf("read error on connection %d: %v", c.ID, err)
				_ = el.react.Close(fd)
				el.table.Remove(fd)
				return
			}
		}
		now := time.Now()
		c.Chain.Append(buf[:n])
		c.AddBytesRead(n, now)
		el.table.AddBytesRead(n)

		if !el.tryParse(fd, c) {
			return
		}
		if c.State != connection.StateReadingRequest {
			return
		}
		if n < len(buf) {
			return
		}
	}
}

// tryParse attempts to parse one request out of c's chunk chain. It
// returns false if the caller's read loop should stop (either a request
// was dispatched, or the connection failed and was removed).
func (el *EventLoop) tryParse(fd uintptr, c *connection.Conn) bool {
	view := c.Chain.Bytes()
	if len(view) == 0 {
		return true
	}
	req, consumed, err := protocol.ParseRequest(view)
	if err != nil {
		if err == protocol.ErrIncomplete {
			return true
		}
		pe, ok := err.(*protocol.ParseError)
		if !ok {
			el.logger.Errorf("unexpected parse error on connection %d: %v", c.ID, err)
			_ = el.react.Close(fd)
			el.table.Remove(fd)
			return false
		}
		c.Chain.Consume(len(view))
		el.disp.RespondError(fd, c.ID, protocol.FromParseError(pe), false)
		return false
	}
	c.Chain.Consume(consumed)
	el.disp.Dispatch(fd, c.ID, req)
	return false
}

func (el *EventLoop) handleWrite(fd uintptr) {
	c, ok := el.table.Get(fd)
	if !ok || c.State != connection.StateWritingResponse {
		return
	}
	el.disp.AttemptWrite(c)
}

func (el *EventLoop) sweepIdle() {
	idle := el.table.SweepIdle(el.opts.ConnectionTimeout, time.Now())
	for _, fd := range idle {
		_ = el.react.Close(fd)
		el.table.Remove(fd)
	}
}
