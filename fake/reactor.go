package fake

import (
	"sync"

	"github.com/evloop/httpcore/reactor"
)

// socketState is one fd's in-memory socket: Out is what Write appends to
// (what a test asserts against as "bytes written to the client"); In is
// fed by the test and drained by Read.
type socketState struct {
	in         []byte
	inOff      int
	out        []byte
	closed     bool
	writeBlock bool // if true, the next Write call returns ErrWouldBlock once
	wantWrite  bool // set by EnableWrite, cleared by DisableWrite
}

// Reactor is an in-memory reactor.Reactor for unit tests that never touch a
// real socket. Accept always returns ErrWouldBlock unless a connection has
// been queued with QueueAccept; fds are small sequential integers assigned
// by QueueAccept.
type Reactor struct {
	mu         sync.Mutex
	sockets    map[uintptr]*socketState
	pending    []uintptr
	nextFD     uintptr
	listenerFD uintptr
	woken      int
	writeCap   int // if >0, caps bytes accepted per Write call
}

// NewReactor constructs an empty fake reactor.
func NewReactor() *Reactor {
	return &Reactor{sockets: make(map[uintptr]*socketState)}
}

// QueueAccept registers a new client fd as pending so the next Accept call
// returns it, and seeds its inbound bytes.
func (r *Reactor) QueueAccept(inbound []byte) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextFD++
	fd := r.nextFD
	r.sockets[fd] = &socketState{in: append([]byte(nil), inbound...)}
	r.pending = append(r.pending, fd)
	return fd
}

// Feed appends more inbound bytes to fd, as if more data arrived.
func (r *Reactor) Feed(fd uintptr, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sockets[fd]
	if s != nil {
		s.in = append(s.in, b...)
	}
}

// Written returns everything written to fd so far.
func (r *Reactor) Written(fd uintptr) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sockets[fd]
	if s == nil {
		return nil
	}
	return append([]byte(nil), s.out...)
}

// Closed reports whether fd has been closed.
func (r *Reactor) Closed(fd uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sockets[fd]
	return s == nil || s.closed
}

// BlockNextWrite makes the next Write on fd report ErrWouldBlock once.
func (r *Reactor) BlockNextWrite(fd uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sockets[fd]; s != nil {
		s.writeBlock = true
	}
}

func (r *Reactor) Listen(host string, port int) (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextFD++
	r.listenerFD = r.nextFD
	return r.listenerFD, nil
}
func (r *Reactor) RegisterServer(fd uintptr) error { return nil }
func (r *Reactor) RegisterClient(fd uintptr) error { return nil }

func (r *Reactor) EnableWrite(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sockets[fd]; s != nil {
		s.wantWrite = true
	}
	return nil
}

func (r *Reactor) DisableWrite(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sockets[fd]; s != nil {
		s.wantWrite = false
	}
	return nil
}

func (r *Reactor) Close(fd uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.sockets[fd]; s != nil {
		s.closed = true
	}
	return nil
}

func (r *Reactor) Accept(fd uintptr) (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return 0, reactor.ErrWouldBlock
	}
	next := r.pending[0]
	r.pending = r.pending[1:]
	return next, nil
}

// Poll reports one EventAccept if a connection is queued, one EventRead for
// every registered socket with unread inbound bytes, and one EventWrite for
// every socket currently armed via EnableWrite. It never blocks, regardless
// of timeoutMs.
func (r *Reactor) Poll(timeoutMs int) ([]reactor.ReadyEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var events []reactor.ReadyEvent
	if len(r.pending) > 0 {
		events = append(events, reactor.ReadyEvent{FD: r.listenerFD, Kind: reactor.EventAccept})
	}
	for fd, s := range r.sockets {
		if s.closed {
			continue
		}
		if s.inOff < len(s.in) {
			events = append(events, reactor.ReadyEvent{FD: fd, Kind: reactor.EventRead})
		}
		if s.wantWrite {
			events = append(events, reactor.ReadyEvent{FD: fd, Kind: reactor.EventWrite})
		}
	}
	return events, nil
}

func (r *Reactor) Wake() error {
	r.mu.Lock()
	r.woken++
	r.mu.Unlock()
	return nil
}

// WakeCount reports how many times Wake has been called.
func (r *Reactor) WakeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.woken
}

func (r *Reactor) Read(fd uintptr, buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sockets[fd]
	if s == nil {
		return 0, reactor.ErrPeerClosed
	}
	remaining := s.in[s.inOff:]
	if len(remaining) == 0 {
		return 0, reactor.ErrWouldBlock
	}
	n := copy(buf, remaining)
	s.inOff += n
	return n, nil
}

func (r *Reactor) Write(fd uintptr, buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sockets[fd]
	if s == nil {
		return 0, reactor.ErrPeerClosed
	}
	if s.writeBlock {
		s.writeBlock = false
		return 0, reactor.ErrWouldBlock
	}
	n := len(buf)
	if r.writeCap > 0 && n > r.writeCap {
		n = r.writeCap
	}
	s.out = append(s.out, buf[:n]...)
	return n, nil
}

func (r *Reactor) Shutdown() error { return nil }
