package api

import (
	"context"

	"github.com/evloop/httpcore/protocol"
)

// Router is the external collaborator that turns a parsed request into a
// response. Route may resolve on any goroutine — the dispatcher is
// responsible for hopping the result back onto the loop thread before
// touching connection state.
//
// A nil *protocol.Response with a nil error means "no route matched" and
// becomes a 404. A non-nil error becomes a 500, regardless of its value.
type Router interface {
	Route(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// RouterFunc adapts a plain function to Router.
type RouterFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Route calls f.
func (f RouterFunc) Route(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// Logger is the structured log sink external collaborator. The core calls
// it for loop-level recoverable errors, connection failures, and debug
// metrics lines; it never blocks the loop thread waiting on a logger.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// HandlerPool is the external collaborator a Router may use to run CPU or
// IO work off the loop thread. The core never constructs one itself — it
// only needs Router implementations to respect "don't block the loop"
// when they use one.
type HandlerPool interface {
	Submit(task func()) error
}
