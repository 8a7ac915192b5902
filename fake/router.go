// Package fake provides test doubles for the external collaborators:
// Router and Logger. They let dispatch/eventloop/server tests exercise the
// full request path without a real user-supplied handler.
package fake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/evloop/httpcore/protocol"
)

// Router is a scriptable api.Router: Handlers maps a "METHOD target" key to
// a function producing the response. Unmatched requests behave like "no
// route" (nil, nil) unless Default is set.
type Router struct {
	mu       sync.Mutex
	Handlers map[string]func(*protocol.Request) (*protocol.Response, error)
	Default  func(*protocol.Request) (*protocol.Response, error)

	// Delay, if non-zero, is slept before resolving every call — useful
	// for exercising the dispatcher's async-completion hop.
	Delay time.Duration

	calls int
}

// NewRouter constructs an empty scriptable router.
func NewRouter() *Router {
	return &Router{Handlers: make(map[string]func(*protocol.Request) (*protocol.Response, error))}
}

// On registers a canned handler for method+target.
func (r *Router) On(method, target string, handler func(*protocol.Request) (*protocol.Response, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Handlers[method+" "+target] = handler
}

// Route implements api.Router.
func (r *Router) Route(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	r.mu.Lock()
	r.calls++
	delay := r.Delay
	handler, ok := r.Handlers[req.Method.String()+" "+req.Target]
	if !ok {
		handler = r.Default
	}
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if handler == nil {
		return nil, nil
	}
	return handler(req)
}

// Calls reports how many times Route has been invoked.
func (r *Router) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// ErrRouterFailure is a canned error for handlers that should make Route
// fail.
var ErrRouterFailure = errors.New("fake: router handler failed")

// OK returns a handler that always succeeds with status 200 and body.
func OK(body string) func(*protocol.Request) (*protocol.Response, error) {
	return func(*protocol.Request) (*protocol.Response, error) {
		return protocol.NewResponse(200, []byte(body)), nil
	}
}

// Failing returns a handler that always fails.
func Failing() func(*protocol.Request) (*protocol.Response, error) {
	return func(*protocol.Request) (*protocol.Response, error) {
		return nil, ErrRouterFailure
	}
}
