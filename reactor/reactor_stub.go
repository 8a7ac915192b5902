//go:build !linux && !windows

package reactor

// New returns ErrUnsupportedPlatform: this core has no readiness
// multiplexer for platforms other than Linux (epoll) and Windows (IOCP).
func New() (Reactor, error) {
	return nil, ErrUnsupportedPlatform
}
