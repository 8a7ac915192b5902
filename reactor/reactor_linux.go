//go:build linux

package reactor

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// resolveIPv4 resolves host ("localhost", a hostname, or a dotted-quad) to
// the 4-byte address Listen needs. An empty host binds to all interfaces.
func resolveIPv4(host string) ([4]byte, error) {
	var out [4]byte
	if host == "" {
		return out, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return out, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			copy(out[:], v4)
			return out, nil
		}
	}
	return out, fmt.Errorf("reactor: no IPv4 address found for %q", host)
}

// epollReactor implements Reactor over Linux epoll(7), level-triggered so
// write interest can be toggled per connection instead of spinning on an
// always-writable socket. Every method except Wake must only be called
// from the loop thread.
type epollReactor struct {
	epfd   int
	wakeFD int

	servers map[uintptr]struct{}
	writing map[uintptr]struct{}
}

// New constructs the Linux epoll reactor, including its eventfd-based wake
// descriptor.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wakeFD),
	}); err != nil {
		unix.Close(wakeFD)
		unix.Close(epfd)
		return nil, err
	}
	return &epollReactor{
		epfd:    epfd,
		wakeFD:  wakeFD,
		servers: make(map[uintptr]struct{}),
		writing: make(map[uintptr]struct{}),
	}, nil
}

func (r *epollReactor) Listen(host string, port int) (uintptr, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return 0, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, err
	}
	addr, err := resolveIPv4(host)
	if err != nil {
		unix.Close(fd)
		return 0, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return 0, err
	}
	return uintptr(fd), nil
}

func (r *epollReactor) Accept(fd uintptr) (uintptr, error) {
	connFD, _, err := unix.Accept4(int(fd), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	_ = unix.SetsockoptInt(connFD, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return uintptr(connFD), nil
}

func (r *epollReactor) RegisterServer(fd uintptr) error {
	r.servers[fd] = struct{}{}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	})
}

func (r *epollReactor) RegisterClient(fd uintptr) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	})
}

func (r *epollReactor) EnableWrite(fd uintptr) error {
	r.writing[fd] = struct{}{}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT,
		Fd:     int32(fd),
	})
}

func (r *epollReactor) DisableWrite(fd uintptr) error {
	delete(r.writing, fd)
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	})
}

func (r *epollReactor) Close(fd uintptr) error {
	delete(r.servers, fd)
	delete(r.writing, fd)
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	return unix.Close(int(fd))
}

func (r *epollReactor) Poll(timeoutMs int) ([]ReadyEvent, error) {
	var raw [256]unix.EpollEvent
	n, err := unix.EpollWait(r.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]ReadyEvent, 0, n)
	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)
		if fd == uintptr(r.wakeFD) {
			r.drainWake()
			continue
		}
		var kind EventKind
		if _, isServer := r.servers[fd]; isServer {
			kind |= EventAccept
		} else if raw[i].Events&unix.EPOLLIN != 0 {
			kind |= EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			kind |= EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			kind |= EventError
		}
		out = append(out, ReadyEvent{FD: fd, Kind: kind})
	}
	return out, nil
}

func (r *epollReactor) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(r.wakeFD, buf[:])
}

func (r *epollReactor) Wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(r.wakeFD, buf[:])
	if err == unix.EAGAIN {
		// counter already non-zero; a pending wake is already observable.
		return nil
	}
	return err
}

func (r *epollReactor) Read(fd uintptr, buf []byte) (int, error) {
	n, err := unix.Read(int(fd), buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrPeerClosed
	}
	return n, nil
}

func (r *epollReactor) Write(fd uintptr, buf []byte) (int, error) {
	n, err := unix.Write(int(fd), buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func (r *epollReactor) Shutdown() error {
	_ = unix.Close(r.wakeFD)
	return unix.Close(r.epfd)
}
