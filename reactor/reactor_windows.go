//go:build windows

package reactor

import (
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/windows"
)

// iocpReactor implements Reactor over a Windows I/O completion port. Sockets
// are associated with the port with a per-fd completion key; Poll surfaces
// one ReadyEvent per completion, keyed back to the fd via fdByKey. Reads
// and writes are plain non-blocking Winsock calls on the handle rather than
// overlapped operations, keeping the same readiness-driven shape the epoll
// reactor gives the rest of the core.
type iocpReactor struct {
	port windows.Handle

	mu       sync.Mutex
	fdByKey  map[uint32]uintptr
	keyByFD  map[uintptr]uint32
	servers  map[uintptr]struct{}
	nextKey  uint32
	wakeOnce atomic.Bool
}

const wakeCompletionKey = ^uint32(0)

// New constructs the Windows IOCP reactor.
func New() (Reactor, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &iocpReactor{
		port:    port,
		fdByKey: make(map[uint32]uintptr),
		keyByFD: make(map[uintptr]uint32),
		servers: make(map[uintptr]struct{}),
	}, nil
}

func (r *iocpReactor) associate(fd uintptr) (uint32, error) {
	r.mu.Lock()
	r.nextKey++
	key := r.nextKey
	r.mu.Unlock()

	handle := windows.Handle(fd)
	if _, err := windows.CreateIoCompletionPort(handle, r.port, uintptr(key), 0); err != nil {
		return 0, err
	}
	if err := windows.SetNonblock(windows.Handle(fd), true); err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.fdByKey[key] = fd
	r.keyByFD[fd] = key
	r.mu.Unlock()
	return key, nil
}

func (r *iocpReactor) Listen(host string, port int) (uintptr, error) {
	fd, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return 0, err
	}
	addr, err := resolveIPv4(host)
	if err != nil {
		windows.Closesocket(fd)
		return 0, err
	}
	sa := &windows.SockaddrInet4{Port: port, Addr: addr}
	if err := windows.Bind(fd, sa); err != nil {
		windows.Closesocket(fd)
		return 0, err
	}
	if err := windows.Listen(fd, windows.SOMAXCONN); err != nil {
		windows.Closesocket(fd)
		return 0, err
	}
	if err := windows.SetNonblock(fd, true); err != nil {
		windows.Closesocket(fd)
		return 0, err
	}
	return uintptr(fd), nil
}

func (r *iocpReactor) Accept(fd uintptr) (uintptr, error) {
	connFD, _, err := windows.Accept(windows.Handle(fd))
	if err != nil {
		if err == windows.WSAEWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if err := windows.SetNonblock(connFD, true); err != nil {
		windows.Closesocket(connFD)
		return 0, err
	}
	return uintptr(connFD), nil
}

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
	return out, err
}

func (r *iocpReactor) RegisterServer(fd uintptr) error {
	if _, err := r.associate(fd); err != nil {
		return err
	}
	r.mu.Lock()
	r.servers[fd] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *iocpReactor) RegisterClient(fd uintptr) error {
	_, err := r.associate(fd)
	return err
}

// EnableWrite and DisableWrite are no-ops: this reactor's Poll loop issues a
// synchronous, non-blocking write attempt on every iteration regardless of
// interest, so there is no separate write-readiness bit to arm on Windows.
func (r *iocpReactor) EnableWrite(fd uintptr) error  { return nil }
func (r *iocpReactor) DisableWrite(fd uintptr) error { return nil }

func (r *iocpReactor) Close(fd uintptr) error {
	r.mu.Lock()
	if key, ok := r.keyByFD[fd]; ok {
		delete(r.keyByFD, fd)
		delete(r.fdByKey, key)
	}
	delete(r.servers, fd)
	r.mu.Unlock()
	return windows.Closesocket(windows.Handle(fd))
}

func (r *iocpReactor) Poll(timeoutMs int) ([]ReadyEvent, error) {
	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped

	timeout := uint32(windows.INFINITE)
	if timeoutMs >= 0 {
		timeout = uint32(timeoutMs)
	}

	err := windows.GetQueuedCompletionStatus(r.port, &bytes, &key, &overlapped, timeout)
	if err != nil {
		if err == windows.WAIT_TIMEOUT {
			return nil, nil
		}
		return nil, err
	}
	if uint32(key) == wakeCompletionKey {
		return nil, nil
	}

	r.mu.Lock()
	fd, ok := r.fdByKey[uint32(key)]
	_, isServer := r.servers[fd]
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}
	kind := EventRead
	if isServer {
		kind = EventAccept
	}
	return []ReadyEvent{{FD: fd, Kind: kind}}, nil
}

func (r *iocpReactor) Wake() error {
	return windows.PostQueuedCompletionStatus(r.port, 0, uintptr(wakeCompletionKey), nil)
}

func (r *iocpReactor) Read(fd uintptr, buf []byte) (int, error) {
	n, err := windows.Recv(windows.Handle(fd), buf, 0)
	if err != nil {
		if err == windows.WSAEWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	if n == 0 {
		return 0, ErrPeerClosed
	}
	return n, nil
}

func (r *iocpReactor) Write(fd uintptr, buf []byte) (int, error) {
	n, err := windows.Send(windows.Handle(fd), buf, 0)
	if err != nil {
		if err == windows.WSAEWOULDBLOCK {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

func (r *iocpReactor) Shutdown() error {
	return windows.CloseHandle(r.port)
}
