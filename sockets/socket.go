// Package sockets wraps the raw, non-blocking socket syscalls the
// reactor core needs: bind/listen/accept4 and the handful of setsockopt
// toggles a TCP server cares about.
package sockets

import (
	"github.com/govoltron/reactor/netutil"
	"golang.org/x/sys/unix"
)

// Socket owns exactly one non-blocking file descriptor. It does not
// retry partial syscalls beyond what the kernel itself guarantees for
// these operations (bind/listen/setsockopt are atomic).
type Socket struct {
	fd int
}

// CreateNonblockingOrDie creates a non-blocking, close-on-exec IPv4
// TCP socket. Mirrors muduo's sockets::createNonblockingOrDie, minus
// the "die": the caller decides how to handle the error.
func CreateNonblockingOrDie() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Socket{fd: fd}, nil
}

// FromFD wraps an already-open, already-non-blocking descriptor (as
// returned by Accept) in a Socket, for callers that received the raw
// fd across a dispatch boundary.
func FromFD(fd int) *Socket { return &Socket{fd: fd} }

// Fd returns the underlying descriptor.
func (s *Socket) Fd() int { return s.fd }

// SetReuseAddr toggles SO_REUSEADDR.
func (s *Socket) SetReuseAddr(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

// SetReusePort toggles SO_REUSEPORT.
func (s *Socket) SetReusePort(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

// SetTCPNoDelay toggles TCP_NODELAY (disabling Nagle's algorithm).
func (s *Socket) SetTCPNoDelay(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// SetKeepAlive toggles SO_KEEPALIVE.
func (s *Socket) SetKeepAlive(on bool) error {
	return unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

// BindAddress binds the socket to addr.
func (s *Socket) BindAddress(addr netutil.InetAddress) error {
	return unix.Bind(s.fd, addr.Sockaddr())
}

// Listen marks the socket as passive, using the kernel's max backlog.
func (s *Socket) Listen() error {
	return unix.Listen(s.fd, unix.SOMAXCONN)
}

// Accept accepts one pending connection, returning its Socket and the
// peer's address. Returns unix.EAGAIN when none is pending — the
// caller (Acceptor) loops on this until the listening socket is
// drained for the current readiness event.
func Accept(listenFd int) (*Socket, netutil.InetAddress, error) {
	connFd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, netutil.InetAddress{}, err
	}
	return &Socket{fd: connFd}, netutil.FromSockaddr(sa), nil
}

// ShutdownWrite half-closes the socket's write side.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// Close closes the descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// GetLocalAddr returns the socket's bound local address.
func (s *Socket) GetLocalAddr() (netutil.InetAddress, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return netutil.InetAddress{}, err
	}
	return netutil.FromSockaddr(sa), nil
}

// GetPeerAddr returns the socket's connected peer address.
func (s *Socket) GetPeerAddr() (netutil.InetAddress, error) {
	sa, err := unix.Getpeername(s.fd)
	if err != nil {
		return netutil.InetAddress{}, err
	}
	return netutil.FromSockaddr(sa), nil
}

// Write writes data to fd directly, for the Connection write path.
func Write(fd int, data []byte) (int, error) {
	return unix.Write(fd, data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
