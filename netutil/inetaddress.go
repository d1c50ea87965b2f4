package netutil

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// InetAddress is an IPv4 endpoint: family AF_INET, a 16-bit port and
// a 32-bit address.
type InetAddress struct {
	ip   net.IP
	port uint16
}

// NewInetAddress builds an endpoint listening on all interfaces (or
// loopback, per loopbackOnly) on the given port — the constructor an
// Acceptor uses to bind.
func NewInetAddress(port uint16, loopbackOnly bool) InetAddress {
	if loopbackOnly {
		return InetAddress{ip: net.IPv4(127, 0, 0, 1), port: port}
	}
	return InetAddress{ip: net.IPv4zero, port: port}
}

// ParseInetAddress parses "host:port" into an InetAddress, resolving
// host through net.DefaultResolver — already reentrant/thread-safe in
// the Go runtime, with no hand-rolled scratch buffer required.
func ParseInetAddress(hostport string) (InetAddress, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return InetAddress{}, fmt.Errorf("netutil: invalid address %q: %w", hostport, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return InetAddress{}, fmt.Errorf("netutil: invalid port %q: %w", portStr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
		if err != nil || len(addrs) == 0 {
			return InetAddress{}, fmt.Errorf("netutil: resolve %q: %w", host, err)
		}
		ip = addrs[0].IP
	}
	return InetAddress{ip: ip.To4(), port: uint16(port)}, nil
}

// FromSockaddr converts a raw unix.Sockaddr (as returned by accept)
// into an InetAddress.
func FromSockaddr(sa unix.Sockaddr) InetAddress {
	switch s := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IPv4(s.Addr[0], s.Addr[1], s.Addr[2], s.Addr[3])
		return InetAddress{ip: ip, port: uint16(s.Port)}
	default:
		return InetAddress{}
	}
}

// Sockaddr converts the address back into a unix.Sockaddr suitable
// for bind/connect.
func (a InetAddress) Sockaddr() *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: int(a.port)}
	ip4 := a.ip.To4()
	if ip4 == nil {
		ip4 = net.IPv4zero.To4()
	}
	copy(sa.Addr[:], ip4)
	return sa
}

// IP returns the address' IPv4 component.
func (a InetAddress) IP() net.IP { return a.ip }

// Port returns the 16-bit port in host order.
func (a InetAddress) Port() uint16 { return a.port }

func (a InetAddress) String() string {
	ip := a.ip
	if ip == nil {
		ip = net.IPv4zero
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(a.port)))
}
