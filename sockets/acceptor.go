package sockets

import (
	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/reactor"
	"github.com/govoltron/reactor/rlog"
	"golang.org/x/sys/unix"
)

// NewConnectionCallback is invoked with a freshly accepted
// connection's fd and peer address; the callback owns the fd from
// that point on.
type NewConnectionCallback func(connFd int, peerAddr netutil.InetAddress)

// Acceptor owns the listening socket's Channel: it accepts incoming
// connections and hands each fd off via NewConnectionCallback,
// recovering from EMFILE with a spare fd held open against /dev/null.
type Acceptor struct {
	loop       *reactor.EventLoop
	socket     *Socket
	channel    *reactor.Channel
	listening  bool
	idleFD     int

	NewConnectionCallback NewConnectionCallback
}

// NewAcceptor creates a non-blocking listening socket bound to addr.
func NewAcceptor(loop *reactor.EventLoop, addr netutil.InetAddress, reusePort bool) (*Acceptor, error) {
	sock, err := CreateNonblockingOrDie()
	if err != nil {
		return nil, err
	}
	idleFD, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}

	if err := sock.SetReuseAddr(true); err != nil {
		_ = sock.Close()
		_ = unix.Close(idleFD)
		return nil, err
	}
	if err := sock.SetReusePort(reusePort); err != nil {
		_ = sock.Close()
		_ = unix.Close(idleFD)
		return nil, err
	}
	if err := sock.BindAddress(addr); err != nil {
		_ = sock.Close()
		_ = unix.Close(idleFD)
		return nil, err
	}

	a := &Acceptor{
		loop:   loop,
		socket: sock,
		idleFD: idleFD,
	}
	a.channel = reactor.NewChannel(loop, sock.Fd())
	a.channel.ReadCallback = func(netutil.Timestamp) { a.handleRead() }
	return a, nil
}

// Listen begins listening and registers read interest. Must be called
// from the owning loop's own goroutine.
func (a *Acceptor) Listen() error {
	a.loop.AssertInLoopGoroutine()
	a.listening = true
	if err := a.socket.Listen(); err != nil {
		return err
	}
	a.channel.EnableReading()
	return nil
}

// Listening reports whether Listen has been called.
func (a *Acceptor) Listening() bool { return a.listening }

// GetListenAddr returns the address the listening socket is bound to
// (useful when constructed with an ephemeral port).
func (a *Acceptor) GetListenAddr() (netutil.InetAddress, error) {
	return a.socket.GetLocalAddr()
}

// handleRead accepts every connection pending on the listening socket
// until EAGAIN, rather than stopping after one per readiness event,
// and recovers from a full file descriptor table with the spare-fd
// trick muduo uses.
func (a *Acceptor) handleRead() {
	a.loop.AssertInLoopGoroutine()
	for {
		conn, peerAddr, err := Accept(a.socket.Fd())
		if err == nil {
			if a.NewConnectionCallback != nil {
				a.NewConnectionCallback(conn.Fd(), peerAddr)
			} else {
				_ = conn.Close()
			}
			continue
		}

		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EMFILE || err == unix.ENFILE {
			rlog.Errorf("sockets: Acceptor.handleRead: %v (fd table full, recovering)", err)
			_ = unix.Close(a.idleFD)
			connFD, _, _ := unix.Accept(a.socket.Fd())
			_ = unix.Close(connFD)
			a.idleFD, _ = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
			return
		}

		rlog.Errorf("sockets: Acceptor.handleRead: %v", err)
		return
	}
}

// Close releases the listening socket and the spare fd.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	_ = unix.Close(a.idleFD)
	return a.socket.Close()
}
