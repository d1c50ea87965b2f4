package tcp

import (
	"time"

	"github.com/govoltron/reactor/buffer"
	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/reactor"
	"github.com/govoltron/reactor/rlog"
	"github.com/govoltron/reactor/sockets"
	"github.com/govoltron/reactor/syncx"
	"golang.org/x/sys/unix"
)

// connState is a Connection's lifecycle state.
type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

// defaultHighWaterMark is the default output-buffer size (in bytes)
// at which HighWaterMarkCallback fires.
const defaultHighWaterMark = 64 * 1024 * 1024

// Connection is one established TCP connection: its I/O buffers, its
// state machine (connecting→connected→disconnecting→disconnected),
// and the four user callback slots. All mutating methods except Send/
// SendBuffer/Shutdown/ForceClose* (which may be called from any
// goroutine and marshal themselves onto the owning loop) must run on
// the owning EventLoop's own goroutine.
type Connection struct {
	loop   *reactor.EventLoop
	name   string
	socket *sockets.Socket
	channel *reactor.Channel

	localAddr netutil.InetAddress
	peerAddr  netutil.InetAddress

	state     syncx.AtomicInt32
	destroyed bool // loop-thread-only; guards the Tie weak-reference

	inputBuffer  *buffer.Buffer
	outputBuffer *buffer.Buffer

	highWaterMark int

	context any

	connectionCallback     ConnectionCallback
	messageCallback        MessageCallback
	writeCompleteCallback  WriteCompleteCallback
	highWaterMarkCallback  HighWaterMarkCallback
	closeCallback          func(*Connection) // internal: notifies Server to drop the connection from its registry
}

// newConnection wraps an already-accepted, already-non-blocking
// socket. Only Server constructs these.
func newConnection(loop *reactor.EventLoop, name string, sock *sockets.Socket, localAddr, peerAddr netutil.InetAddress) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		socket:        sock,
		localAddr:     localAddr,
		peerAddr:      peerAddr,
		inputBuffer:   buffer.New(),
		outputBuffer:  buffer.New(),
		highWaterMark: defaultHighWaterMark,
	}
	c.state.Store(int32(stateConnecting))

	c.channel = reactor.NewChannel(loop, sock.Fd())
	c.channel.ReadCallback = func(t netutil.Timestamp) { c.handleRead(t) }
	c.channel.WriteCallback = func() { c.handleWrite() }
	c.channel.CloseCallback = func() { c.handleClose() }
	c.channel.ErrorCallback = func() { c.handleError() }
	c.channel.Tie(func() (interface{}, bool) { return c, !c.destroyed })
	return c
}

// Name returns the connection's registry key.
func (c *Connection) Name() string { return c.name }

// Loop returns the owning EventLoop.
func (c *Connection) Loop() *reactor.EventLoop { return c.loop }

// LocalAddress returns the connection's local endpoint.
func (c *Connection) LocalAddress() netutil.InetAddress { return c.localAddr }

// PeerAddress returns the connection's peer endpoint.
func (c *Connection) PeerAddress() netutil.InetAddress { return c.peerAddr }

// Connected reports whether the connection is in the kConnected state.
func (c *Connection) Connected() bool {
	return connState(c.state.Load()) == stateConnected
}

// InputBuffer returns the connection's input buffer (advanced
// interface, read by MessageCallback implementations that need to
// consume less than what was delivered).
func (c *Connection) InputBuffer() *buffer.Buffer { return c.inputBuffer }

// OutputBuffer returns the connection's output buffer.
func (c *Connection) OutputBuffer() *buffer.Buffer { return c.outputBuffer }

// SetContext attaches an arbitrary value to the connection.
func (c *Connection) SetContext(ctx any) { c.context = ctx }

// Context returns the previously attached value, or nil.
func (c *Connection) Context() any { return c.context }

func (c *Connection) setConnectionCallback(cb ConnectionCallback)         { c.connectionCallback = cb }
func (c *Connection) setMessageCallback(cb MessageCallback)               { c.messageCallback = cb }
func (c *Connection) setWriteCompleteCallback(cb WriteCompleteCallback)   { c.writeCompleteCallback = cb }
func (c *Connection) setCloseCallback(cb func(*Connection))               { c.closeCallback = cb }

// SetHighWaterMarkCallback arms cb to fire whenever a Send takes the
// output buffer's queued bytes from below bytes to at or above it.
func (c *Connection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, bytes int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = bytes
}

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket.
func (c *Connection) SetTCPNoDelay(on bool) error {
	return c.socket.SetTCPNoDelay(on)
}

// connectEstablished must be called exactly once, from the owning
// loop, right after construction: it flips the state to connected,
// registers read interest and fires ConnectionCallback.
func (c *Connection) connectEstablished() {
	c.loop.AssertInLoopGoroutine()
	c.state.Store(int32(stateConnected))
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// connectDestroyed must be called exactly once, from the owning loop,
// after the Server has removed the connection from its registry.
func (c *Connection) connectDestroyed() {
	c.loop.AssertInLoopGoroutine()
	if connState(c.state.Load()) == stateConnected {
		c.state.Store(int32(stateDisconnected))
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.channel.Remove()
	c.destroyed = true
}

// Send queues data for writing, never blocking the caller. Thread-safe.
func (c *Connection) Send(data []byte) {
	if connState(c.state.Load()) != stateConnected {
		return
	}
	cp := append([]byte(nil), data...)
	if c.loop.IsInLoopGoroutine() {
		c.sendInLoop(cp)
	} else {
		c.loop.RunInLoop(func() { c.sendInLoop(cp) })
	}
}

// SendBuffer queues the entirety of buf's readable bytes for writing
// and resets buf, mirroring muduo's send(Buffer*) "swap data" overload.
func (c *Connection) SendBuffer(buf *buffer.Buffer) {
	data := buf.RetrieveAsBytes()
	c.Send(data)
}

func (c *Connection) sendInLoop(data []byte) {
	c.loop.AssertInLoopGoroutine()
	if connState(c.state.Load()) == stateDisconnected {
		rlog.Warnf("tcp: Connection %s: give up writing, already disconnected", c.name)
		return
	}

	var written int
	remaining := len(data)
	faultError := false

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := sockets.Write(c.socket.Fd(), data)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				faultError = true
				if err == unix.EPIPE || err == unix.ECONNRESET {
					rlog.Errorf("tcp: Connection %s: write: %v", c.name, err)
				}
			}
			n = 0
		}
		written = n
		remaining = len(data) - n
		if remaining == 0 && c.writeCompleteCallback != nil {
			c.loop.RunInLoop(func() { c.writeCompleteCallback(c) })
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.outputBuffer.ReadableBytes()
		if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
			total := oldLen + remaining
			c.loop.RunInLoop(func() { c.highWaterMarkCallback(c, total) })
		}
		c.outputBuffer.Append(data[written:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// handleRead drains the socket into the input buffer and dispatches
// MessageCallback, or tears the connection down on EOF/error.
func (c *Connection) handleRead(receiveTime netutil.Timestamp) {
	c.loop.AssertInLoopGoroutine()
	n, err := c.inputBuffer.ReadFromFD(c.socket.Fd())
	switch {
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0 && err == nil:
		c.handleClose()
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		// spurious wakeup, nothing to do
	default:
		rlog.Errorf("tcp: Connection %s: read: %v", c.name, err)
		c.handleError()
	}
}

// handleWrite drains the output buffer to the kernel; once fully
// drained it disables write interest, fires WriteCompleteCallback and
// completes a pending Shutdown if one was requested mid-write.
func (c *Connection) handleWrite() {
	c.loop.AssertInLoopGoroutine()
	if !c.channel.IsWriting() {
		return
	}
	n, err := sockets.Write(c.socket.Fd(), c.outputBuffer.Peek())
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			rlog.Errorf("tcp: Connection %s: write: %v", c.name, err)
		}
		return
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			c.writeCompleteCallback(c)
		}
		if connState(c.state.Load()) == stateDisconnecting {
			_ = c.socket.ShutdownWrite()
		}
	}
}

// handleClose tears down the connection's channel and hands it back
// to the owning Server via closeCallback, exactly once.
func (c *Connection) handleClose() {
	c.loop.AssertInLoopGoroutine()
	if connState(c.state.Load()) == stateDisconnected {
		return
	}
	c.state.Store(int32(stateDisconnected))
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *Connection) handleError() {
	rlog.Errorf("tcp: Connection %s: socket error", c.name)
}

// Shutdown half-closes the connection's write side once any queued
// output has drained. Not thread-safe with a concurrent Shutdown call
// on the same Connection.
func (c *Connection) Shutdown() {
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *Connection) shutdownInLoop() {
	c.loop.AssertInLoopGoroutine()
	if connState(c.state.Load()) != stateConnected {
		return
	}
	if !c.channel.IsWriting() {
		_ = c.socket.ShutdownWrite()
	}
	c.state.Store(int32(stateDisconnecting))
}

// ForceClose tears the connection down immediately, regardless of
// queued output.
func (c *Connection) ForceClose() {
	st := connState(c.state.Load())
	if st == stateConnected || st == stateDisconnecting {
		c.state.Store(int32(stateDisconnecting))
		c.loop.RunInLoop(func() { c.forceCloseInLoop() })
	}
}

// ForceCloseWithDelay tears the connection down after d, unless it has
// already been destroyed by then (guarded by the Tie-style destroyed
// flag, never resurrecting a connection the registry has already
// dropped).
func (c *Connection) ForceCloseWithDelay(d time.Duration) {
	c.loop.RunAfter(d, func() {
		if !c.destroyed {
			c.ForceClose()
		}
	})
}

func (c *Connection) forceCloseInLoop() {
	c.loop.AssertInLoopGoroutine()
	st := connState(c.state.Load())
	if st == stateConnected || st == stateDisconnecting {
		c.handleClose()
	}
}
