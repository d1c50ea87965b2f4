package tcp

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/reactor"
	"github.com/govoltron/reactor/rlog"
	"github.com/govoltron/reactor/sockets"
	"github.com/govoltron/reactor/syncx"
)

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithReusePort toggles SO_REUSEPORT on the listening socket, letting
// multiple processes share one port.
func WithReusePort(on bool) ServerOption {
	return func(s *Server) { s.reusePort = on }
}

// WithTCPKeepAlive toggles SO_KEEPALIVE on every accepted connection.
func WithTCPKeepAlive(on bool) ServerOption {
	return func(s *Server) { s.tcpKeepAlive = on }
}

// WithHighWaterMark overrides the default 64 MiB high-water mark
// applied to every accepted connection's output buffer.
func WithHighWaterMark(bytes int) ServerOption {
	return func(s *Server) { s.highWaterMark = bytes }
}

// Server owns the listening Acceptor on its main loop and a
// reactor.EventLoopThreadPool of worker loops, dispatching each newly
// accepted connection to one worker round-robin, and keeps a registry
// that holds every live connection until its close path removes it.
type Server struct {
	loop     *reactor.EventLoop
	addr     netutil.InetAddress
	name     string
	acceptor *sockets.Acceptor
	pool     *reactor.EventLoopThreadPool

	reusePort     bool
	tcpKeepAlive  bool
	highWaterMark int
	numThreads    int

	mu          sync.Mutex
	connections map[string]*Connection
	nextConnID  syncx.AtomicInt32
	started     syncx.AtomicInt32

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	threadInitCallback    func(*reactor.EventLoop)
}

// NewServer constructs a Server bound to mainLoop, listening at addr
// once Start is called. mainLoop also runs the Acceptor and, absent
// SetThreadNum, every connection's I/O.
func NewServer(mainLoop *reactor.EventLoop, addr netutil.InetAddress, name string, opts ...ServerOption) *Server {
	s := &Server{
		loop:          mainLoop,
		addr:          addr,
		name:          name,
		highWaterMark: defaultHighWaterMark,
		connections:   make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pool = reactor.NewEventLoopThreadPool(mainLoop)

	acceptor, err := sockets.NewAcceptor(mainLoop, addr, s.reusePort)
	if err != nil {
		panic(fmt.Sprintf("tcp: NewServer: %v", err))
	}
	acceptor.NewConnectionCallback = s.newConnection
	s.acceptor = acceptor
	return s
}

// SetThreadNum sets the size of the I/O worker pool. Must be called
// before Start. 0 (the default) means all I/O runs on mainLoop.
func (s *Server) SetThreadNum(n int) { s.numThreads = n }

// SetThreadInitCallback arms a hook run on each worker loop's own
// goroutine just before it starts serving.
func (s *Server) SetThreadInitCallback(cb func(*reactor.EventLoop)) { s.threadInitCallback = cb }

// SetConnectionCallback arms the connection-established/torn-down hook.
func (s *Server) SetConnectionCallback(cb ConnectionCallback) { s.connectionCallback = cb }

// SetMessageCallback arms the data-received hook.
func (s *Server) SetMessageCallback(cb MessageCallback) { s.messageCallback = cb }

// SetWriteCompleteCallback arms the output-buffer-drained hook.
func (s *Server) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.writeCompleteCallback = cb }

// Start spins up the worker pool (if any) and begins listening. Safe
// to call more than once; only the first call has any effect.
func (s *Server) Start() error {
	if s.started.Swap(1) == 1 {
		return nil
	}
	if err := s.pool.Start(s.numThreads, s.threadInitCallback); err != nil {
		return err
	}

	s.loop.RunInLoop(func() {
		if err := s.acceptor.Listen(); err != nil {
			rlog.Errorf("tcp: Server %s: listen: %v", s.name, err)
		}
	})
	return nil
}

// newConnection is the Acceptor's callback: always runs on the main
// loop's own goroutine. It picks a worker loop, constructs the
// Connection on it and wires up the internal close path.
func (s *Server) newConnection(connFD int, peerAddr netutil.InetAddress) {
	s.loop.AssertInLoopGoroutine()
	ioLoop := s.pool.GetNextLoop()

	id := s.nextConnID.Add(1)
	connName := fmt.Sprintf("%s-%s-#%d", s.name, uuid.NewString()[:8], id)

	sock := sockets.FromFD(connFD)
	localAddr, err := sock.GetLocalAddr()
	if err != nil {
		rlog.Errorf("tcp: Server %s: getsockname: %v", s.name, err)
	}

	ioLoop.RunInLoop(func() {
		conn := newConnection(ioLoop, connName, sock, localAddr, peerAddr)
		if s.tcpKeepAlive {
			_ = conn.socket.SetKeepAlive(true)
		}
		conn.highWaterMark = s.highWaterMark
		conn.setConnectionCallback(s.connectionCallback)
		conn.setMessageCallback(s.messageCallback)
		conn.setWriteCompleteCallback(s.writeCompleteCallback)
		conn.setCloseCallback(s.removeConnection)

		s.mu.Lock()
		s.connections[connName] = conn
		s.mu.Unlock()

		conn.connectEstablished()
	})
}

// removeConnection is Connection's internal closeCallback: it may run
// on any worker loop, and marshals the registry removal onto the main
// loop. Insertions happen on the worker loop in newConnection, so the
// connections map is touched from several goroutines, always under mu.
// connectDestroyed is queued on the connection's loop, never run
// inline, because this runs from inside the connection's own
// Channel.HandleEvent.
func (s *Server) removeConnection(conn *Connection) {
	s.loop.RunInLoop(func() {
		s.mu.Lock()
		delete(s.connections, conn.Name())
		s.mu.Unlock()
		conn.Loop().Post(func() { conn.connectDestroyed() })
	})
}
