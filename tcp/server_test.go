package tcp

import (
	"bytes"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/govoltron/reactor/buffer"
	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEchoServer(t *testing.T, opts ...ServerOption) (*Server, *reactor.EventLoop, chan struct{}) {
	t.Helper()
	loop, err := reactor.NewEventLoop()
	require.NoError(t, err)

	addr := netutil.NewInetAddress(0, true)
	server := NewServer(loop, addr, "test-echo", opts...)
	server.SetMessageCallback(func(c *Connection, buf *buffer.Buffer, _ netutil.Timestamp) {
		c.Send(buf.RetrieveAsBytes())
	})
	require.NoError(t, server.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Loop()
	}()

	return server, loop, done
}

// startEchoServerWithThreads is like startEchoServer but lets the
// caller set a worker pool size before Start is called, since
// SetThreadNum must run before Start and startEchoServer always calls
// Start itself.
func startEchoServerWithThreads(t *testing.T, numThreads int) (*Server, *reactor.EventLoop, chan struct{}) {
	t.Helper()
	loop, err := reactor.NewEventLoop()
	require.NoError(t, err)

	addr := netutil.NewInetAddress(0, true)
	server := NewServer(loop, addr, "test-echo-pool")
	server.SetThreadNum(numThreads)
	server.SetMessageCallback(func(c *Connection, buf *buffer.Buffer, _ netutil.Timestamp) {
		c.Send(buf.RetrieveAsBytes())
	})
	require.NoError(t, server.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Loop()
	}()

	return server, loop, done
}

func dialServer(t *testing.T, s *Server) net.Conn {
	t.Helper()
	addr, err := s.acceptor.GetListenAddr()
	require.NoError(t, err)
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	require.NoError(t, err)
	return conn
}

func TestServer_EchoesData(t *testing.T) {
	server, loop, done := startEchoServer(t)
	defer func() {
		loop.Quit()
		<-done
	}()

	conn := dialServer(t, server)
	defer conn.Close()

	const payload = "hello, reactor"
	_, err := conn.Write([]byte(payload))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, len(payload))
	total := 0
	for total < len(payload) {
		n, rerr := conn.Read(buf[total:])
		require.NoError(t, rerr)
		total += n
	}
	assert.True(t, bytes.Equal(buf, []byte(payload)))
}

// TestServer_WorkerPoolHandlesConcurrentConnections exercises the
// SetThreadNum(>0) path: Start() spins up several EventLoopThreads via
// the pool, and newConnection dispatches each accepted socket onto one
// of them round-robin with ioLoop.RunInLoop — the call site that used
// to race against a still-unbound worker loop. Dialing many connections
// concurrently, immediately after Start returns, exercises that window.
func TestServer_WorkerPoolHandlesConcurrentConnections(t *testing.T) {
	const numThreads = 4
	const numConns = 12

	server, loop, done := startEchoServerWithThreads(t, numThreads)
	defer func() {
		loop.Quit()
		<-done
	}()

	addr, err := server.acceptor.GetListenAddr()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, numConns)
	for i := 0; i < numConns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, derr := net.DialTimeout("tcp", addr.String(), 2*time.Second)
			if derr != nil {
				errs <- derr
				return
			}
			defer conn.Close()

			payload := fmt.Sprintf("conn-%d", i)
			if _, err := conn.Write([]byte(payload)); err != nil {
				errs <- err
				return
			}

			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			buf := make([]byte, len(payload))
			total := 0
			for total < len(payload) {
				n, rerr := conn.Read(buf[total:])
				if rerr != nil {
					errs <- rerr
					return
				}
				total += n
			}
			if string(buf) != payload {
				errs <- fmt.Errorf("conn %d: got %q, want %q", i, buf, payload)
			}
		}(i)
	}

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
	case <-time.After(5 * time.Second):
		t.Fatal("not all concurrent connections completed their echo round-trip")
	}

	close(errs)
	for err := range errs {
		t.Errorf("connection error: %v", err)
	}
}

func TestServer_ConnectionCallbackFiresUpAndDown(t *testing.T) {
	loop, err := reactor.NewEventLoop()
	require.NoError(t, err)

	addr := netutil.NewInetAddress(0, true)
	server := NewServer(loop, addr, "test-updown")

	events := make(chan bool, 8)
	server.SetConnectionCallback(func(c *Connection) {
		events <- c.Connected()
	})
	require.NoError(t, server.Start())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Loop()
	}()
	defer func() {
		loop.Quit()
		<-done
	}()

	addrStr, err := server.acceptor.GetListenAddr()
	require.NoError(t, err)
	conn, err := net.DialTimeout("tcp", addrStr.String(), 2*time.Second)
	require.NoError(t, err)

	select {
	case up := <-events:
		assert.True(t, up)
	case <-time.After(2 * time.Second):
		t.Fatal("connection-up callback never fired")
	}

	conn.Close()

	select {
	case up := <-events:
		assert.False(t, up)
	case <-time.After(2 * time.Second):
		t.Fatal("connection-down callback never fired")
	}
}
