package sockets

import (
	"net"
	"testing"
	"time"

	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptor_AcceptsConnection(t *testing.T) {
	loop, err := reactor.NewEventLoop()
	require.NoError(t, err)

	addr := netutil.NewInetAddress(0, true)
	acceptor, err := NewAcceptor(loop, addr, false)
	require.NoError(t, err)

	acceptedCh := make(chan netutil.InetAddress, 1)
	acceptor.NewConnectionCallback = func(connFD int, peerAddr netutil.InetAddress) {
		acceptedCh <- peerAddr
		_ = unixCloseSilently(connFD)
	}

	require.NoError(t, acceptor.Listen())

	boundAddr, err := acceptor.socket.GetLocalAddr()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Loop()
	}()

	conn, err := net.DialTimeout("tcp", boundAddr.String(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case peer := <-acceptedCh:
		assert.True(t, peer.Port() != 0)
	case <-time.After(2 * time.Second):
		t.Fatal("connection was never accepted")
	}

	loop.Quit()
	<-done
	_ = acceptor.Close()
	_ = loop.Close()
}

func unixCloseSilently(fd int) error {
	sock := FromFD(fd)
	return sock.Close()
}
