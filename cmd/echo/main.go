// Command echo is a minimal runnable consumer of the public tcp/reactor
// API: it listens on a port and echoes back whatever it reads, with a
// tunable worker pool size so it can be run single- or multi-threaded.
package main

import (
	"flag"
	"os"

	"github.com/govoltron/reactor/buffer"
	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/reactor"
	"github.com/govoltron/reactor/rlog"
	"github.com/govoltron/reactor/tcp"
)

func main() {
	port := flag.Int("port", 2007, "listen port")
	threads := flag.Int("threads", 0, "I/O worker thread count (0 = main loop only)")
	flag.Parse()

	loop, err := reactor.NewEventLoop()
	if err != nil {
		rlog.Errorf("echo: NewEventLoop: %v", err)
		os.Exit(1)
	}

	addr := netutil.NewInetAddress(uint16(*port), false)
	server := tcp.NewServer(loop, addr, "echo", tcp.WithTCPKeepAlive(true))
	server.SetThreadNum(*threads)

	server.SetConnectionCallback(func(c *tcp.Connection) {
		if c.Connected() {
			rlog.Infof("echo: connection up: %s (%s -> %s)", c.Name(), c.PeerAddress(), c.LocalAddress())
		} else {
			rlog.Infof("echo: connection down: %s", c.Name())
		}
	})
	server.SetMessageCallback(func(c *tcp.Connection, buf *buffer.Buffer, _ netutil.Timestamp) {
		c.Send(buf.RetrieveAsBytes())
	})

	if err := server.Start(); err != nil {
		rlog.Errorf("echo: start: %v", err)
		os.Exit(1)
	}

	rlog.Infof("echo: listening on %s", addr)
	if err := loop.Loop(); err != nil {
		rlog.Errorf("echo: loop: %v", err)
		os.Exit(1)
	}
}
