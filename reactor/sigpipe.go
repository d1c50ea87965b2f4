package reactor

import (
	"os/signal"
	"syscall"
)

// Writing to a socket whose peer has already reset the connection
// raises SIGPIPE on the second write (the first gets an RST); left at
// its default disposition that kills the process, so every socket
// write path would need defensive handling instead of just checking
// the returned EPIPE. Ignored once, process-wide, at package init,
// exactly as muduo's EventLoop.cc does with its file-scope
// IgnoreSigPipe global.
func init() {
	signal.Ignore(syscall.SIGPIPE)
}
