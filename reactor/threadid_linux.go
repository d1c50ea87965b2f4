//go:build linux

package reactor

import "golang.org/x/sys/unix"

// currentThreadID returns the kernel thread id of the calling OS
// thread. Only meaningful immediately after runtime.LockOSThread(),
// which is exactly how EventLoop.Loop uses it — the Go analogue of
// muduo's CurrentThread::tid() used to assert that loop-only
// operations run on the loop's own thread.
func currentThreadID() int {
	return unix.Gettid()
}
