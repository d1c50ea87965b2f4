//go:build !linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// wakeupFD falls back to a self-pipe on platforms without eventfd:
// the read end is registered with the poller, the write end is
// written to by wake(). Functionally equivalent to the Linux eventfd
// path, just one extra descriptor.
type wakeupFD struct {
	readFD  int
	writeFD int
}

func newWakeupFD() (*wakeupFD, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("reactor: pipe2: %w", err)
	}
	return &wakeupFD{readFD: fds[0], writeFD: fds[1]}, nil
}

func (w *wakeupFD) fdNum() int { return w.readFD }

func (w *wakeupFD) wake() {
	_, _ = unix.Write(w.writeFD, []byte{1})
}

func (w *wakeupFD) consume() {
	var buf [256]byte
	for {
		n, err := unix.Read(w.readFD, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (w *wakeupFD) close() error {
	_ = unix.Close(w.writeFD)
	return unix.Close(w.readFD)
}
