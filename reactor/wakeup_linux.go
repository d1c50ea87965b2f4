//go:build linux

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// wakeupFD is the EventLoop's cross-thread signalling primitive: a
// descriptor that becomes readable whenever woken, read by the
// loop's own Channel in read mode. Linux backs it with eventfd, an
// 8-byte kernel counter — the same mechanism muduo itself uses.
type wakeupFD struct {
	fd int
}

func newWakeupFD() (*wakeupFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	return &wakeupFD{fd: fd}, nil
}

func (w *wakeupFD) fdNum() int { return w.fd }

// wake writes one 8-byte counter increment, making fd readable.
func (w *wakeupFD) wake() {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(w.fd, buf[:])
}

// consume drains the 8-byte counter so the descriptor stops being
// readable until the next wake.
func (w *wakeupFD) consume() {
	var buf [8]byte
	_, _ = unix.Read(w.fd, buf[:])
}

func (w *wakeupFD) close() error {
	return unix.Close(w.fd)
}
