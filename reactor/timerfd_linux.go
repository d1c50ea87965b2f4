//go:build linux

package reactor

import (
	"time"

	"github.com/govoltron/reactor/netutil"
	"golang.org/x/sys/unix"
)

// linuxTimerFD backs TimerQueue with a CLOCK_MONOTONIC timerfd, read
// by the owning loop's poller exactly like any other Channel.
type linuxTimerFD struct {
	fd int
}

func newTimerFD() timerFDFactory {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		panic("reactor: timerfd_create: " + err.Error())
	}
	return &linuxTimerFD{fd: fd}
}

func (t *linuxTimerFD) fdNum() int { return t.fd }

// arm sets the descriptor to fire once, after-now, at the given
// Timestamp, floored at minTimerInterval microseconds.
func (t *linuxTimerFD) arm(when netutil.Timestamp) {
	delta := when.Sub(netutil.Now())
	if delta < minTimerInterval*time.Microsecond {
		delta = minTimerInterval * time.Microsecond
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(delta.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		panic("reactor: timerfd_settime: " + err.Error())
	}
}

// drain reads the 8-byte expiration counter so the descriptor goes
// back to not-ready.
func (t *linuxTimerFD) drain() {
	var buf [8]byte
	for {
		_, err := unix.Read(t.fd, buf[:])
		if err == unix.EAGAIN || err == unix.EINTR {
			if err == unix.EINTR {
				continue
			}
			return
		}
		return
	}
}

func (t *linuxTimerFD) close() error {
	return unix.Close(t.fd)
}
