//go:build !linux

package reactor

import (
	"sync"
	"time"

	"github.com/govoltron/reactor/netutil"
	"golang.org/x/sys/unix"
)

// portableTimerFD emulates a Linux timerfd with a self-pipe plus a
// goroutine-driven time.Timer: arm restarts the timer, and its firing
// writes a byte to the pipe so the owning loop's poller observes it as
// an ordinary read-ready Channel, exactly like the real descriptor.
type portableTimerFD struct {
	readFD, writeFD int

	mu    sync.Mutex
	timer *time.Timer
}

func newTimerFD() timerFDFactory {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		panic("reactor: pipe2: " + err.Error())
	}
	return &portableTimerFD{readFD: fds[0], writeFD: fds[1]}
}

func (t *portableTimerFD) fdNum() int { return t.readFD }

func (t *portableTimerFD) arm(when netutil.Timestamp) {
	delta := when.Sub(netutil.Now())
	if delta < minTimerInterval*time.Microsecond {
		delta = minTimerInterval * time.Microsecond
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(delta, func() {
		_, _ = unix.Write(t.writeFD, []byte{1})
	})
}

func (t *portableTimerFD) drain() {
	var buf [64]byte
	for {
		_, err := unix.Read(t.readFD, buf[:])
		if err != nil {
			return
		}
	}
}

func (t *portableTimerFD) close() error {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
	_ = unix.Close(t.writeFD)
	return unix.Close(t.readFD)
}
