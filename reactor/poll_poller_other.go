//go:build !linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/rlog"
)

// pollPoller is the portable Multiplexer implementation: a dense
// vector of unix.PollFd entries. A Channel with empty interest is
// "ignored" by negating its fd (stored as the one's-complement)
// rather than removed, so every Channel's recorded vector position
// stays stable across calls.
type pollPoller struct {
	pollfds  []unix.PollFd
	channels []*Channel
	index    map[int]int // fd -> position in pollfds/channels
}

func newPoller() (poller, error) {
	return &pollPoller{index: make(map[int]int)}, nil
}

func toPollEvents(m EventMask) int16 {
	var e int16
	if m&EventRead != 0 {
		e |= unix.POLLIN | unix.POLLPRI
	}
	if m&EventWrite != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func fromPollEvents(e int16) EventMask {
	var m EventMask
	if e&(unix.POLLIN|unix.POLLPRI) != 0 {
		m |= EventRead
	}
	if e&unix.POLLOUT != 0 {
		m |= EventWrite
	}
	if e&unix.POLLHUP != 0 {
		m |= EventClose
	}
	if e&(unix.POLLERR|unix.POLLNVAL) != 0 {
		m |= EventError
	}
	return m
}

func (p *pollPoller) wait(timeoutMs int, activeChannels *[]*Channel) (netutil.Timestamp, error) {
	n, err := unix.Poll(p.pollfds, timeoutMs)
	now := netutil.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, fmt.Errorf("reactor: poll: %w", err)
	}
	if n <= 0 {
		return now, nil
	}
	for i := range p.pollfds {
		if p.pollfds[i].Revents == 0 {
			continue
		}
		if p.pollfds[i].Fd < 0 {
			continue // ignored slot
		}
		c := p.channels[i]
		c.SetRevents(fromPollEvents(p.pollfds[i].Revents))
		*activeChannels = append(*activeChannels, c)
		p.pollfds[i].Revents = 0
	}
	return now, nil
}

func (p *pollPoller) updateChannel(c *Channel) {
	fd := c.Fd()
	if i, ok := p.index[fd]; ok {
		if c.IsNoneEvent() {
			// mark ignored via the negated-fd trick, keep position stable.
			p.pollfds[i].Fd = int32(-fd - 1)
		} else {
			p.pollfds[i].Fd = int32(fd)
			p.pollfds[i].Events = toPollEvents(c.Events())
		}
		return
	}
	if c.IsNoneEvent() {
		return
	}
	p.pollfds = append(p.pollfds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(c.Events())})
	p.channels = append(p.channels, c)
	p.index[fd] = len(p.pollfds) - 1
}

func (p *pollPoller) removeChannel(c *Channel) {
	fd := c.Fd()
	i, ok := p.index[fd]
	if !ok {
		return
	}
	if !c.IsNoneEvent() {
		rlog.Warnf("reactor: removeChannel fd=%d called with non-empty interest", fd)
	}
	last := len(p.pollfds) - 1
	if i != last {
		// swap with the last slot to keep the vector compact,
		// updating the swapped channel's recorded position.
		p.pollfds[i] = p.pollfds[last]
		p.channels[i] = p.channels[last]
		swappedFd := p.channels[i].Fd()
		p.index[swappedFd] = i
	}
	p.pollfds = p.pollfds[:last]
	p.channels = p.channels[:last]
	delete(p.index, fd)
}

func (p *pollPoller) hasChannel(fd int) bool {
	_, ok := p.index[fd]
	return ok
}

func (p *pollPoller) close() error { return nil }
