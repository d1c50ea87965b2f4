//go:build linux

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/rlog"
)

// membership mirrors epoll_ctl's own three states for a registered
// fd: never added, currently added, or added-then-deleted.
type membership int

const (
	membershipNotAdded membership = iota
	membershipAdded
	membershipDeleted
)

type epollEntry struct {
	channel *Channel
	state   membership
}

// epollPoller is the Linux Multiplexer implementation: one epoll
// instance, a descriptor->entry map, and a reusable event buffer that
// only grows when every slot was used in the previous cycle.
type epollPoller struct {
	epfd    int
	entries map[int]*epollEntry
	events  []unix.EpollEvent
}

const initialEpollEventsCap = 16

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:    epfd,
		entries: make(map[int]*epollEntry),
		events:  make([]unix.EpollEvent, initialEpollEventsCap),
	}, nil
}

func toEpollEvents(m EventMask) uint32 {
	var e uint32
	if m&EventRead != 0 {
		e |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if m&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) EventMask {
	var m EventMask
	if e&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		m |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		m |= EventWrite
	}
	if e&unix.EPOLLHUP != 0 && e&unix.EPOLLIN == 0 {
		m |= EventClose
	}
	if e&unix.EPOLLERR != 0 {
		m |= EventError
	}
	return m
}

func (p *epollPoller) wait(timeoutMs int, activeChannels *[]*Channel) (netutil.Timestamp, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := netutil.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		entry, ok := p.entries[fd]
		if !ok {
			continue
		}
		entry.channel.SetRevents(fromEpollEvents(p.events[i].Events))
		*activeChannels = append(*activeChannels, entry.channel)
	}
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now, nil
}

func (p *epollPoller) updateChannel(c *Channel) {
	fd := c.Fd()
	entry, ok := p.entries[fd]
	if !ok {
		if c.IsNoneEvent() {
			return
		}
		ev := unix.EpollEvent{Events: toEpollEvents(c.Events()), Fd: int32(fd)}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			rlog.Errorf("reactor: epoll_ctl ADD fd=%d: %v", fd, err)
			return
		}
		p.entries[fd] = &epollEntry{channel: c, state: membershipAdded}
		return
	}

	switch entry.state {
	case membershipAdded:
		if c.IsNoneEvent() {
			if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
				rlog.Errorf("reactor: epoll_ctl DEL fd=%d: %v", fd, err)
			}
			entry.state = membershipDeleted
			return
		}
		ev := unix.EpollEvent{Events: toEpollEvents(c.Events()), Fd: int32(fd)}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
			rlog.Errorf("reactor: epoll_ctl MOD fd=%d: %v", fd, err)
		}
	case membershipDeleted:
		if c.IsNoneEvent() {
			return
		}
		ev := unix.EpollEvent{Events: toEpollEvents(c.Events()), Fd: int32(fd)}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			rlog.Errorf("reactor: epoll_ctl re-ADD fd=%d: %v", fd, err)
			return
		}
		entry.state = membershipAdded
	}
}

func (p *epollPoller) removeChannel(c *Channel) {
	fd := c.Fd()
	entry, ok := p.entries[fd]
	if !ok {
		return
	}
	if !c.IsNoneEvent() {
		rlog.Warnf("reactor: removeChannel fd=%d called with non-empty interest", fd)
	}
	if entry.state == membershipAdded {
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			rlog.Errorf("reactor: epoll_ctl DEL fd=%d on remove: %v", fd, err)
		}
	}
	delete(p.entries, fd)
}

func (p *epollPoller) hasChannel(fd int) bool {
	_, ok := p.entries[fd]
	return ok
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}
