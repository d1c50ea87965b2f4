// Package reactor implements the event-loop core: Channel (one
// descriptor's interest/received masks and callbacks), the poller
// (Multiplexer) abstraction over epoll/poll, EventLoop, and the
// TimerQueue built on top of them. They are kept in one package
// because of the mutual coupling between EventLoop, Channel and
// TimerQueue: EventLoop owns a TimerQueue and a set of Channels, and
// TimerQueue in turn registers its own Channel back onto the owning
// EventLoop — splitting them across packages would force an import
// cycle.
package reactor

import (
	"github.com/govoltron/reactor/netutil"
)

// EventMask is the reactor's own abstract interest/received bitmask,
// translated to the native epoll/poll constants inside each poller
// implementation so that Channel itself has no build tags.
type EventMask uint32

const (
	EventNone  EventMask = 0
	EventRead  EventMask = 1 << 0
	EventWrite EventMask = 1 << 1
	// EventError/EventClose are only ever part of the *received* mask
	// (the kernel doesn't let you request them), surfaced by the
	// poller implementations when epoll reports EPOLLERR/EPOLLHUP or
	// poll reports POLLERR/POLLHUP.
	EventError EventMask = 1 << 2
	EventClose EventMask = 1 << 3
)

// pollerIndex sentinel meaning "not yet registered with any poller".
const indexNew = -1

// Channel binds one descriptor to its owning EventLoop, an interest
// mask, a received mask and the four user callbacks. It does not own
// fd: closing fd is always the responsibility of whatever higher-level
// object constructed the Channel (EventLoop for the wakeup fd,
// TimerQueue for the timer fd, Acceptor for the listening fd,
// Connection's socket for a connected fd).
type Channel struct {
	loop   *EventLoop
	fd     int
	events EventMask
	revents EventMask
	index  int // position bookkeeping, meaning is poller-specific

	tied           bool
	tie            func() (interface{}, bool)
	eventHandling  bool
	addedToLoop    bool

	ReadCallback  func(receiveTime netutil.Timestamp)
	WriteCallback func()
	CloseCallback func()
	ErrorCallback func()
}

// NewChannel creates a Channel bound to loop for descriptor fd. The
// Channel starts with an empty interest mask; the caller must call
// EnableReading/EnableWriting to register interest.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: indexNew}
}

// Fd returns the underlying descriptor.
func (c *Channel) Fd() int { return c.fd }

// Loop returns the owning EventLoop.
func (c *Channel) Loop() *EventLoop { return c.loop }

// Events returns the current interest mask.
func (c *Channel) Events() EventMask { return c.events }

// SetRevents is called by the poller after a readiness wait to stamp
// the received mask prior to dispatch.
func (c *Channel) SetRevents(r EventMask) { c.revents = r }

// Index/SetIndex are a spare bookkeeping slot for a poller. Neither
// built-in poller uses it: both keep their own fd-keyed maps.
func (c *Channel) Index() int        { return c.index }
func (c *Channel) SetIndex(i int)    { c.index = i }

// IsNoneEvent reports whether the Channel currently has no interest
// registered; such a Channel must not be retained in the poller's
// active scan set.
func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

// IsWriting reports whether write-readiness is currently of interest.
func (c *Channel) IsWriting() bool { return c.events&EventWrite != 0 }

// IsReading reports whether read-readiness is currently of interest.
func (c *Channel) IsReading() bool { return c.events&EventRead != 0 }

// EnableReading adds read interest and pushes the update to the poller.
func (c *Channel) EnableReading() {
	c.events |= EventRead
	c.update()
}

// DisableReading removes read interest.
func (c *Channel) DisableReading() {
	c.events &^= EventRead
	c.update()
}

// EnableWriting adds write interest and pushes the update to the poller.
func (c *Channel) EnableWriting() {
	c.events |= EventWrite
	c.update()
}

// DisableWriting removes write interest.
func (c *Channel) DisableWriting() {
	c.events &^= EventWrite
	c.update()
}

// DisableAll clears all interest, making the Channel eligible for removal.
func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

func (c *Channel) update() {
	c.addedToLoop = true
	c.loop.updateChannel(c)
}

// Remove detaches the Channel from its loop's poller. The caller must
// have already disabled all interest (DisableAll) and must not call
// this from inside the Channel's own HandleEvent.
func (c *Channel) Remove() {
	c.addedToLoop = false
	c.loop.removeChannel(c)
}

// IsAddedToLoop reports whether Remove has not yet been called since
// the last update — used by EventLoop's shutdown-ordering assertions.
func (c *Channel) IsAddedToLoop() bool { return c.addedToLoop }

// Tie arms a weak back-reference to owner: HandleEvent will invoke
// owner's returned closure before dispatching, which is how
// Connection pins itself alive for the duration of a callback without
// the Channel itself holding a strong reference.
func (c *Channel) Tie(owner func() (interface{}, bool)) {
	c.tie = owner
	c.tied = true
}

// HandleEvent dispatches the current received mask to the
// appropriate user callback(s). If tied, the owner's weak reference
// is upgraded first; a dead owner silently skips dispatch (the
// Connection has already been destroyed).
func (c *Channel) HandleEvent(receiveTime netutil.Timestamp) {
	if c.tied {
		if _, alive := c.tie(); !alive {
			return
		}
	}
	c.eventHandling = true
	defer func() { c.eventHandling = false }()
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime netutil.Timestamp) {
	if c.revents&EventClose != 0 && c.revents&EventRead == 0 {
		if c.CloseCallback != nil {
			c.CloseCallback()
		}
	}
	if c.revents&EventError != 0 {
		if c.ErrorCallback != nil {
			c.ErrorCallback()
		}
	}
	if c.revents&EventRead != 0 {
		if c.ReadCallback != nil {
			c.ReadCallback(receiveTime)
		}
	}
	if c.revents&EventWrite != 0 {
		if c.WriteCallback != nil {
			c.WriteCallback()
		}
	}
}

// IsHandlingEvent reports whether HandleEvent is currently on the
// call stack for this Channel — used by destructors to assert that a
// Channel is never torn down while its own event dispatch is still in
// progress.
func (c *Channel) IsHandlingEvent() bool { return c.eventHandling }
