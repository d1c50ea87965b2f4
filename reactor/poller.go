package reactor

import "github.com/govoltron/reactor/netutil"

// poller is the readiness-multiplexing abstraction: block until at
// least one registered descriptor is ready (or the timeout elapses),
// then hand back the ready Channels with their received masks
// stamped. Two implementations satisfy it: epollPoller (Linux) and
// pollPoller (portable fallback), selected by newPoller via build
// tags so EventLoop itself stays platform-agnostic.
type poller interface {
	// wait blocks for up to timeoutMs milliseconds and appends every
	// ready Channel to activeChannels (reusing its backing array across
	// calls to avoid steady-state allocation).
	wait(timeoutMs int, activeChannels *[]*Channel) (netutil.Timestamp, error)

	// updateChannel registers a new Channel or applies a changed
	// interest mask for one already registered.
	updateChannel(c *Channel)

	// removeChannel deregisters a Channel that currently has no
	// interest (IsNoneEvent() must be true).
	removeChannel(c *Channel)

	// hasChannel reports whether fd is currently tracked by this poller.
	hasChannel(fd int) bool

	// close releases any poller-owned kernel resources (the epoll fd).
	close() error
}
