package reactor

import "github.com/govoltron/reactor/netutil"

// TimerID identifies a scheduled timer for later cancellation. It is
// the sequence number assigned at creation, monotonically increasing
// process-wide — unique enough to double as the secondary, insertion-
// order sort key when two timers share an expiry.
type TimerID int64

// Timer is one scheduled callback.
type Timer struct {
	id       TimerID
	callback func()
	expiry   netutil.Timestamp
	interval float64 // seconds; zero means non-repeating
	repeat   bool
}

func (t *Timer) restart(now netutil.Timestamp) {
	if t.repeat {
		t.expiry = now.Add(t.interval)
	} else {
		t.expiry = netutil.Invalid
	}
}
