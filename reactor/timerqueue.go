package reactor

import (
	"sort"

	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/rlog"
	"github.com/govoltron/reactor/syncx"
)

// minTimerInterval is the floor muduo itself applies when arming the
// kernel timer descriptor, to avoid a busy-fire loop on a near-zero
// or negative delay.
const minTimerInterval = 100 // microseconds

var timerSequence = syncx.NewAtomicInt64(0)

// timerFDFactory backs TimerQueue's kernel timer descriptor: timerfd
// on Linux (timerfd_linux.go), a goroutine-driven self-pipe elsewhere
// (timerfd_other.go).
type timerFDFactory interface {
	fdNum() int
	arm(when netutil.Timestamp)
	drain()
	close() error
}

// TimerQueue is an ordered set of Timers keyed by (expiration,
// sequence id) plus a secondary index that finds a timer by id in
// O(1) on average; cancelling then removes it from the sorted slice
// with a linear scan. It is backed by a kernel timer descriptor registered with
// the owning EventLoop. All mutation happens on the owning loop's
// thread; addTimer/cancel called from other threads are marshalled
// there via EventLoop.RunInLoop.
type TimerQueue struct {
	loop    *EventLoop
	fd      timerFDFactory
	channel *Channel

	// timers, kept sorted by (expiry, id).
	timers []*Timer
	index  map[TimerID]*Timer

	callbacksInProgress bool
	cancellingInFiring  map[TimerID]struct{}
}

func newTimerQueue(loop *EventLoop) *TimerQueue {
	q := &TimerQueue{
		loop:               loop,
		fd:                 newTimerFD(),
		index:              make(map[TimerID]*Timer),
		cancellingInFiring: make(map[TimerID]struct{}),
	}
	q.channel = NewChannel(loop, q.fd.fdNum())
	q.channel.ReadCallback = func(netutil.Timestamp) { q.handleRead() }
	q.channel.EnableReading()
	return q
}

// addTimer allocates a TimerID immediately (safe from any thread) and
// marshals the actual insertion onto the owning loop.
func (q *TimerQueue) addTimer(cb func(), when netutil.Timestamp, intervalSeconds float64) TimerID {
	id := TimerID(timerSequence.Add(1))
	t := &Timer{
		id:       id,
		callback: cb,
		expiry:   when,
		interval: intervalSeconds,
		repeat:   intervalSeconds > 0,
	}
	q.loop.RunInLoop(func() { q.addTimerInLoop(t) })
	return id
}

func (q *TimerQueue) addTimerInLoop(t *Timer) {
	earliestChanged := q.insert(t)
	if earliestChanged {
		q.fd.arm(t.expiry)
	}
}

// insert places t into the sorted slice and the secondary index,
// reporting whether t is now the earliest-expiring timer.
func (q *TimerQueue) insert(t *Timer) bool {
	wasEmpty := len(q.timers) == 0
	earliestBefore := netutil.Timestamp(0)
	if !wasEmpty {
		earliestBefore = q.timers[0].expiry
	}

	i := sort.Search(len(q.timers), func(i int) bool {
		return less(t, q.timers[i])
	})
	q.timers = append(q.timers, nil)
	copy(q.timers[i+1:], q.timers[i:])
	q.timers[i] = t
	q.index[t.id] = t

	return wasEmpty || t.expiry < earliestBefore
}

// less orders timers by (expiration, sequence id), giving timers with
// identical expirations a stable, insertion-ordered total order.
func less(a, b *Timer) bool {
	if a.expiry != b.expiry {
		return a.expiry < b.expiry
	}
	return a.id < b.id
}

// cancel marshals cancellation onto the owning loop.
func (q *TimerQueue) cancel(id TimerID) {
	q.loop.RunInLoop(func() { q.cancelInLoop(id) })
}

func (q *TimerQueue) cancelInLoop(id TimerID) {
	t, ok := q.index[id]
	if ok {
		q.removeFromTimers(t)
		delete(q.index, id)
		return
	}
	if q.callbacksInProgress {
		// Timer isn't in the set because it's the one currently
		// firing; record it so a repeating timer isn't reinserted
		// once its callback returns.
		q.cancellingInFiring[id] = struct{}{}
	}
}

func (q *TimerQueue) removeFromTimers(t *Timer) {
	for i, other := range q.timers {
		if other == t {
			q.timers = append(q.timers[:i], q.timers[i+1:]...)
			return
		}
	}
}

// handleRead is the timer descriptor's read-ready callback: drain the
// counter, collect every timer whose expiry has passed, fire their
// callbacks in order, and reinsert the repeating ones that weren't
// cancelled mid-fire.
func (q *TimerQueue) handleRead() {
	q.loop.AssertInLoopGoroutine()
	q.fd.drain()

	now := netutil.Now()
	expired := q.getExpired(now)

	q.callbacksInProgress = true
	for _, t := range expired {
		func() {
			defer func() {
				if r := recover(); r != nil {
					rlog.Errorf("reactor: timer callback panicked: %v", r)
				}
			}()
			t.callback()
		}()
	}
	q.callbacksInProgress = false

	q.reset(expired, now)
}

// getExpired partitions out and removes every timer with expiry <=
// now, in (expiry, id) order — already guaranteed by the sorted slice.
func (q *TimerQueue) getExpired(now netutil.Timestamp) []*Timer {
	i := sort.Search(len(q.timers), func(i int) bool {
		return q.timers[i].expiry > now
	})
	expired := make([]*Timer, i)
	copy(expired, q.timers[:i])
	q.timers = q.timers[i:]
	for _, t := range expired {
		delete(q.index, t.id)
	}
	return expired
}

func (q *TimerQueue) reset(expired []*Timer, now netutil.Timestamp) {
	for _, t := range expired {
		_, cancelled := q.cancellingInFiring[t.id]
		delete(q.cancellingInFiring, t.id)
		if t.repeat && !cancelled {
			t.restart(now)
			q.insert(t)
		}
	}
	if len(q.timers) > 0 {
		q.fd.arm(q.timers[0].expiry)
	}
}

func (q *TimerQueue) close() error {
	q.channel.DisableAll()
	q.channel.Remove()
	return q.fd.close()
}
