package reactor

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/govoltron/reactor/netutil"
	"github.com/govoltron/reactor/rlog"
	"github.com/govoltron/reactor/syncx"
)

// defaultPollTimeout is the multiplexer wait's default timeout.
const defaultPollTimeout = 10 * time.Second

// loopRegistry is the process-wide "thread-local slot": constructing
// a second EventLoop on a thread that already owns one is a
// programmer error.
var loopRegistry = syncx.NewThreadLocal[*EventLoop]()

// EventLoop is a single-threaded driver: it binds to its calling
// goroutine's OS thread at Loop(), runs the poller in a cycle,
// dispatches ready Channels, fires due timers and drains a
// thread-safe task queue.
type EventLoop struct {
	poller   poller
	wakeup   *wakeupFD
	wakeupCh *Channel

	mu               sync.Mutex
	pendingTasks     []func()
	callingPending   bool

	activeChannels []*Channel
	quitFlag       boolFlag

	ownerTID   int
	bound      bool
	timerQueue *TimerQueue

	eventHandling      bool
	currentlyHandling  *Channel
}

// boolFlag is a tiny atomic bool, kept local since syncx only exposes
// int32/int64 counters.
type boolFlag struct {
	v syncx.AtomicInt32
}

func (b *boolFlag) set(v bool) {
	if v {
		b.v.Store(1)
	} else {
		b.v.Store(0)
	}
}
func (b *boolFlag) get() bool { return b.v.Load() != 0 }

// NewEventLoop constructs an EventLoop. It does not bind to a thread
// until Loop() is called.
func NewEventLoop() (*EventLoop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	wk, err := newWakeupFD()
	if err != nil {
		_ = p.close()
		return nil, err
	}
	loop := &EventLoop{poller: p, wakeup: wk}
	loop.timerQueue = newTimerQueue(loop)
	loop.wakeupCh = NewChannel(loop, wk.fdNum())
	loop.wakeupCh.ReadCallback = func(netutil.Timestamp) {
		loop.wakeup.consume()
	}
	loop.wakeupCh.EnableReading()
	return loop, nil
}

// bind locks the calling goroutine to its OS thread and registers this
// EventLoop as owning it. Callers that need to publish the *EventLoop
// to another goroutine before entering runLocked (EventLoopThread)
// must call bind() themselves first, so that by the time the pointer
// is observable elsewhere, binding has already happened — mirroring
// muduo's EventLoop, which captures threadId_ at construction, on the
// same thread that constructs it, before the pointer can ever escape.
func (l *EventLoop) bind() {
	runtime.LockOSThread()
	l.ownerTID = currentThreadID()
	if existing, ok := loopRegistry.Get(l.ownerTID); ok && existing != l {
		panic(fmt.Sprintf("reactor: EventLoop already exists (%p) in this thread", existing))
	}
	loopRegistry.Set(l.ownerTID, l)
	l.bound = true
}

func (l *EventLoop) unbind() {
	loopRegistry.Clear(l.ownerTID)
	l.bound = false
	runtime.UnlockOSThread()
}

// Loop binds the EventLoop to the calling goroutine's OS thread (via
// runtime.LockOSThread) and runs until Quit is requested. It must be
// called exactly once, and every loop-only method must subsequently
// be called from the same goroutine. Callers that already called
// bind() themselves (EventLoopThread) should call runLocked directly
// instead, to avoid locking the OS thread twice.
func (l *EventLoop) Loop() error {
	l.bind()
	defer l.unbind()
	return l.runLocked()
}

// runLocked runs the poll/dispatch cycle until Quit is requested. The
// caller must have already bound this EventLoop to the calling
// goroutine via bind().
func (l *EventLoop) runLocked() error {
	rlog.Infof("reactor: EventLoop %p starting", l)

	for !l.quitFlag.get() {
		l.activeChannels = l.activeChannels[:0]
		now, err := l.poller.wait(int(defaultPollTimeout/time.Millisecond), &l.activeChannels)
		if err != nil {
			rlog.Errorf("reactor: poller wait: %v", err)
		}

		l.eventHandling = true
		for _, ch := range l.activeChannels {
			l.currentlyHandling = ch
			ch.HandleEvent(now)
		}
		l.currentlyHandling = nil
		l.eventHandling = false

		l.doPendingTasks()
	}

	rlog.Infof("reactor: EventLoop %p stopping", l)
	return nil
}

// Quit requests the loop to stop. Safe to call from any goroutine; if
// called from outside the loop's own thread it also wakes the loop so
// it notices promptly rather than waiting out the current poll timeout.
func (l *EventLoop) Quit() {
	l.quitFlag.set(true)
	if !l.bound || currentThreadID() != l.ownerTID {
		l.wakeup.wake()
	}
}

// IsInLoopGoroutine reports whether the calling goroutine is running
// on this loop's bound OS thread. Before bind() has run, the loop
// isn't reachable from any goroutine but the one that constructed it
// (NewEventLoop never hands the pointer to another goroutine itself,
// and EventLoopThread — the one place that does hand it off — binds
// before publishing it), so that single goroutine's setup calls
// (registering callbacks, constructing a Server) are always "in loop".
// Once bound, this is a real cross-goroutine identity check. After
// Loop returns, unbind clears the binding, so the goroutine that then
// calls Close is again treated as in loop.
func (l *EventLoop) IsInLoopGoroutine() bool {
	return !l.bound || currentThreadID() == l.ownerTID
}

// AssertInLoopGoroutine aborts with a diagnostic if called from
// outside the loop's own thread: cross-thread access to a loop-only
// operation is a programmer error, not a recoverable condition.
func (l *EventLoop) AssertInLoopGoroutine() {
	if !l.IsInLoopGoroutine() {
		panic(fmt.Sprintf("reactor: EventLoop %p used from a different thread than it was bound to", l))
	}
}

// RunInLoop runs fn on this loop's thread: immediately if the caller
// is already on it, otherwise it is queued via Post.
func (l *EventLoop) RunInLoop(fn func()) {
	if l.IsInLoopGoroutine() {
		fn()
		return
	}
	l.Post(fn)
}

// Post appends fn to the pending-task queue, waking the loop if the
// caller isn't on the loop's thread, or if the loop is currently
// draining its task queue (so fn doesn't wait out a full poll cycle
// before it gets a chance to run).
func (l *EventLoop) Post(fn func()) {
	l.mu.Lock()
	l.pendingTasks = append(l.pendingTasks, fn)
	// Wake unless we're certain we're already running on the loop's
	// own bound thread: before Loop() has bound the loop, the actual
	// dispatch goroutine may be starting up concurrently (e.g. via
	// EventLoopThread) and might not have reached its first poller
	// wait yet, so an unconditional wake here is the only way to
	// guarantee fn doesn't sit unseen for a full poll timeout. An
	// extra wakeup once the loop is already awake is harmless.
	shouldWake := !l.bound || currentThreadID() != l.ownerTID || l.callingPending
	l.mu.Unlock()

	if shouldWake {
		l.wakeup.wake()
	}
}

// doPendingTasks swaps the pending queue out under the mutex, then
// runs every task with the mutex released — the "swap and release"
// discipline, which both shortens the critical section and lets a
// task enqueue further tasks without deadlocking.
func (l *EventLoop) doPendingTasks() {
	l.mu.Lock()
	tasks := l.pendingTasks
	l.pendingTasks = nil
	l.callingPending = true
	l.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}

	l.mu.Lock()
	l.callingPending = false
	l.mu.Unlock()
}

// updateChannel/removeChannel/hasChannel are thin, loop-thread-only
// forwards to the poller.
func (l *EventLoop) updateChannel(c *Channel) {
	l.AssertInLoopGoroutine()
	l.poller.updateChannel(c)
}

func (l *EventLoop) removeChannel(c *Channel) {
	l.AssertInLoopGoroutine()
	if l.currentlyHandling == c {
		panic("reactor: Channel removed while its own event is being handled")
	}
	l.poller.removeChannel(c)
}

func (l *EventLoop) hasChannel(fd int) bool {
	l.AssertInLoopGoroutine()
	return l.poller.hasChannel(fd)
}

// Close releases the loop's own kernel resources (poller, wakeup fd,
// timer fd). Must be called after Loop has returned.
func (l *EventLoop) Close() error {
	l.timerQueue.close()
	_ = l.wakeup.close()
	return l.poller.close()
}

// --- timer forwards ---

// RunAt schedules cb to run once at the given Timestamp.
func (l *EventLoop) RunAt(t netutil.Timestamp, cb func()) TimerID {
	return l.timerQueue.addTimer(cb, t, 0)
}

// RunAfter schedules cb to run once after delay.
func (l *EventLoop) RunAfter(delay time.Duration, cb func()) TimerID {
	return l.RunAt(netutil.Now().Add(delay.Seconds()), cb)
}

// RunEvery schedules cb to run repeatedly every interval, starting
// one interval from now.
func (l *EventLoop) RunEvery(interval time.Duration, cb func()) TimerID {
	when := netutil.Now().Add(interval.Seconds())
	return l.timerQueue.addTimer(cb, when, interval.Seconds())
}

// Cancel cancels a previously scheduled timer.
func (l *EventLoop) Cancel(id TimerID) {
	l.timerQueue.cancel(id)
}
