package reactor

import "sync"

// EventLoopThread spawns a goroutine running a single EventLoop and
// hands the bound loop back to the caller once it's ready — the Go
// analogue of muduo's EventLoopThread start/bind handshake.
type EventLoopThread struct {
	initCallback func(*EventLoop)

	mu       sync.Mutex
	cond     *sync.Cond
	loop     *EventLoop
	started  bool
}

// NewEventLoopThread constructs a thread wrapper. initCallback, if
// non-nil, runs on the new loop's own goroutine immediately before
// Loop() begins — used by tcp.Server's SetThreadInitCallback.
func NewEventLoopThread(initCallback func(*EventLoop)) *EventLoopThread {
	t := &EventLoopThread{initCallback: initCallback}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Start spawns the goroutine and blocks until its EventLoop is
// constructed and bound, returning it.
func (t *EventLoopThread) Start() (*EventLoop, error) {
	t.mu.Lock()
	if t.started {
		loop := t.loop
		t.mu.Unlock()
		return loop, nil
	}
	t.started = true
	t.mu.Unlock()

	errCh := make(chan error, 1)

	go func() {
		loop, err := NewEventLoop()
		if err != nil {
			errCh <- err
			return
		}
		// Bind before publishing loop to any other goroutine: once
		// t.loop is visible, a concurrent caller may treat it as fully
		// bound (e.g. GetNextLoop().RunInLoop(...) on another loop's
		// goroutine), so binding must already be complete by then.
		loop.bind()
		errCh <- nil

		if t.initCallback != nil {
			t.initCallback(loop)
		}

		t.mu.Lock()
		t.loop = loop
		t.mu.Unlock()
		t.cond.Broadcast()

		defer loop.unbind()
		_ = loop.runLocked()
	}()

	if err := <-errCh; err != nil {
		return nil, err
	}

	t.mu.Lock()
	for t.loop == nil {
		t.cond.Wait()
	}
	loop := t.loop
	t.mu.Unlock()

	return loop, nil
}

// Loop returns the thread's EventLoop, or nil if Start hasn't
// completed the handshake yet.
func (t *EventLoopThread) Loop() *EventLoop {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}
