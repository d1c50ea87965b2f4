package reactor

// EventLoopThreadPool owns a fixed set of worker EventLoops, each on
// its own OS thread, and offers round-robin/hash/broadcast dispatch
// over them — the Go equivalent of muduo's EventLoopThreadPool.
type EventLoopThreadPool struct {
	baseLoop *EventLoop
	started  bool

	threads []*EventLoopThread
	loops   []*EventLoop
	next    int
}

// NewEventLoopThreadPool constructs a pool whose dispatch falls back
// to baseLoop itself when numThreads is 0 (single-threaded server).
func NewEventLoopThreadPool(baseLoop *EventLoop) *EventLoopThreadPool {
	return &EventLoopThreadPool{baseLoop: baseLoop}
}

// Start spawns numThreads worker loops, running threadInitCallback (if
// non-nil) on each before it begins serving. Must be called from
// baseLoop's own thread, exactly once.
func (p *EventLoopThreadPool) Start(numThreads int, threadInitCallback func(*EventLoop)) error {
	p.baseLoop.AssertInLoopGoroutine()
	if p.started {
		return nil
	}
	p.started = true

	for i := 0; i < numThreads; i++ {
		thread := NewEventLoopThread(threadInitCallback)
		loop, err := thread.Start()
		if err != nil {
			return err
		}
		p.threads = append(p.threads, thread)
		p.loops = append(p.loops, loop)
	}

	if numThreads == 0 && threadInitCallback != nil {
		threadInitCallback(p.baseLoop)
	}
	return nil
}

// GetNextLoop returns the next loop in round-robin order, or the base
// loop if the pool has no worker threads.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	p.baseLoop.AssertInLoopGoroutine()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	loop := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return loop
}

// GetLoopForHash returns a stable loop for the given hash, or the base
// loop if the pool has no worker threads — used to pin related
// connections (e.g. by source IP) onto the same loop.
func (p *EventLoopThreadPool) GetLoopForHash(hash int) *EventLoop {
	p.baseLoop.AssertInLoopGoroutine()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	if hash < 0 {
		hash = -hash
	}
	return p.loops[hash%len(p.loops)]
}

// GetAllLoops returns every worker loop, or just the base loop if the
// pool has no worker threads — used for broadcast operations.
func (p *EventLoopThreadPool) GetAllLoops() []*EventLoop {
	p.baseLoop.AssertInLoopGoroutine()
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return p.loops
}
