package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEventLoopThread_StartReturnsAnAlreadyBoundLoop guards against the
// race where Start() hands back a loop pointer before that loop's own
// goroutine has finished binding to its OS thread: if that happened,
// RunInLoop posted from here (a different goroutine) could race the
// worker's own concurrent entry into its dispatch loop instead of being
// safely queued and woken.
func TestEventLoopThread_StartReturnsAnAlreadyBoundLoop(t *testing.T) {
	thread := NewEventLoopThread(nil)
	loop, err := thread.Start()
	require.NoError(t, err)
	// EventLoopThread offers no way to wait for its loop to return, so
	// the loop is only asked to quit here; Close is not called on it.
	defer loop.Quit()

	assert.False(t, loop.IsInLoopGoroutine(), "Start() must not return until the loop has bound to its own goroutine")

	ran := make(chan struct{})
	loop.RunInLoop(func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("RunInLoop posted right after Start() never ran")
	}
}

func TestEventLoopThreadPool_StartSpawnsWorkersAndRoundRobins(t *testing.T) {
	baseLoop, err := NewEventLoop()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = baseLoop.Loop()
	}()
	defer func() {
		baseLoop.Quit()
		<-done
		_ = baseLoop.Close()
	}()

	var pool *EventLoopThreadPool
	poolReady := make(chan struct{})
	baseLoop.RunInLoop(func() {
		pool = NewEventLoopThreadPool(baseLoop)
		close(poolReady)
	})
	<-poolReady

	const numThreads = 3
	startErrCh := make(chan error, 1)
	baseLoop.RunInLoop(func() {
		startErrCh <- pool.Start(numThreads, nil)
	})
	require.NoError(t, <-startErrCh)

	var loops []*EventLoop
	loopsReady := make(chan struct{})
	baseLoop.RunInLoop(func() {
		for i := 0; i < numThreads*2; i++ {
			loops = append(loops, pool.GetNextLoop())
		}
		close(loopsReady)
	})
	<-loopsReady

	require.Len(t, loops, numThreads*2)
	for i, l := range loops {
		assert.Same(t, loops[i%numThreads], l)
	}

	// Every worker loop handed out must already be usable: posting to
	// it from this outside goroutine must actually run, exercising the
	// same bind-before-publish path a freshly accepted connection would.
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[*EventLoop]bool{}
	for _, l := range loops {
		l := l
		wg.Add(1)
		l.RunInLoop(func() {
			mu.Lock()
			seen[l] = true
			mu.Unlock()
			wg.Done()
		})
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("not all worker loops ran their posted task")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, numThreads)
}

func TestEventLoopThreadPool_GetLoopForHashIsStable(t *testing.T) {
	baseLoop, err := NewEventLoop()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = baseLoop.Loop()
	}()
	defer func() {
		baseLoop.Quit()
		<-done
		_ = baseLoop.Close()
	}()

	var first, second *EventLoop
	var startErr error
	readyCh := make(chan struct{})
	baseLoop.RunInLoop(func() {
		pool := NewEventLoopThreadPool(baseLoop)
		startErr = pool.Start(2, nil)
		if startErr == nil {
			first = pool.GetLoopForHash(42)
			second = pool.GetLoopForHash(42)
		}
		close(readyCh)
	})
	<-readyCh

	require.NoError(t, startErr)
	assert.Same(t, first, second)
}
