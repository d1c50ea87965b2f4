package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*EventLoop, chan struct{}) {
	t.Helper()
	loop, err := NewEventLoop()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Loop()
	}()
	return loop, done
}

func TestEventLoop_PostRunsInFIFOOrder(t *testing.T) {
	loop, done := startLoop(t)

	var mu sync.Mutex
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		loop.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}

	waitCh := make(chan struct{})
	loop.Post(func() { close(waitCh) })

	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("posted tasks never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	loop.Quit()
	<-done
	_ = loop.Close()
}

func TestEventLoop_RunInLoopExecutesImmediatelyWhenAlreadyInLoop(t *testing.T) {
	loop, done := startLoop(t)

	resultCh := make(chan bool, 1)
	loop.Post(func() {
		loop.RunInLoop(func() {
			resultCh <- loop.IsInLoopGoroutine()
		})
	})

	select {
	case inLoop := <-resultCh:
		assert.True(t, inLoop)
	case <-time.After(2 * time.Second):
		t.Fatal("RunInLoop callback never ran")
	}

	loop.Quit()
	<-done
	_ = loop.Close()
}

func TestEventLoop_QuitStopsTheLoop(t *testing.T) {
	loop, done := startLoop(t)
	loop.Quit()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after Quit")
	}
	_ = loop.Close()
}
