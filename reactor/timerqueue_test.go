package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueue_RunAfterFiresOnce(t *testing.T) {
	loop, done := startLoop(t)
	defer func() {
		loop.Quit()
		<-done
		_ = loop.Close()
	}()

	fired := make(chan struct{}, 2)
	loop.RunAfter(30*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("RunAfter timer never fired")
	}

	select {
	case <-fired:
		t.Fatal("RunAfter timer fired more than once")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestTimerQueue_RunEveryRepeatsUntilCancelled(t *testing.T) {
	loop, done := startLoop(t)
	defer func() {
		loop.Quit()
		<-done
		_ = loop.Close()
	}()

	var mu sync.Mutex
	count := 0
	var id TimerID
	id = loop.RunEvery(20*time.Millisecond, func() {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		if n >= 3 {
			loop.Cancel(id)
		}
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 3
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	finalCount := count
	mu.Unlock()
	// Cancel runs synchronously from inside the loop-thread callback
	// itself, before TimerQueue.reset() decides whether to reinsert,
	// so the timer never fires a 4th time.
	assert.Equal(t, 3, finalCount)
}

func TestTimerQueue_CancelWhileFiringPreventsReinsertion(t *testing.T) {
	loop, done := startLoop(t)
	defer func() {
		loop.Quit()
		<-done
		_ = loop.Close()
	}()

	var mu sync.Mutex
	fireCount := 0
	var id TimerID

	firstFired := make(chan struct{})
	id = loop.RunEvery(15*time.Millisecond, func() {
		mu.Lock()
		fireCount++
		n := fireCount
		mu.Unlock()
		if n == 1 {
			// Cancel from inside the callback, while the timer is
			// mid-fire: must not be reinserted for a future round.
			loop.Cancel(id)
			close(firstFired)
		}
	})

	select {
	case <-firstFired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired once")
	}

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fireCount)
}

func TestTimerQueue_OrdersByExpirationThenSequence(t *testing.T) {
	loop, done := startLoop(t)
	defer func() {
		loop.Quit()
		<-done
		_ = loop.Close()
	}()

	var mu sync.Mutex
	var order []int

	waitCh := make(chan struct{})

	for i := 0; i < 3; i++ {
		i := i
		loop.RunAfter(10*time.Millisecond, func() {
			mu.Lock()
			order = append(order, i)
			if len(order) == 3 {
				close(waitCh)
			}
			mu.Unlock()
		})
	}

	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timers never all fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, order)
}
