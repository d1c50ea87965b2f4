package syncx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnboundedQueue_FIFO(t *testing.T) {
	q := NewUnboundedQueue[int]()
	for i := 0; i < 5; i++ {
		q.Put(i)
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, i, q.Take())
	}
}

func TestBoundedQueue_BlocksWhenFull(t *testing.T) {
	q := NewBoundedQueue[int](1)
	q.Put(1)

	done := make(chan struct{})
	go func() {
		q.Put(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Put should have blocked while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	assert.Equal(t, 1, q.Take())
	<-done
	assert.Equal(t, 2, q.Take())
}

func TestSingleton_ConstructsOnce(t *testing.T) {
	var n int
	var mu sync.Mutex
	s := &Singleton[int]{New: func() *int {
		mu.Lock()
		n++
		mu.Unlock()
		v := 42
		return &v
	}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, 42, *s.Get())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, n)
}

func TestThreadLocal_SetGetClear(t *testing.T) {
	tl := NewThreadLocal[string]()
	_, ok := tl.Get(1)
	assert.False(t, ok)

	tl.Set(1, "loop-a")
	v, ok := tl.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "loop-a", v)

	tl.Clear(1)
	_, ok = tl.Get(1)
	assert.False(t, ok)
}
