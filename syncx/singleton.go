package syncx

import "sync"

// Singleton lazily constructs a single shared *T the first time Get
// is called, via sync.Once — the Go equivalent of muduo's
// Singleton<T> (a pthread_once-guarded pointer).
type Singleton[T any] struct {
	once  sync.Once
	value *T
	New   func() *T
}

// Get returns the shared instance, constructing it on first use.
func (s *Singleton[T]) Get() *T {
	s.once.Do(func() {
		s.value = s.New()
	})
	return s.value
}
