// Package syncx provides the small set of concurrency primitives the
// reactor core is built from: atomic counters, bounded/unbounded
// blocking queues and a one-shot initialization singleton — the Go
// equivalents of muduo/base's Atomic.h, BlockingQueue.h,
// BoundedBlockingQueue.h and Singleton.h.
package syncx

import "go.uber.org/atomic"

// AtomicInt32 is an alias of go.uber.org/atomic's Int32, so call sites
// read as reactor-domain counters (timer sequence ids, connection ids)
// rather than a generic import.
type AtomicInt32 = atomic.Int32

// AtomicInt64 is the 64-bit counterpart of AtomicInt32.
type AtomicInt64 = atomic.Int64

// NewAtomicInt32 returns a new counter initialized to v.
func NewAtomicInt32(v int32) *AtomicInt32 { return atomic.NewInt32(v) }

// NewAtomicInt64 returns a new counter initialized to v.
func NewAtomicInt64(v int64) *AtomicInt64 { return atomic.NewInt64(v) }
