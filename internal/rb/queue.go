// Package rb provides a bounded lock-free multiple producer/single consumer queue.
// Producers block, up to a deadline, when the queue is full.
package rb

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var maxSpins = runtime.NumCPU() * 32

// ErrClosed is returned when the queue is closed.
var ErrClosed = errors.New("ring buffer: queue is closed")

// Queue is a bounded multiple producer/single consumer queue.
type Queue[T any] struct {
	buf *mpscBuffer[T]

	_ cpu.CacheLinePad

	// isClosed states whether the queue is closed.
	isClosed atomic.Bool

	_ cpu.CacheLinePad

	// notEmpty and notFull hold at most one wake up token
	notEmpty chan struct{}
	notFull  chan struct{}
	closed   chan struct{}
}

// NewQueue returns a new queue.
// The capacity is rounded up to the next power of 2.
func NewQueue[T any](capacity uint32) *Queue[T] {
	return &Queue[T]{
		buf: newMPSCBuffer[T](roundToPowerOf2(capacity)),

		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// TryPush adds the item to the queue without blocking.
// It returns false if the queue is full or closed.
func (q *Queue[T]) TryPush(item T) bool {
	if q.isClosed.Load() {
		return false
	}

	if !q.buf.push(item) {
		return false
	}

	signal(q.notEmpty)
	return true
}

// Push adds the item to the queue. If the queue is full it waits
// for room until the context is done, returning the context error.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	for range maxSpins {
		if q.isClosed.Load() {
			return ErrClosed
		}

		if q.buf.push(item) {
			goto pushed
		}

		runtime.Gosched()
	}

	for {
		if q.isClosed.Load() {
			return ErrClosed
		}

		if q.buf.push(item) {
			goto pushed
		}

		select {
		case <-q.notFull:
		case <-q.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

pushed:
	signal(q.notEmpty)

	// Pass the token to the next waiting producer
	if q.buf.len() < q.buf.capacity {
		signal(q.notFull)
	}

	return nil
}

// Pop removes the next item from the queue, waiting until one is available.
// Only one goroutine may call Pop at a time.
// Once the queue is closed, Pop still returns the items left
// and then [ErrClosed].
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for spins := 0; ; spins++ {
		item, ok := q.buf.pop()
		if ok {
			signal(q.notFull)
			return item, nil
		}

		if q.isClosed.Load() && q.buf.len() == 0 {
			return item, ErrClosed
		}

		if spins < maxSpins {
			runtime.Gosched()
			continue
		}

		select {
		case <-q.notEmpty:
		case <-q.closed:
			runtime.Gosched()
		case <-ctx.Done():
			return item, ctx.Err()
		}
	}
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	return int(q.buf.len())
}

// Cap returns the capacity of the queue.
func (q *Queue[T]) Cap() int {
	return int(q.buf.capacity)
}

// Close closes the queue. Pending and future pushes fail with [ErrClosed].
func (q *Queue[T]) Close() {
	if !q.isClosed.CompareAndSwap(false, true) {
		return
	}

	close(q.closed)
}
