package rb

import (
	"math/bits"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type slot[T any] struct {
	dataReady atomic.Bool
	data      T
}

type commonBuffer struct {
	head atomic.Uint64

	_ cpu.CacheLinePad

	tail atomic.Uint64

	_ cpu.CacheLinePad

	capacity uint64
	capMask  uint64

	_ cpu.CacheLinePad
}

func newCommonBuffer(capacity uint64) *commonBuffer {
	return &commonBuffer{
		capacity: capacity,
		capMask:  capacity - 1,
	}
}

// len loads the tail first: the head only moves forward,
// so it is never behind the loaded tail.
func (cb *commonBuffer) len() uint64 {
	tail := cb.tail.Load()
	head := cb.head.Load()
	return min(head-tail, cb.capacity)
}

// roundToPowerOf2 returns the smallest power of 2 greater than or equal to n.
func roundToPowerOf2(n uint32) uint64 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}
