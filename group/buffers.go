package group

import (
	"sync/atomic"

	"github.com/FerroO2000/rtpsgroup/wire"
)

// DefaultCapacity is the maximum size of an RTPS message sent over UDP.
const DefaultCapacity = 65_500

// MinCapacity is the smallest capacity able to hold the header,
// the destination framing and a minimal submessage.
const MinCapacity = wire.HeaderSize + wire.InfoDestinationSize + wire.SubmessageHeaderSize

// Buffers are the buffers borrowed by a group for the duration of a batch.
// They are usually owned by a writer and reused across batches.
// Only one group at a time can borrow them.
type Buffers struct {
	scratch  *wire.Buffer
	full     *wire.Buffer
	envelope *wire.Buffer

	inUse atomic.Bool
}

// NewBuffers returns the buffers for messages of the given capacity.
// The envelope buffer, needed by the encrypting groups, is only allocated when secure is set.
func NewBuffers(capacity int, secure bool) *Buffers {
	bufs := &Buffers{
		scratch: wire.NewBuffer(capacity),
		full:    wire.NewBuffer(capacity),
	}

	if secure {
		bufs.envelope = wire.NewBuffer(capacity)
	}

	return bufs
}

// Capacity returns the maximum size of a message.
func (b *Buffers) Capacity() int {
	return b.full.Cap()
}

// Secure states whether the envelope buffer is allocated.
func (b *Buffers) Secure() bool {
	return b.envelope != nil
}

// InUse states whether a group is borrowing the buffers.
func (b *Buffers) InUse() bool {
	return b.inUse.Load()
}

func (b *Buffers) acquire() error {
	if !b.inUse.CompareAndSwap(false, true) {
		return ErrBuffersInUse
	}
	return nil
}

func (b *Buffers) release() {
	b.scratch.Reset()
	b.full.Reset()
	if b.envelope != nil {
		b.envelope.Reset()
	}

	b.inUse.Store(false)
}
