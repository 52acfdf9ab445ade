package group

import (
	"context"
	"time"

	"github.com/FerroO2000/rtpsgroup/wire"
)

// Sender resolves the destinations of an endpoint and sends the finished messages.
// A sender is shared by many groups, so it must be safe for concurrent use.
type Sender interface {
	// Destinations returns the remote endpoints matched with the given local endpoint.
	Destinations(endpoint wire.GUID) ([]wire.Destination, error)

	// Send sends the same message to every destination.
	// It blocks until the transport accepts the message or the deadline is reached,
	// in which case the returned error wraps [os.ErrDeadlineExceeded] or [context.DeadlineExceeded].
	// The message is only valid for the duration of the call.
	Send(ctx context.Context, msg []byte, dests []wire.Destination, deadline time.Time) error
}

// CryptoTransform protects a submessage.
type CryptoTransform interface {
	// EncodeSubmessage appends the protected form of the submessage to dst.
	// It returns [wire.ErrBufferFull] when dst cannot hold it.
	EncodeSubmessage(dst *wire.Buffer, submsg []byte) error
}
