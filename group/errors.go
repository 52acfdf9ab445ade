package group

import "errors"

var (
	// ErrTooLargeForMessage is returned when a submessage, plus the destination
	// framing, does not fit in an empty message.
	// The caller must fragment the change or drop it.
	ErrTooLargeForMessage = errors.New("group: submessage too large for a message")
	// ErrTimeout is returned when the deadline is reached before the transport accepts a message.
	ErrTimeout = errors.New("group: send deadline exceeded")
	// ErrEncryption is returned when the security transform fails to protect a submessage.
	ErrEncryption = errors.New("group: encryption failure")
	// ErrTransportSend is returned when the transport fails to send a message.
	ErrTransportSend = errors.New("group: transport send failure")
	// ErrResolve is returned when the destinations of the endpoint cannot be resolved.
	ErrResolve = errors.New("group: cannot resolve destinations")

	// ErrFragmentOutOfRange is returned when a fragment number is outside [1, FragmentCount].
	ErrFragmentOutOfRange = errors.New("group: fragment number out of range")
	// ErrNoDeadline is returned when a group is created without a deadline.
	ErrNoDeadline = errors.New("group: deadline is required")
	// ErrBuffersInUse is returned when the buffers are already borrowed by another group.
	ErrBuffersInUse = errors.New("group: buffers already in use")
	// ErrNoEnvelopeBuffer is returned when security is enabled on buffers without an envelope buffer.
	ErrNoEnvelopeBuffer = errors.New("group: security enabled without an envelope buffer")
	// ErrCapacityTooSmall is returned when the buffers cannot hold the header and the destination framing.
	ErrCapacityTooSmall = errors.New("group: buffer capacity too small")
	// ErrMissingBuffers is returned when a group is created without buffers.
	ErrMissingBuffers = errors.New("group: buffers are required")
	// ErrMissingSender is returned when a group is created without a sender.
	ErrMissingSender = errors.New("group: sender is required")
	// ErrGroupClosed is returned when a group is used after being finished.
	ErrGroupClosed = errors.New("group: group is closed")
)
