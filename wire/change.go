package wire

import "time"

// ChangeKind is the kind of a change.
type ChangeKind uint8

const (
	// ChangeKindAlive is a change carrying a new value.
	ChangeKindAlive ChangeKind = iota
	// ChangeKindNotAliveDisposed signals that the instance has been disposed.
	ChangeKindNotAliveDisposed
	// ChangeKindNotAliveUnregistered signals that the writer unregistered the instance.
	ChangeKindNotAliveUnregistered
	// ChangeKindNotAliveDisposedUnregistered is the combination of the two above.
	ChangeKindNotAliveDisposedUnregistered
)

func (ck ChangeKind) String() string {
	switch ck {
	case ChangeKindAlive:
		return "alive"
	case ChangeKindNotAliveDisposed:
		return "disposed"
	case ChangeKindNotAliveUnregistered:
		return "unregistered"
	case ChangeKindNotAliveDisposedUnregistered:
		return "disposed-unregistered"
	default:
		return "unknown"
	}
}

func (ck ChangeKind) statusInfo() uint8 {
	switch ck {
	case ChangeKindNotAliveDisposed:
		return statusInfoDisposed
	case ChangeKindNotAliveUnregistered:
		return statusInfoUnregistered
	case ChangeKindNotAliveDisposedUnregistered:
		return statusInfoDisposed | statusInfoUnregistered
	default:
		return 0
	}
}

// Change is a single data sample to transmit.
// The payload is already serialized (encapsulation header included).
type Change struct {
	Kind           ChangeKind
	SequenceNumber SequenceNumber
	InstanceHandle InstanceHandle

	// SourceTimestamp is the time the sample was written.
	// The zero time means no timestamp.
	SourceTimestamp time.Time

	Payload []byte

	// FragmentSize is the size of each fragment of the payload.
	// Zero means the change is not fragmented.
	FragmentSize uint16
}

// FragmentCount returns the number of fragments of the change,
// or 0 if it is not fragmented.
func (c *Change) FragmentCount() uint32 {
	if c.FragmentSize == 0 {
		return 0
	}

	size := uint32(c.FragmentSize)
	return (uint32(len(c.Payload)) + size - 1) / size
}

// Fragment returns the payload window of the 1-based fragment number.
// It returns false if the number is out of range.
func (c *Change) Fragment(fn FragmentNumber) ([]byte, bool) {
	if fn < 1 || uint32(fn) > c.FragmentCount() {
		return nil, false
	}

	size := int(c.FragmentSize)
	start := (int(fn) - 1) * size
	end := min(start+size, len(c.Payload))

	return c.Payload[start:end], true
}
