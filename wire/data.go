package wire

import "errors"

// ErrInvalidFragment is returned when a fragment number is outside [1, FragmentCount].
var ErrInvalidFragment = errors.New("wire: fragment number out of range")

// Parameter ids used in the inline QoS.
const (
	pidSentinel   uint16 = 0x0001
	pidKeyHash    uint16 = 0x0070
	pidStatusInfo uint16 = 0x0071
)

const (
	statusInfoDisposed     uint8 = 0x01
	statusInfoUnregistered uint8 = 0x02
)

const (
	dataFixedSize     = 20
	dataFragFixedSize = 32

	dataOctetsToInlineQos     = 16
	dataFragOctetsToInlineQos = 28
)

// Data describes a DATA submessage.
type Data struct {
	ReaderID EntityID
	WriterID EntityID
	Change   *Change

	// ExpectsInlineQos states whether at least one destination
	// expects the inline QoS. Not-alive changes always carry it.
	ExpectsInlineQos bool
}

// DataFrag describes a DATA_FRAG submessage carrying a single fragment.
type DataFrag struct {
	ReaderID       EntityID
	WriterID       EntityID
	Change         *Change
	FragmentNumber FragmentNumber

	ExpectsInlineQos bool
}

func hasInlineQos(c *Change, expects bool) bool {
	return expects || c.Kind != ChangeKindAlive
}

func inlineQosSize(c *Change) int {
	size := 4 // sentinel

	if c.Kind != ChangeKindAlive {
		size += 4 + 4
	}

	if !c.InstanceHandle.IsZero() {
		size += 4 + 16
	}

	return size
}

func putParameterHeader(buf []byte, pid uint16, length int) {
	le.PutUint16(buf[0:2], pid)
	le.PutUint16(buf[2:4], uint16(length))
}

func putInlineQos(buf []byte, c *Change) int {
	n := 0

	if c.Kind != ChangeKindAlive {
		putParameterHeader(buf[n:], pidStatusInfo, 4)
		buf[n+7] = c.Kind.statusInfo()
		n += 8
	}

	if !c.InstanceHandle.IsZero() {
		putParameterHeader(buf[n:], pidKeyHash, 16)
		copy(buf[n+4:n+20], c.InstanceHandle[:])
		n += 20
	}

	putParameterHeader(buf[n:], pidSentinel, 0)
	return n + 4
}

// WriteData writes a DATA submessage.
func WriteData(b *Buffer, d Data) error {
	c := d.Change

	var flags uint8
	size := dataFixedSize

	withQos := hasInlineQos(c, d.ExpectsInlineQos)
	if withQos {
		flags |= FlagDataInlineQos
		size += inlineQosSize(c)
	}

	withData := c.Kind == ChangeKindAlive && len(c.Payload) > 0
	if withData {
		flags |= FlagDataData
		size += len(c.Payload)
	}

	buf, err := b.AllocSubmessage(SubmessageData, flags, size)
	if err != nil {
		return err
	}

	le.PutUint16(buf[2:4], dataOctetsToInlineQos)
	putEntityID(buf[4:8], d.ReaderID)
	putEntityID(buf[8:12], d.WriterID)
	putSequenceNumber(buf[12:20], c.SequenceNumber)

	n := dataFixedSize
	if withQos {
		n += putInlineQos(buf[n:], c)
	}

	if withData {
		copy(buf[n:], c.Payload)
	}

	return nil
}

// WriteDataFrag writes a DATA_FRAG submessage carrying the payload window
// of the requested fragment.
func WriteDataFrag(b *Buffer, d DataFrag) error {
	c := d.Change

	fragment, ok := c.Fragment(d.FragmentNumber)
	if !ok {
		return ErrInvalidFragment
	}

	var flags uint8
	size := dataFragFixedSize + len(fragment)

	withQos := hasInlineQos(c, d.ExpectsInlineQos)
	if withQos {
		flags |= FlagDataFragInlineQos
		size += inlineQosSize(c)
	}

	buf, err := b.AllocSubmessage(SubmessageDataFrag, flags, size)
	if err != nil {
		return err
	}

	le.PutUint16(buf[2:4], dataFragOctetsToInlineQos)
	putEntityID(buf[4:8], d.ReaderID)
	putEntityID(buf[8:12], d.WriterID)
	putSequenceNumber(buf[12:20], c.SequenceNumber)
	le.PutUint32(buf[20:24], uint32(d.FragmentNumber))
	le.PutUint16(buf[24:26], 1)
	le.PutUint16(buf[26:28], c.FragmentSize)
	le.PutUint32(buf[28:32], uint32(len(c.Payload)))

	n := dataFragFixedSize
	if withQos {
		n += putInlineQos(buf[n:], c)
	}

	copy(buf[n:], fragment)

	return nil
}
