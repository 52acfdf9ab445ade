package wire

// HeaderSize is the size of the RTPS message header.
const HeaderSize = 20

// InfoDestinationSize is the size of an INFO_DST submessage.
const InfoDestinationSize = SubmessageHeaderSize + GuidPrefixSize

// InfoTimestampSize is the size of an INFO_TS submessage carrying a valid timestamp.
const InfoTimestampSize = SubmessageHeaderSize + 8

var protocolID = [4]byte{'R', 'T', 'P', 'S'}

// Header is the RTPS message header.
type Header struct {
	Version ProtocolVersion
	Vendor  VendorID
	Prefix  GuidPrefix
}

// WriteHeader writes the message header.
func WriteHeader(b *Buffer, h Header) error {
	buf, err := b.alloc(HeaderSize)
	if err != nil {
		return err
	}

	copy(buf[0:4], protocolID[:])
	buf[4] = h.Version.Major
	buf[5] = h.Version.Minor
	copy(buf[6:8], h.Vendor[:])
	copy(buf[8:20], h.Prefix[:])

	return nil
}

// WriteInfoDestination writes an INFO_DST submessage:
// the following submessages are addressed to the participant with the given prefix.
func WriteInfoDestination(b *Buffer, dst GuidPrefix) error {
	buf, err := b.AllocSubmessage(SubmessageInfoDst, 0, GuidPrefixSize)
	if err != nil {
		return err
	}

	copy(buf, dst[:])
	return nil
}

// WriteInfoTimestamp writes an INFO_TS submessage carrying the source timestamp
// of the following submessages. An invalid timestamp writes the invalidate flag
// and no content.
func WriteInfoTimestamp(b *Buffer, ts Time) error {
	if !ts.IsValid() {
		_, err := b.AllocSubmessage(SubmessageInfoTS, FlagInfoTSInvalidate, 0)
		return err
	}

	buf, err := b.AllocSubmessage(SubmessageInfoTS, 0, 8)
	if err != nil {
		return err
	}

	le.PutUint32(buf[0:4], uint32(ts.Seconds))
	le.PutUint32(buf[4:8], ts.Fraction)

	return nil
}
