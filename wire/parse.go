package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is returned when a message or a submessage cannot be parsed.
var ErrMalformed = errors.New("wire: malformed message")

// Submessage is a parsed, still encoded, submessage.
type Submessage struct {
	ID    SubmessageID
	Flags uint8

	// Body is the content of the submessage, padding included.
	Body []byte
}

// ByteOrder returns the byte order of the submessage, given by its E flag.
func (s Submessage) ByteOrder() binary.ByteOrder {
	if s.Flags&FlagEndianness != 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Size returns the bytes taken by the submessage in the message.
func (s Submessage) Size() int {
	return SubmessageHeaderSize + len(s.Body)
}

// AppendTo appends the submessage, header included, to dst.
func (s Submessage) AppendTo(dst []byte) []byte {
	dst = append(dst, uint8(s.ID), s.Flags, 0, 0)
	s.ByteOrder().PutUint16(dst[len(dst)-2:], uint16(len(s.Body)))
	return append(dst, s.Body...)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// ParseHeader parses the header of a message.
func ParseHeader(msg []byte) (Header, error) {
	if len(msg) < HeaderSize {
		return Header{}, malformed("message shorter than header (%d bytes)", len(msg))
	}

	if [4]byte(msg[0:4]) != protocolID {
		return Header{}, malformed("bad protocol id %q", msg[0:4])
	}

	return Header{
		Version: ProtocolVersion{Major: msg[4], Minor: msg[5]},
		Vendor:  VendorID(msg[6:8]),
		Prefix:  GuidPrefix(msg[8:20]),
	}, nil
}

// ParseMessage parses the header and splits the rest of the message
// into submessages. Submessages of unknown kinds are returned as well,
// their length field is enough to skip them.
func ParseMessage(msg []byte) (Header, []Submessage, error) {
	header, err := ParseHeader(msg)
	if err != nil {
		return Header{}, nil, err
	}

	subs := []Submessage{}

	pos := HeaderSize
	for pos < len(msg) {
		if len(msg)-pos < SubmessageHeaderSize {
			return header, subs, malformed("truncated submessage header at %d", pos)
		}

		sm := Submessage{
			ID:    SubmessageID(msg[pos]),
			Flags: msg[pos+1],
		}
		length := int(sm.ByteOrder().Uint16(msg[pos+2 : pos+4]))
		pos += SubmessageHeaderSize

		// A zero length extends the last submessage up to the end of the message
		if length == 0 && sm.ID != SubmessageInfoTS && sm.ID != SubmessagePad {
			length = len(msg) - pos
		}

		if pos+length > len(msg) {
			return header, subs, malformed("%s at %d overflows the message", sm.ID, pos)
		}

		sm.Body = msg[pos : pos+length]
		subs = append(subs, sm)

		pos += length
	}

	return header, subs, nil
}

func expectID(sm Submessage, id SubmessageID, minLen int) error {
	if sm.ID != id {
		return malformed("expected %s, got %s", id, sm.ID)
	}

	if len(sm.Body) < minLen {
		return malformed("%s shorter than %d bytes", id, minLen)
	}

	return nil
}

func readSequenceNumber(order binary.ByteOrder, buf []byte) SequenceNumber {
	return joinSequenceNumber(int32(order.Uint32(buf[0:4])), order.Uint32(buf[4:8]))
}

func readBitmap(order binary.ByteOrder, buf []byte, b *bitmap) (int, error) {
	if len(buf) < 4 {
		return 0, malformed("truncated bitmap")
	}

	numBits := order.Uint32(buf[0:4])
	if numBits > MaxSetBits {
		return 0, malformed("bitmap with %d bits", numBits)
	}

	b.numBits = numBits
	n := 4
	for i := range b.wordCount() {
		if len(buf) < n+4 {
			return 0, malformed("truncated bitmap")
		}

		b.words[i] = order.Uint32(buf[n : n+4])
		n += 4
	}

	return n, nil
}

// DecodeInfoDestination decodes an INFO_DST submessage.
func DecodeInfoDestination(sm Submessage) (GuidPrefix, error) {
	if err := expectID(sm, SubmessageInfoDst, GuidPrefixSize); err != nil {
		return GuidPrefix{}, err
	}

	return GuidPrefix(sm.Body[:GuidPrefixSize]), nil
}

// DecodeInfoTimestamp decodes an INFO_TS submessage.
func DecodeInfoTimestamp(sm Submessage) (Time, error) {
	if err := expectID(sm, SubmessageInfoTS, 0); err != nil {
		return Time{}, err
	}

	if sm.Flags&FlagInfoTSInvalidate != 0 {
		return TimeInvalid, nil
	}

	if len(sm.Body) < 8 {
		return Time{}, malformed("INFO_TS shorter than 8 bytes")
	}

	order := sm.ByteOrder()
	return Time{
		Seconds:  int32(order.Uint32(sm.Body[0:4])),
		Fraction: order.Uint32(sm.Body[4:8]),
	}, nil
}

// DecodeHeartbeat decodes a HEARTBEAT submessage.
func DecodeHeartbeat(sm Submessage) (Heartbeat, error) {
	if err := expectID(sm, SubmessageHeartbeat, 28); err != nil {
		return Heartbeat{}, err
	}

	order := sm.ByteOrder()
	return Heartbeat{
		ReaderID:   EntityID(sm.Body[0:4]),
		WriterID:   EntityID(sm.Body[4:8]),
		FirstSN:    readSequenceNumber(order, sm.Body[8:16]),
		LastSN:     readSequenceNumber(order, sm.Body[16:24]),
		Count:      Count(order.Uint32(sm.Body[24:28])),
		Final:      sm.Flags&FlagHeartbeatFinal != 0,
		Liveliness: sm.Flags&FlagHeartbeatLiveliness != 0,
	}, nil
}

// DecodeGap decodes a GAP submessage.
func DecodeGap(sm Submessage) (Gap, error) {
	if err := expectID(sm, SubmessageGap, 24); err != nil {
		return Gap{}, err
	}

	order := sm.ByteOrder()
	g := Gap{
		ReaderID: EntityID(sm.Body[0:4]),
		WriterID: EntityID(sm.Body[4:8]),
		GapStart: readSequenceNumber(order, sm.Body[8:16]),
	}

	g.GapList.Base = readSequenceNumber(order, sm.Body[16:24])
	if _, err := readBitmap(order, sm.Body[24:], &g.GapList.bits); err != nil {
		return Gap{}, err
	}

	return g, nil
}

// DecodeAckNack decodes an ACKNACK submessage.
func DecodeAckNack(sm Submessage) (AckNack, error) {
	if err := expectID(sm, SubmessageAckNack, 16); err != nil {
		return AckNack{}, err
	}

	order := sm.ByteOrder()
	an := AckNack{
		ReaderID: EntityID(sm.Body[0:4]),
		WriterID: EntityID(sm.Body[4:8]),
		Final:    sm.Flags&FlagAckNackFinal != 0,
	}

	an.State.Base = readSequenceNumber(order, sm.Body[8:16])
	n, err := readBitmap(order, sm.Body[16:], &an.State.bits)
	if err != nil {
		return AckNack{}, err
	}

	n += 16
	if len(sm.Body) < n+4 {
		return AckNack{}, malformed("ACKNACK without count")
	}
	an.Count = Count(order.Uint32(sm.Body[n : n+4]))

	return an, nil
}

// DecodeNackFrag decodes a NACK_FRAG submessage.
func DecodeNackFrag(sm Submessage) (NackFrag, error) {
	if err := expectID(sm, SubmessageNackFrag, 20); err != nil {
		return NackFrag{}, err
	}

	order := sm.ByteOrder()
	nf := NackFrag{
		ReaderID:       EntityID(sm.Body[0:4]),
		WriterID:       EntityID(sm.Body[4:8]),
		SequenceNumber: readSequenceNumber(order, sm.Body[8:16]),
	}

	nf.State.Base = FragmentNumber(order.Uint32(sm.Body[16:20]))
	n, err := readBitmap(order, sm.Body[20:], &nf.State.bits)
	if err != nil {
		return NackFrag{}, err
	}

	n += 20
	if len(sm.Body) < n+4 {
		return NackFrag{}, malformed("NACK_FRAG without count")
	}
	nf.Count = Count(order.Uint32(sm.Body[n : n+4]))

	return nf, nil
}

// DataView is a decoded DATA or DATA_FRAG submessage.
// The slices point into the parsed message.
type DataView struct {
	ReaderID       EntityID
	WriterID       EntityID
	SequenceNumber SequenceNumber

	// InlineQos holds the raw parameter list, sentinel included.
	InlineQos []byte

	// Payload is the serialized payload of a DATA (padding included)
	// or the fragment of a DATA_FRAG (exact length).
	Payload []byte

	// Fragment fields, only set for DATA_FRAG.
	FragmentStart FragmentNumber
	FragmentSize  uint16
	SampleSize    uint32
}

func skipInlineQos(order binary.ByteOrder, buf []byte) (int, error) {
	n := 0
	for {
		if len(buf) < n+4 {
			return 0, malformed("inline qos without sentinel")
		}

		pid := order.Uint16(buf[n : n+2])
		length := int(order.Uint16(buf[n+2 : n+4]))
		n += 4 + length

		if pid == pidSentinel {
			return n, nil
		}
	}
}

func decodeDataCommon(sm Submessage, qosFlag uint8, minLen int) (DataView, int, error) {
	order := sm.ByteOrder()

	dv := DataView{
		ReaderID:       EntityID(sm.Body[4:8]),
		WriterID:       EntityID(sm.Body[8:12]),
		SequenceNumber: readSequenceNumber(order, sm.Body[12:20]),
	}

	n := 4 + int(order.Uint16(sm.Body[2:4]))
	if n < minLen || n > len(sm.Body) {
		return DataView{}, 0, malformed("%s with bad octetsToInlineQos", sm.ID)
	}

	if sm.Flags&qosFlag != 0 {
		qosLen, err := skipInlineQos(order, sm.Body[n:])
		if err != nil {
			return DataView{}, 0, err
		}

		dv.InlineQos = sm.Body[n : n+qosLen]
		n += qosLen
	}

	return dv, n, nil
}

// DecodeData decodes a DATA submessage.
func DecodeData(sm Submessage) (DataView, error) {
	if err := expectID(sm, SubmessageData, dataFixedSize); err != nil {
		return DataView{}, err
	}

	dv, n, err := decodeDataCommon(sm, FlagDataInlineQos, dataFixedSize)
	if err != nil {
		return DataView{}, err
	}

	if sm.Flags&(FlagDataData|FlagDataKey) != 0 {
		dv.Payload = sm.Body[n:]
	}

	return dv, nil
}

// DecodeDataFrag decodes a DATA_FRAG submessage.
func DecodeDataFrag(sm Submessage) (DataView, error) {
	if err := expectID(sm, SubmessageDataFrag, dataFragFixedSize); err != nil {
		return DataView{}, err
	}

	dv, n, err := decodeDataCommon(sm, FlagDataFragInlineQos, dataFragFixedSize)
	if err != nil {
		return DataView{}, err
	}

	order := sm.ByteOrder()
	dv.FragmentStart = FragmentNumber(order.Uint32(sm.Body[20:24]))
	dv.FragmentSize = order.Uint16(sm.Body[26:28])
	dv.SampleSize = order.Uint32(sm.Body[28:32])

	if dv.FragmentStart < 1 || dv.FragmentSize == 0 {
		return DataView{}, malformed("DATA_FRAG with bad fragment fields")
	}

	offset := (int(dv.FragmentStart) - 1) * int(dv.FragmentSize)
	fragLen := min(int(dv.FragmentSize), int(dv.SampleSize)-offset)
	if fragLen < 0 || n+fragLen > len(sm.Body) {
		return DataView{}, malformed("DATA_FRAG fragment overflows the submessage")
	}

	dv.Payload = sm.Body[n : n+fragLen]

	return dv, nil
}
