package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrSubmessageTooLarge is returned when the content of a submessage
// cannot be described by the 16-bit length field.
var ErrSubmessageTooLarge = errors.New("wire: submessage too large")

// SubmessageID is the kind of a submessage.
type SubmessageID uint8

// Submessage kinds.
const (
	SubmessagePad           SubmessageID = 0x01
	SubmessageAckNack       SubmessageID = 0x06
	SubmessageHeartbeat     SubmessageID = 0x07
	SubmessageGap           SubmessageID = 0x08
	SubmessageInfoTS        SubmessageID = 0x09
	SubmessageInfoSrc       SubmessageID = 0x0c
	SubmessageInfoDst       SubmessageID = 0x0e
	SubmessageNackFrag      SubmessageID = 0x12
	SubmessageHeartbeatFrag SubmessageID = 0x13
	SubmessageData          SubmessageID = 0x15
	SubmessageDataFrag      SubmessageID = 0x16
	SubmessageSecBody       SubmessageID = 0x30
	SubmessageSecPrefix     SubmessageID = 0x31
	SubmessageSecPostfix    SubmessageID = 0x32
)

func (id SubmessageID) String() string {
	switch id {
	case SubmessagePad:
		return "PAD"
	case SubmessageAckNack:
		return "ACKNACK"
	case SubmessageHeartbeat:
		return "HEARTBEAT"
	case SubmessageGap:
		return "GAP"
	case SubmessageInfoTS:
		return "INFO_TS"
	case SubmessageInfoSrc:
		return "INFO_SRC"
	case SubmessageInfoDst:
		return "INFO_DST"
	case SubmessageNackFrag:
		return "NACK_FRAG"
	case SubmessageHeartbeatFrag:
		return "HEARTBEAT_FRAG"
	case SubmessageData:
		return "DATA"
	case SubmessageDataFrag:
		return "DATA_FRAG"
	case SubmessageSecBody:
		return "SEC_BODY"
	case SubmessageSecPrefix:
		return "SEC_PREFIX"
	case SubmessageSecPostfix:
		return "SEC_POSTFIX"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(id))
	}
}

// Submessage flags. The meaning of every flag but the endianness one
// depends on the submessage kind.
const (
	FlagEndianness uint8 = 0x01

	FlagInfoTSInvalidate uint8 = 0x02

	FlagDataInlineQos uint8 = 0x02
	FlagDataData      uint8 = 0x04
	FlagDataKey       uint8 = 0x08

	FlagDataFragInlineQos uint8 = 0x02
	FlagDataFragKey       uint8 = 0x04

	FlagHeartbeatFinal      uint8 = 0x02
	FlagHeartbeatLiveliness uint8 = 0x04

	FlagAckNackFinal uint8 = 0x02
)

// SubmessageHeaderSize is the size of the header of every submessage.
const SubmessageHeaderSize = 4

const maxSubmessageContent = 0xffff

var le = binary.LittleEndian

func padTo4(n int) int {
	return (n + 3) &^ 3
}

// SubmessageSize returns the bytes taken by a submessage whose content
// is contentLen bytes long, header and padding included.
func SubmessageSize(contentLen int) int {
	return SubmessageHeaderSize + padTo4(contentLen)
}

// AllocSubmessage writes the header of a submessage whose content is
// contentLen bytes long and returns the zeroed content window.
// The content is padded to a 4-byte boundary and the length field
// counts the padded content.
// The E flag is always added to the given flags.
func (b *Buffer) AllocSubmessage(id SubmessageID, flags uint8, contentLen int) ([]byte, error) {
	padded := padTo4(contentLen)
	if padded > maxSubmessageContent {
		return nil, ErrSubmessageTooLarge
	}

	window, err := b.alloc(SubmessageHeaderSize + padded)
	if err != nil {
		return nil, err
	}

	window[0] = uint8(id)
	window[1] = flags | FlagEndianness
	le.PutUint16(window[2:4], uint16(padded))

	return window[SubmessageHeaderSize : SubmessageHeaderSize+contentLen], nil
}

func putEntityID(buf []byte, e EntityID) {
	copy(buf[:4], e[:])
}

func putSequenceNumber(buf []byte, sn SequenceNumber) {
	high, low := sn.split()
	le.PutUint32(buf[0:4], uint32(high))
	le.PutUint32(buf[4:8], low)
}

func putBitmap(buf []byte, b *bitmap) int {
	le.PutUint32(buf[0:4], b.numBits)

	n := 4
	for i := range b.wordCount() {
		le.PutUint32(buf[n:n+4], b.words[i])
		n += 4
	}

	return n
}

func putSequenceNumberSet(buf []byte, s *SequenceNumberSet) int {
	putSequenceNumber(buf[0:8], s.Base)
	return 8 + putBitmap(buf[8:], &s.bits)
}

func putFragmentNumberSet(buf []byte, s *FragmentNumberSet) int {
	le.PutUint32(buf[0:4], uint32(s.Base))
	return 4 + putBitmap(buf[4:], &s.bits)
}
