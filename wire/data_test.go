package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_WriteData(t *testing.T) {
	assert := assert.New(t)

	change := &Change{
		Kind:           ChangeKindAlive,
		SequenceNumber: 7,
		Payload:        []byte{0, 1, 0, 0, 0xaa},
	}

	buf := NewBuffer(128)
	assert.NoError(WriteData(buf, Data{
		ReaderID: EntityIDUnknown,
		WriterID: EntityID{0, 0, 1, 0x02},
		Change:   change,
	}))

	// 4 header + 20 fixed + 5 payload padded to 8
	assert.Equal(32, buf.Len())

	b := buf.Bytes()
	assert.Equal(uint8(0x15), b[0])
	assert.Equal(FlagEndianness|FlagDataData, b[1])
	assert.Equal([]byte{28, 0}, b[2:4])
	assert.Equal([]byte{0, 0, 16, 0}, b[4:8])
	assert.Equal([]byte{0, 0, 1, 0x02}, b[12:16])
	assert.Equal([]byte{0, 0, 0, 0, 7, 0, 0, 0}, b[16:24])
	assert.Equal(change.Payload, b[24:29])
	assert.Equal([]byte{0, 0, 0}, b[29:32])
}

func Test_WriteData_size(t *testing.T) {
	assert := assert.New(t)

	buf := NewBuffer(8192)
	assert.NoError(WriteData(buf, Data{
		Change: &Change{SequenceNumber: 1, Payload: make([]byte, 3976)},
	}))
	assert.Equal(4000, buf.Len())
}

func Test_WriteData_disposed(t *testing.T) {
	assert := assert.New(t)

	handle := InstanceHandle{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	change := &Change{
		Kind:           ChangeKindNotAliveDisposed,
		SequenceNumber: 3,
		InstanceHandle: handle,
		Payload:        []byte{1, 2, 3, 4},
	}

	buf := NewBuffer(128)
	assert.NoError(WriteData(buf, Data{Change: change}))

	// 4 header + 20 fixed + 8 status info + 20 key hash + 4 sentinel
	assert.Equal(56, buf.Len())

	sm := Submessage{ID: SubmessageData, Flags: buf.Bytes()[1], Body: buf.Bytes()[4:]}
	assert.Equal(FlagEndianness|FlagDataInlineQos, sm.Flags)

	dv, err := DecodeData(sm)
	assert.NoError(err)
	assert.Equal(SequenceNumber(3), dv.SequenceNumber)
	assert.Nil(dv.Payload)

	assert.Equal([]byte{
		0x71, 0, 4, 0, 0, 0, 0, 0x01, // Status info
		0x70, 0, 16, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, // Key hash
		0x01, 0, 0, 0, // Sentinel
	}, dv.InlineQos)
}

func Test_WriteDataFrag(t *testing.T) {
	assert := assert.New(t)

	change := &Change{
		SequenceNumber: 9,
		Payload:        []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		FragmentSize:   4,
	}
	assert.Equal(uint32(3), change.FragmentCount())

	buf := NewBuffer(128)
	assert.NoError(WriteDataFrag(buf, DataFrag{Change: change, FragmentNumber: 3}))

	// 4 header + 32 fixed + 2 bytes of fragment padded to 4
	assert.Equal(40, buf.Len())

	sm := Submessage{ID: SubmessageDataFrag, Flags: buf.Bytes()[1], Body: buf.Bytes()[4:]}
	dv, err := DecodeDataFrag(sm)
	assert.NoError(err)
	assert.Equal(FragmentNumber(3), dv.FragmentStart)
	assert.Equal(uint16(4), dv.FragmentSize)
	assert.Equal(uint32(10), dv.SampleSize)
	assert.Equal([]byte{8, 9}, dv.Payload)

	assert.ErrorIs(WriteDataFrag(buf, DataFrag{Change: change, FragmentNumber: 4}), ErrInvalidFragment)
	assert.ErrorIs(WriteDataFrag(buf, DataFrag{Change: change, FragmentNumber: 0}), ErrInvalidFragment)
	assert.Equal(40, buf.Len())
}

func Test_ParseMessage(t *testing.T) {
	assert := assert.New(t)

	ts := time.Unix(1700000000, 0)
	change := &Change{SequenceNumber: 42, SourceTimestamp: ts, Payload: []byte{0, 1, 0, 0, 1, 2, 3, 4}}

	buf := NewBuffer(256)
	assert.NoError(WriteHeader(buf, Header{Version: DefaultProtocolVersion, Prefix: testPrefix}))
	assert.NoError(WriteInfoDestination(buf, testPrefix))
	assert.NoError(WriteInfoTimestamp(buf, TimeFrom(ts)))
	assert.NoError(WriteData(buf, Data{Change: change}))
	assert.NoError(WriteGap(buf, Gap{GapStart: 1, GapList: NewSequenceNumberSet(5)}))

	header, subs, err := ParseMessage(buf.Bytes())
	assert.NoError(err)
	assert.Equal(testPrefix, header.Prefix)
	assert.Len(subs, 4)

	dst, err := DecodeInfoDestination(subs[0])
	assert.NoError(err)
	assert.Equal(testPrefix, dst)

	decodedTS, err := DecodeInfoTimestamp(subs[1])
	assert.NoError(err)
	assert.True(decodedTS.Std().Equal(ts))

	dv, err := DecodeData(subs[2])
	assert.NoError(err)
	assert.Equal(SequenceNumber(42), dv.SequenceNumber)
	assert.Equal(change.Payload, dv.Payload)

	gap, err := DecodeGap(subs[3])
	assert.NoError(err)
	assert.Equal(SequenceNumber(1), gap.GapStart)
	assert.Equal(SequenceNumber(5), gap.GapList.Base)

	_, err = DecodeHeartbeat(subs[3])
	assert.ErrorIs(err, ErrMalformed)
}

func Test_ParseMessage_malformed(t *testing.T) {
	assert := assert.New(t)

	_, _, err := ParseMessage([]byte("RTPX"))
	assert.ErrorIs(err, ErrMalformed)

	buf := NewBuffer(64)
	assert.NoError(WriteHeader(buf, Header{Prefix: testPrefix}))
	assert.NoError(WriteInfoDestination(buf, testPrefix))

	_, _, err = ParseMessage(buf.Bytes()[:buf.Len()-2])
	assert.ErrorIs(err, ErrMalformed)
}

func Test_ParseMessage_bigEndian(t *testing.T) {
	assert := assert.New(t)

	buf := NewBuffer(64)
	assert.NoError(WriteHeader(buf, Header{Prefix: testPrefix}))

	msg := append(buf.Bytes(),
		0x07, 0x02, 0, 28,
		0, 0, 0, 0,
		0, 0, 1, 0x02,
		0, 0, 0, 0, 0, 0, 0, 1,
		0, 0, 0, 0, 0, 0, 0, 9,
		0, 0, 0, 4,
	)

	_, subs, err := ParseMessage(msg)
	assert.NoError(err)
	assert.Len(subs, 1)

	hb, err := DecodeHeartbeat(subs[0])
	assert.NoError(err)
	assert.Equal(SequenceNumber(1), hb.FirstSN)
	assert.Equal(SequenceNumber(9), hb.LastSN)
	assert.Equal(Count(4), hb.Count)
	assert.True(hb.Final)
}
