package wire

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_SequenceNumberSet(t *testing.T) {
	assert := assert.New(t)

	set := NewSequenceNumberSet(10)
	assert.True(set.Empty())

	assert.True(set.Add(10))
	assert.True(set.Add(12))
	assert.True(set.Add(41))
	assert.False(set.Add(9))
	assert.False(set.Add(10 + MaxSetBits))

	assert.True(set.Contains(12))
	assert.False(set.Contains(11))
	assert.Equal(uint32(32), set.NumBits())
	assert.Equal([]SequenceNumber{10, 12, 41}, slices.Collect(set.All()))

	buf := make([]byte, set.wireSize())
	assert.Equal(16, putSequenceNumberSet(buf, &set))
	assert.Equal([]byte{
		0, 0, 0, 0, 10, 0, 0, 0, // Base
		32, 0, 0, 0, // Num bits
		0x01, 0, 0, 0xa0, // Bitmap
	}, buf)
}

func Test_FragmentNumberSet(t *testing.T) {
	assert := assert.New(t)

	set := NewFragmentNumberSet(1)
	assert.True(set.Add(1))
	assert.True(set.Add(256))
	assert.False(set.Add(257))

	assert.Equal(uint32(256), set.NumBits())
	assert.Equal([]FragmentNumber{1, 256}, slices.Collect(set.All()))
	assert.Equal(4+4+32, set.wireSize())
}

func Test_WriteGap(t *testing.T) {
	assert := assert.New(t)

	list := NewSequenceNumberSet(4)
	list.Add(5)

	buf := NewBuffer(64)
	assert.NoError(WriteGap(buf, Gap{GapStart: 1, GapList: list}))
	assert.Equal(36, buf.Len())

	_, err := DecodeGap(Submessage{ID: SubmessageGap, Flags: FlagEndianness, Body: buf.Bytes()[4:]})
	assert.NoError(err)
}

func Test_WriteAckNack(t *testing.T) {
	assert := assert.New(t)

	state := NewSequenceNumberSet(3)
	state.Add(3)
	state.Add(6)

	buf := NewBuffer(64)
	an := AckNack{WriterID: EntityID{0, 0, 1, 0x02}, State: state, Count: 2, Final: true}
	assert.NoError(WriteAckNack(buf, an))

	decoded, err := DecodeAckNack(Submessage{ID: SubmessageAckNack, Flags: buf.Bytes()[1], Body: buf.Bytes()[4:]})
	assert.NoError(err)
	assert.Equal(an, decoded)
}

func Test_WriteNackFrag(t *testing.T) {
	assert := assert.New(t)

	state := NewFragmentNumberSet(2)
	state.Add(2)
	state.Add(40)

	buf := NewBuffer(64)
	nf := NackFrag{SequenceNumber: 11, State: state, Count: 1}
	assert.NoError(WriteNackFrag(buf, nf))

	decoded, err := DecodeNackFrag(Submessage{ID: SubmessageNackFrag, Flags: buf.Bytes()[1], Body: buf.Bytes()[4:]})
	assert.NoError(err)
	assert.Equal(nf, decoded)
}
