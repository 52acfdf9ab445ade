package group

import (
	"slices"
	"testing"

	"github.com/FerroO2000/rtpsgroup/wire"
	"github.com/stretchr/testify/assert"
)

func Test_buildGap(t *testing.T) {
	assert := assert.New(t)

	gap, consumed := buildGap([]wire.SequenceNumber{1, 2, 3, 5, 300, 600})
	assert.Equal(4, consumed)
	assert.Equal(wire.SequenceNumber(1), gap.GapStart)
	assert.Equal(wire.SequenceNumber(4), gap.GapList.Base)
	assert.Equal([]wire.SequenceNumber{5}, slices.Collect(gap.GapList.All()))

	// Only a run
	gap, consumed = buildGap([]wire.SequenceNumber{10, 11, 12})
	assert.Equal(3, consumed)
	assert.Equal(wire.SequenceNumber(10), gap.GapStart)
	assert.Equal(wire.SequenceNumber(13), gap.GapList.Base)
	assert.True(gap.GapList.Empty())

	// The window ends 255 numbers after the base
	gap, consumed = buildGap([]wire.SequenceNumber{1, 3, 257, 258})
	assert.Equal(3, consumed)
	assert.Equal(wire.SequenceNumber(2), gap.GapList.Base)
	assert.Equal([]wire.SequenceNumber{3, 257}, slices.Collect(gap.GapList.All()))
}

func Test_Group_AddGap(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	missing := []wire.SequenceNumber{600, 1, 2, 3, 5, 300, 2}
	input := slices.Clone(missing)

	res, err := g.AddGap(missing)
	assert.NoError(err)
	assert.Equal([]wire.SequenceNumber{1, 2, 3, 5}, res.Consumed)
	assert.Equal([]wire.SequenceNumber{300, 600}, res.Remaining)
	assert.Equal(input, missing)

	res, err = g.AddGap(nil)
	assert.NoError(err)
	assert.Empty(res.Consumed)
	assert.Empty(res.Remaining)

	assert.NoError(g.Finish())

	_, subs := parseSent(t, sender.sent[0])
	assert.Len(subs, 2)

	gap, err := wire.DecodeGap(subs[1])
	assert.NoError(err)
	assert.Equal(remoteA.Entity, gap.ReaderID)
	assert.Equal(testEndpoint.Entity, gap.WriterID)
	assert.Equal(wire.SequenceNumber(1), gap.GapStart)
	assert.Equal(wire.SequenceNumber(4), gap.GapList.Base)
	assert.True(gap.GapList.Contains(5))
}

func Test_Group_AddGaps(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	remaining, err := g.AddGaps([]wire.SequenceNumber{1, 2, 3, 5, 300, 600})
	assert.NoError(err)
	assert.Empty(remaining)

	assert.NoError(g.Finish())

	_, subs := parseSent(t, sender.sent[0])
	assert.Len(subs, 4)

	starts := []wire.SequenceNumber{}
	for _, sub := range subs[1:] {
		gap, err := wire.DecodeGap(sub)
		assert.NoError(err)
		starts = append(starts, gap.GapStart)
	}
	assert.Equal([]wire.SequenceNumber{1, 300, 600}, starts)
}

func Test_Group_AddGap_closed(t *testing.T) {
	assert := assert.New(t)

	g := newTestGroup(t, NewBuffers(testCapacity, false), newTestSender())
	assert.NoError(g.Finish())

	res, err := g.AddGap([]wire.SequenceNumber{3, 1})
	assert.ErrorIs(err, ErrGroupClosed)
	assert.Empty(res.Consumed)
	assert.Equal([]wire.SequenceNumber{1, 3}, res.Remaining)

	remaining, err := g.AddGaps([]wire.SequenceNumber{3, 1})
	assert.ErrorIs(err, ErrGroupClosed)
	assert.Equal([]wire.SequenceNumber{1, 3}, remaining)
}
