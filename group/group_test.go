package group

import (
	"context"
	"errors"
	"net/netip"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/FerroO2000/rtpsgroup/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCapacity = 16384

var (
	testParticipant = wire.GuidPrefix{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	testEndpoint    = wire.GUID{Prefix: testParticipant, Entity: wire.EntityID{0, 0, 1, 0x02}}

	remoteA = wire.GUID{
		Prefix: wire.GuidPrefix{0xa, 0xa, 0xa, 0xa, 0, 0, 0, 0, 0, 0, 0, 1},
		Entity: wire.EntityID{0, 0, 1, 0x07},
	}
	remoteB = wire.GUID{
		Prefix: wire.GuidPrefix{0xb, 0xb, 0xb, 0xb, 0, 0, 0, 0, 0, 0, 0, 2},
		Entity: wire.EntityID{0, 0, 2, 0x07},
	}
)

func newTestDestination(guid wire.GUID, addrPort string) wire.Destination {
	loc, err := wire.LocatorFromAddrPort("udp", netip.MustParseAddrPort(addrPort))
	if err != nil {
		panic(err)
	}

	return wire.Destination{GUID: guid, Locator: loc}
}

type sentMessage struct {
	msg   []byte
	dests []wire.Destination
}

type testSender struct {
	mux sync.Mutex

	dests      []wire.Destination
	resolveErr error
	sendErr    error
	block      bool

	sent []sentMessage
}

func newTestSender(dests ...wire.Destination) *testSender {
	return &testSender{
		dests: dests,
	}
}

func (ts *testSender) setDestinations(dests ...wire.Destination) {
	ts.mux.Lock()
	defer ts.mux.Unlock()

	ts.dests = dests
}

func (ts *testSender) setSendError(err error) {
	ts.mux.Lock()
	defer ts.mux.Unlock()

	ts.sendErr = err
}

func (ts *testSender) Destinations(_ wire.GUID) ([]wire.Destination, error) {
	ts.mux.Lock()
	defer ts.mux.Unlock()

	if ts.resolveErr != nil {
		return nil, ts.resolveErr
	}

	return slices.Clone(ts.dests), nil
}

func (ts *testSender) Send(ctx context.Context, msg []byte, dests []wire.Destination, _ time.Time) error {
	ts.mux.Lock()
	block := ts.block
	sendErr := ts.sendErr
	ts.mux.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}

	if sendErr != nil {
		return sendErr
	}

	ts.mux.Lock()
	defer ts.mux.Unlock()

	ts.sent = append(ts.sent, sentMessage{
		msg:   slices.Clone(msg),
		dests: slices.Clone(dests),
	})

	return nil
}

func (ts *testSender) sentSizes() []int {
	ts.mux.Lock()
	defer ts.mux.Unlock()

	sizes := make([]int, 0, len(ts.sent))
	for _, sm := range ts.sent {
		sizes = append(sizes, len(sm.msg))
	}
	return sizes
}

func newTestGroup(t *testing.T, bufs *Buffers, sender Sender, opts ...Option) *Group {
	t.Helper()

	g, err := New(testParticipant, testEndpoint, bufs, sender, time.Now().Add(time.Minute), opts...)
	require.NoError(t, err)

	return g
}

// newSizedChange returns a change whose DATA submessage is exactly size bytes long.
func newSizedChange(sn wire.SequenceNumber, size int) *wire.Change {
	return &wire.Change{
		Kind:           wire.ChangeKindAlive,
		SequenceNumber: sn,
		Payload:        make([]byte, size-wire.SubmessageHeaderSize-20),
	}
}

func parseSent(t *testing.T, sm sentMessage) (wire.Header, []wire.Submessage) {
	t.Helper()

	header, subs, err := wire.ParseMessage(sm.msg)
	require.NoError(t, err)

	return header, subs
}

func Test_Group_scenarioA(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	for sn := range 3 {
		assert.NoError(g.AddData(newSizedChange(wire.SequenceNumber(sn+1), 4000), false))
	}
	assert.Empty(sender.sentSizes())

	assert.NoError(g.Finish())
	assert.Equal([]int{12036}, sender.sentSizes())

	header, subs := parseSent(t, sender.sent[0])
	assert.Equal(testParticipant, header.Prefix)
	assert.Len(subs, 4)

	dst, err := wire.DecodeInfoDestination(subs[0])
	assert.NoError(err)
	assert.Equal(remoteA.Prefix, dst)

	for idx, sub := range subs[1:] {
		dv, err := wire.DecodeData(sub)
		assert.NoError(err)
		assert.Equal(wire.SequenceNumber(idx+1), dv.SequenceNumber)
		assert.Equal(remoteA.Entity, dv.ReaderID)
		assert.Equal(testEndpoint.Entity, dv.WriterID)
	}
}

func Test_Group_scenarioB(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	for sn := range 4 {
		assert.NoError(g.AddData(newSizedChange(wire.SequenceNumber(sn+1), 4000), false))
	}
	assert.Empty(sender.sentSizes())

	// 16036 + 4000 does not fit anymore
	assert.NoError(g.AddData(newSizedChange(5, 4000), false))
	assert.Equal([]int{16036}, sender.sentSizes())
	assert.Equal(uint64(16036+4036), g.BytesProcessed())

	assert.NoError(g.Finish())
	assert.Equal([]int{16036, 4036}, sender.sentSizes())

	// The second message is framed again
	_, subs := parseSent(t, sender.sent[1])
	assert.Len(subs, 2)
	assert.Equal(wire.SubmessageInfoDst, subs[0].ID)

	dv, err := wire.DecodeData(subs[1])
	assert.NoError(err)
	assert.Equal(wire.SequenceNumber(5), dv.SequenceNumber)
}

func Test_Group_singleSendWhenFits(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	// Between 75% and 100% of the capacity
	for sn := range 4 {
		assert.NoError(g.AddData(newSizedChange(wire.SequenceNumber(sn+1), 3500), false))
	}
	assert.Empty(sender.sentSizes())

	assert.NoError(g.Finish())
	assert.Equal([]int{wire.HeaderSize + wire.InfoDestinationSize + 4*3500}, sender.sentSizes())
}

func Test_Group_highWaterMark(t *testing.T) {
	assert := assert.New(t)

	cfg := NewConfig()
	cfg.HighWaterMark = 0.75

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender, WithConfig(cfg))

	// 12036 + 4000 fits but goes over 12288
	for sn := range 4 {
		assert.NoError(g.AddData(newSizedChange(wire.SequenceNumber(sn+1), 4000), false))
	}
	assert.Equal([]int{12036}, sender.sentSizes())
	assert.Equal(uint64(12036+4036), g.BytesProcessed())

	assert.NoError(g.Finish())
	assert.Equal([]int{12036, 4036}, sender.sentSizes())
}

func Test_Group_scenarioC(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.ErrorIs(g.AddData(newSizedChange(1, 16400), false), ErrTooLargeForMessage)
	assert.Equal(wire.HeaderSize, g.bufs.full.Len())
	assert.False(g.framed)
	assert.Equal(uint64(wire.HeaderSize), g.BytesProcessed())

	assert.NoError(g.Finish())
	assert.Empty(sender.sentSizes())
}

func Test_Group_tooLargeRegardlessOfFill(t *testing.T) {
	assert := assert.New(t)

	maxSize := testCapacity - wire.HeaderSize - wire.InfoDestinationSize

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	// Empty message
	assert.ErrorIs(g.AddData(newSizedChange(1, maxSize+4), false), ErrTooLargeForMessage)
	assert.Equal(wire.HeaderSize, g.bufs.full.Len())

	// Partially full message
	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))
	before := g.bufs.full.Len()
	processed := g.BytesProcessed()

	assert.ErrorIs(g.AddData(newSizedChange(2, maxSize+4), false), ErrTooLargeForMessage)
	assert.Equal(before, g.bufs.full.Len())
	assert.Equal(processed, g.BytesProcessed())
	assert.Empty(sender.sentSizes())

	// The largest submessage still fits, alone
	assert.NoError(g.AddData(newSizedChange(3, maxSize), false))
	assert.Equal([]int{before}, sender.sentSizes())

	assert.NoError(g.Finish())
	assert.Equal([]int{before, testCapacity}, sender.sentSizes())
}

func Test_Group_scenarioD(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.AddHeartbeat(1, 10, 1, true, false))
	assert.NoError(g.AddHeartbeat(1, 10, 2, false, true))
	assert.NoError(g.Finish())

	_, subs := parseSent(t, sender.sent[0])
	assert.Len(subs, 3)

	assert.NotZero(subs[1].Flags & wire.FlagHeartbeatFinal)
	assert.Zero(subs[2].Flags & wire.FlagHeartbeatFinal)

	hb, err := wire.DecodeHeartbeat(subs[2])
	assert.NoError(err)
	assert.True(hb.Liveliness)
	assert.Equal(wire.Count(2), hb.Count)
	assert.Equal(remoteA.Entity, hb.ReaderID)
}

func Test_Group_destinationChange(t *testing.T) {
	assert := assert.New(t)

	dstA := newTestDestination(remoteA, "127.0.0.1:7400")
	dstB := newTestDestination(remoteB, "127.0.0.1:7410")

	sender := newTestSender(dstA)
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))
	assert.NoError(g.AddHeartbeat(1, 2, 2, false, false))
	assert.Empty(sender.sentSizes())

	sender.setDestinations(dstB)
	assert.NoError(g.AddHeartbeat(1, 3, 3, false, false))
	assert.Len(sender.sentSizes(), 1)

	// Same destinations, no flush
	sender.setDestinations(dstB)
	assert.NoError(g.AddHeartbeat(1, 4, 4, false, false))
	assert.Len(sender.sentSizes(), 1)

	assert.NoError(g.Finish())
	assert.Len(sender.sentSizes(), 2)

	assert.Equal([]wire.Destination{dstA}, sender.sent[0].dests)
	assert.Equal([]wire.Destination{dstB}, sender.sent[1].dests)

	_, subs := parseSent(t, sender.sent[0])
	assert.Len(subs, 3)
	dst, err := wire.DecodeInfoDestination(subs[0])
	assert.NoError(err)
	assert.Equal(remoteA.Prefix, dst)

	_, subs = parseSent(t, sender.sent[1])
	assert.Len(subs, 3)
	dst, err = wire.DecodeInfoDestination(subs[0])
	assert.NoError(err)
	assert.Equal(remoteB.Prefix, dst)
}

func Test_Group_destinationSetOrder(t *testing.T) {
	assert := assert.New(t)

	dstA := newTestDestination(remoteA, "127.0.0.1:7400")
	dstB := newTestDestination(remoteB, "127.0.0.1:7410")

	sender := newTestSender(dstA, dstB)
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))

	sender.setDestinations(dstB, dstA)
	assert.NoError(g.AddHeartbeat(1, 2, 2, false, false))

	assert.NoError(g.Finish())
	assert.Len(sender.sentSizes(), 1)

	// Different participants: unknown destination and unknown reader
	_, subs := parseSent(t, sender.sent[0])
	dst, err := wire.DecodeInfoDestination(subs[0])
	assert.NoError(err)
	assert.True(dst.IsUnknown())

	hb, err := wire.DecodeHeartbeat(subs[1])
	assert.NoError(err)
	assert.Equal(wire.EntityIDUnknown, hb.ReaderID)
}

func Test_Group_destinationDuplicates(t *testing.T) {
	assert := assert.New(t)

	dstA := newTestDestination(remoteA, "127.0.0.1:7400")
	dstB := newTestDestination(remoteB, "127.0.0.1:7410")

	sender := newTestSender(dstA, dstA)
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.AddData(newSizedChange(1, 100), false))

	// Same length, different set
	sender.setDestinations(dstA, dstB)
	assert.NoError(g.AddData(newSizedChange(2, 100), false))
	assert.Len(sender.sentSizes(), 1)

	// Same set, different length
	sender.setDestinations(dstB, dstA, dstB)
	assert.NoError(g.AddData(newSizedChange(3, 100), false))
	assert.Len(sender.sentSizes(), 1)

	assert.NoError(g.Finish())
	assert.Len(sender.sentSizes(), 2)

	_, subs := parseSent(t, sender.sent[0])
	dst, err := wire.DecodeInfoDestination(subs[0])
	assert.NoError(err)
	assert.Equal(remoteA.Prefix, dst)
}

func Test_Group_idempotentFlush(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.FlushAndReset())
	assert.Empty(sender.sentSizes())

	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))
	assert.NoError(g.FlushAndReset())
	assert.NoError(g.FlushAndReset())
	assert.Len(sender.sentSizes(), 1)

	// The group can be reused
	assert.NoError(g.AddHeartbeat(1, 2, 2, false, false))
	assert.NoError(g.Finish())
	assert.Len(sender.sentSizes(), 2)
}

func Test_Group_bytesProcessed(t *testing.T) {
	assert := assert.New(t)

	dstA := newTestDestination(remoteA, "127.0.0.1:7400")
	dstB := newTestDestination(remoteB, "127.0.0.1:7410")

	sender := newTestSender(dstA)
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	last := g.BytesProcessed()
	assert.Equal(uint64(wire.HeaderSize), last)

	check := func() {
		curr := g.BytesProcessed()
		assert.GreaterOrEqual(curr, last)
		last = curr
	}

	for sn := range 10 {
		assert.NoError(g.AddData(newSizedChange(wire.SequenceNumber(sn+1), 3000), false))
		check()

		if sn == 5 {
			sender.setDestinations(dstB)
		}

		assert.NoError(g.AddHeartbeat(1, wire.SequenceNumber(sn+1), wire.Count(sn+1), false, false))
		check()
	}

	_ = g.AddData(newSizedChange(11, 20000), false)
	check()

	assert.NoError(g.FlushAndReset())
	check()

	total := 0
	for _, size := range sender.sentSizes() {
		total += size
	}
	assert.Equal(uint64(total+wire.HeaderSize), g.BytesProcessed())

	assert.NoError(g.Finish())
}

func Test_Group_fragments(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	change := &wire.Change{
		SequenceNumber: 1,
		Payload:        []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		FragmentSize:   4,
	}

	assert.ErrorIs(g.AddDataFrag(change, 0, false), ErrFragmentOutOfRange)
	assert.ErrorIs(g.AddDataFrag(change, 4, false), ErrFragmentOutOfRange)
	assert.ErrorIs(g.AddDataFrag(&wire.Change{Payload: []byte{1}}, 1, false), ErrFragmentOutOfRange)
	assert.Equal(wire.HeaderSize, g.bufs.full.Len())

	for fn := range wire.FragmentNumber(3) {
		assert.NoError(g.AddDataFrag(change, fn+1, false))
	}
	assert.NoError(g.Finish())

	_, subs := parseSent(t, sender.sent[0])
	assert.Len(subs, 4)

	payload := []byte{}
	for _, sub := range subs[1:] {
		dv, err := wire.DecodeDataFrag(sub)
		assert.NoError(err)
		payload = append(payload, dv.Payload...)
	}
	assert.Equal(change.Payload, payload)
}

func Test_Group_sourceTimestamp(t *testing.T) {
	assert := assert.New(t)

	ts := time.Unix(1_700_000_000, 250_000_000)
	change := &wire.Change{SequenceNumber: 1, SourceTimestamp: ts, Payload: []byte{0, 1, 0, 0}}

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.AddData(change, false))
	assert.NoError(g.AddData(&wire.Change{SequenceNumber: 2, Payload: []byte{0, 1, 0, 0}}, false))
	assert.NoError(g.Finish())

	_, subs := parseSent(t, sender.sent[0])
	ids := []wire.SubmessageID{}
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	assert.Equal([]wire.SubmessageID{
		wire.SubmessageInfoDst, wire.SubmessageInfoTS, wire.SubmessageData, wire.SubmessageData,
	}, ids)

	decoded, err := wire.DecodeInfoTimestamp(subs[1])
	assert.NoError(err)
	assert.True(decoded.Std().Equal(ts))

	// Disabled by configuration
	cfg := NewConfig()
	cfg.SourceTimestamp = false

	sender = newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g = newTestGroup(t, NewBuffers(testCapacity, false), sender, WithConfig(cfg))

	assert.NoError(g.AddData(change, false))
	assert.NoError(g.Finish())

	_, subs = parseSent(t, sender.sent[0])
	assert.Len(subs, 2)
	assert.Equal(wire.SubmessageData, subs[1].ID)
}

func Test_Group_acknacks(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	snSet := wire.NewSequenceNumberSet(5)
	snSet.Add(6)
	assert.NoError(g.AddAckNack(snSet, 3, true))

	fnSet := wire.NewFragmentNumberSet(1)
	fnSet.Add(2)
	assert.NoError(g.AddNackFrag(7, fnSet, 4))

	assert.NoError(g.Finish())

	_, subs := parseSent(t, sender.sent[0])
	assert.Len(subs, 3)

	an, err := wire.DecodeAckNack(subs[1])
	assert.NoError(err)
	assert.Equal(testEndpoint.Entity, an.ReaderID)
	assert.Equal(remoteA.Entity, an.WriterID)
	assert.True(an.Final)
	assert.True(an.State.Contains(6))

	nf, err := wire.DecodeNackFrag(subs[2])
	assert.NoError(err)
	assert.Equal(wire.SequenceNumber(7), nf.SequenceNumber)
	assert.True(nf.State.Contains(2))
	assert.Equal(wire.Count(4), nf.Count)
}

func Test_Group_bytesProcessedAfterFinish(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	bufs := NewBuffers(testCapacity, false)

	g := newTestGroup(t, bufs, sender)
	assert.NoError(g.AddData(newSizedChange(1, 1000), false))
	assert.NoError(g.Finish())
	assert.Equal(uint64(wire.HeaderSize+wire.InfoDestinationSize+1000), g.BytesProcessed())

	// Failed send, the discarded message still counts
	sender.setSendError(errors.New("boom"))

	failed := newTestGroup(t, bufs, sender)
	assert.NoError(failed.AddData(newSizedChange(1, 2000), false))
	processed := failed.BytesProcessed()

	assert.ErrorIs(failed.Finish(), ErrTransportSend)
	assert.Equal(processed, failed.BytesProcessed())

	// The buffers now belong to another group
	sender.setSendError(nil)
	next := newTestGroup(t, bufs, sender)
	assert.NoError(next.AddData(newSizedChange(1, 3000), false))

	assert.Equal(processed, failed.BytesProcessed())
	assert.Equal(uint64(wire.HeaderSize+wire.InfoDestinationSize+1000), g.BytesProcessed())

	assert.NoError(next.Finish())
}

func Test_Group_timeout(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))

	// Deadline already passed
	g, err := New(testParticipant, testEndpoint, NewBuffers(testCapacity, false), sender, time.Now().Add(-time.Second))
	assert.NoError(err)

	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))
	processed := g.BytesProcessed()

	assert.ErrorIs(g.FlushAndReset(), ErrTimeout)
	assert.Equal(processed, g.BytesProcessed())
	assert.ErrorIs(g.Finish(), ErrTimeout)
	assert.Empty(sender.sentSizes())

	// Deadline reached while blocked in the transport
	sender.block = true
	g, err = New(testParticipant, testEndpoint, NewBuffers(testCapacity, false), sender, time.Now().Add(20*time.Millisecond))
	assert.NoError(err)

	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))

	start := time.Now()
	err = g.Finish()
	assert.ErrorIs(err, ErrTimeout)
	assert.ErrorIs(err, context.DeadlineExceeded)
	assert.Less(time.Since(start), time.Second)
}

func Test_Group_transportError(t *testing.T) {
	assert := assert.New(t)

	errBoom := errors.New("boom")

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	sender.setSendError(errBoom)

	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)
	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))

	err := g.FlushAndReset()
	assert.ErrorIs(err, ErrTransportSend)
	assert.ErrorIs(err, errBoom)

	// The message is still pending and can be sent again
	sender.setSendError(nil)
	assert.NoError(g.FlushAndReset())
	assert.Len(sender.sentSizes(), 1)

	assert.NoError(g.Finish())
}

func Test_Group_resolveError(t *testing.T) {
	assert := assert.New(t)

	errNoRoute := errors.New("no route")

	sender := newTestSender()
	sender.resolveErr = errNoRoute

	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	err := g.AddHeartbeat(1, 1, 1, false, false)
	assert.ErrorIs(err, ErrResolve)
	assert.ErrorIs(err, errNoRoute)

	assert.NoError(g.Finish())
}

func Test_Group_noDestinations(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender()
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))
	assert.NoError(g.FlushAndReset())

	assert.Empty(sender.sentSizes())
	assert.Equal(uint64(wire.HeaderSize+wire.InfoDestinationSize+32+wire.HeaderSize), g.BytesProcessed())

	assert.NoError(g.Finish())
}

func Test_Group_construction(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender()
	deadline := time.Now().Add(time.Minute)

	_, err := New(testParticipant, testEndpoint, NewBuffers(testCapacity, false), sender, time.Time{})
	assert.ErrorIs(err, ErrNoDeadline)

	_, err = New(testParticipant, testEndpoint, nil, sender, deadline)
	assert.ErrorIs(err, ErrMissingBuffers)

	_, err = New(testParticipant, testEndpoint, NewBuffers(testCapacity, false), nil, deadline)
	assert.ErrorIs(err, ErrMissingSender)

	_, err = New(testParticipant, testEndpoint, NewBuffers(MinCapacity-1, false), sender, deadline)
	assert.ErrorIs(err, ErrCapacityTooSmall)

	_, err = New(testParticipant, testEndpoint, NewBuffers(testCapacity, false), sender, deadline, WithCrypto(&failingCrypto{}))
	assert.ErrorIs(err, ErrNoEnvelopeBuffer)

	// Buffers can be borrowed by one group at a time
	bufs := NewBuffers(testCapacity, false)

	g, err := New(testParticipant, testEndpoint, bufs, sender, deadline)
	assert.NoError(err)
	assert.True(bufs.InUse())
	assert.Equal(wire.HeaderSize, bufs.full.Len())

	_, err = New(testParticipant, testEndpoint, bufs, sender, deadline)
	assert.ErrorIs(err, ErrBuffersInUse)

	assert.NoError(g.Finish())
	assert.False(bufs.InUse())

	g, err = New(testParticipant, testEndpoint, bufs, sender, deadline)
	assert.NoError(err)
	assert.NoError(g.Close())
}

func Test_Group_closed(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	assert.NoError(g.Finish())

	assert.ErrorIs(g.Finish(), ErrGroupClosed)
	assert.ErrorIs(g.FlushAndReset(), ErrGroupClosed)
	assert.ErrorIs(g.AddHeartbeat(1, 1, 1, false, false), ErrGroupClosed)

	assert.NotPanics(g.Release)
}

func Test_Group_release(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	bufs := NewBuffers(testCapacity, false)

	func() {
		g := newTestGroup(t, bufs, sender)
		defer g.Release()

		assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))
	}()

	assert.Len(sender.sentSizes(), 1)
	assert.False(bufs.InUse())

	if debugAssertions {
		t.Skip("release panics on failure with debug assertions")
	}

	sender.setSendError(errors.New("boom"))

	g := newTestGroup(t, bufs, sender)
	assert.NoError(g.AddHeartbeat(1, 1, 1, false, false))
	assert.NotPanics(g.Release)
	assert.False(bufs.InUse())
}

func Test_Group_order(t *testing.T) {
	assert := assert.New(t)

	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	g := newTestGroup(t, NewBuffers(testCapacity, false), sender)

	expected := []wire.SubmessageID{wire.SubmessageInfoDst}
	for sn := range 50 {
		if sn%3 == 0 {
			assert.NoError(g.AddHeartbeat(1, wire.SequenceNumber(sn), 1, false, false))
			expected = append(expected, wire.SubmessageHeartbeat)
			continue
		}

		assert.NoError(g.AddData(newSizedChange(wire.SequenceNumber(sn), 100), false))
		expected = append(expected, wire.SubmessageData)
	}
	assert.NoError(g.Finish())

	assert.Len(sender.sentSizes(), 1)

	_, subs := parseSent(t, sender.sent[0])
	ids := []wire.SubmessageID{}
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	assert.Equal(expected, ids)
}

func Benchmark_Group(b *testing.B) {
	sender := newTestSender(newTestDestination(remoteA, "127.0.0.1:7400"))
	bufs := NewBuffers(DefaultCapacity, false)
	change := newSizedChange(1, 1024)

	g, err := New(testParticipant, testEndpoint, bufs, sender, time.Now().Add(time.Hour))
	if err != nil {
		b.Fatal(err)
	}
	defer g.Release()

	for b.Loop() {
		if err := g.AddData(change, false); err != nil {
			b.Fatal(err)
		}

		sender.mux.Lock()
		sender.sent = sender.sent[:0]
		sender.mux.Unlock()
	}
}
