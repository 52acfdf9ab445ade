package group

import (
	"github.com/FerroO2000/rtpsgroup/wire"
)

// AddData appends a DATA submessage carrying the change.
// If the source timestamp is enabled and the change has one,
// the DATA is preceded by an INFO_TS.
// It returns [ErrTooLargeForMessage] when the change must be fragmented.
func (g *Group) AddData(change *wire.Change, expectsInlineQos bool) error {
	return g.addSubmessage(func(b *wire.Buffer, dests []wire.Destination) error {
		return wire.WriteData(b, wire.Data{
			ReaderID:         remoteEntity(dests),
			WriterID:         g.endpoint.Entity,
			Change:           change,
			ExpectsInlineQos: expectsInlineQos,
		})
	}, g.timestampOf(change))
}

// AddDataFrag appends a DATA_FRAG submessage carrying
// the 1-based fragment of the change.
func (g *Group) AddDataFrag(change *wire.Change, fragmentNumber wire.FragmentNumber, expectsInlineQos bool) error {
	if fragmentNumber < 1 || uint32(fragmentNumber) > change.FragmentCount() {
		return ErrFragmentOutOfRange
	}

	return g.addSubmessage(func(b *wire.Buffer, dests []wire.Destination) error {
		return wire.WriteDataFrag(b, wire.DataFrag{
			ReaderID:         remoteEntity(dests),
			WriterID:         g.endpoint.Entity,
			Change:           change,
			FragmentNumber:   fragmentNumber,
			ExpectsInlineQos: expectsInlineQos,
		})
	}, g.timestampOf(change))
}

func (g *Group) timestampOf(change *wire.Change) wire.Time {
	if !g.cfg.SourceTimestamp {
		return wire.TimeInvalid
	}
	return wire.TimeFrom(change.SourceTimestamp)
}

// AddHeartbeat appends a HEARTBEAT announcing the sequence numbers
// available in the writer, from first to last.
func (g *Group) AddHeartbeat(first, last wire.SequenceNumber, count wire.Count, isFinal, liveliness bool) error {
	return g.addSubmessage(func(b *wire.Buffer, dests []wire.Destination) error {
		return wire.WriteHeartbeat(b, wire.Heartbeat{
			ReaderID:   remoteEntity(dests),
			WriterID:   g.endpoint.Entity,
			FirstSN:    first,
			LastSN:     last,
			Count:      count,
			Final:      isFinal,
			Liveliness: liveliness,
		})
	}, wire.TimeInvalid)
}

// AddAckNack appends an ACKNACK requesting the sequence numbers in the set
// and acknowledging every number below its base.
func (g *Group) AddAckNack(set wire.SequenceNumberSet, count wire.Count, final bool) error {
	return g.addSubmessage(func(b *wire.Buffer, dests []wire.Destination) error {
		return wire.WriteAckNack(b, wire.AckNack{
			ReaderID: g.endpoint.Entity,
			WriterID: remoteEntity(dests),
			State:    set,
			Count:    count,
			Final:    final,
		})
	}, wire.TimeInvalid)
}

// AddNackFrag appends a NACK_FRAG requesting the fragments in the set
// of the given sequence number.
func (g *Group) AddNackFrag(sn wire.SequenceNumber, set wire.FragmentNumberSet, count wire.Count) error {
	return g.addSubmessage(func(b *wire.Buffer, dests []wire.Destination) error {
		return wire.WriteNackFrag(b, wire.NackFrag{
			ReaderID:       g.endpoint.Entity,
			WriterID:       remoteEntity(dests),
			SequenceNumber: sn,
			State:          set,
			Count:          count,
		})
	}, wire.TimeInvalid)
}
