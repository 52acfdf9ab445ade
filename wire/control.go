package wire

// Heartbeat describes a HEARTBEAT submessage.
type Heartbeat struct {
	ReaderID EntityID
	WriterID EntityID

	// FirstSN and LastSN delimit the sequence numbers available in the writer.
	FirstSN SequenceNumber
	LastSN  SequenceNumber

	Count Count

	// Final states that the reader is not required to respond.
	Final bool
	// Liveliness states that the heartbeat only asserts the writer liveliness.
	Liveliness bool
}

// WriteHeartbeat writes a HEARTBEAT submessage.
func WriteHeartbeat(b *Buffer, hb Heartbeat) error {
	var flags uint8
	if hb.Final {
		flags |= FlagHeartbeatFinal
	}
	if hb.Liveliness {
		flags |= FlagHeartbeatLiveliness
	}

	buf, err := b.AllocSubmessage(SubmessageHeartbeat, flags, 28)
	if err != nil {
		return err
	}

	putEntityID(buf[0:4], hb.ReaderID)
	putEntityID(buf[4:8], hb.WriterID)
	putSequenceNumber(buf[8:16], hb.FirstSN)
	putSequenceNumber(buf[16:24], hb.LastSN)
	le.PutUint32(buf[24:28], uint32(hb.Count))

	return nil
}

// Gap describes a GAP submessage. The irrelevant sequence numbers are
// [GapStart, GapList.Base) plus the ones set in GapList.
type Gap struct {
	ReaderID EntityID
	WriterID EntityID

	GapStart SequenceNumber
	GapList  SequenceNumberSet
}

// WriteGap writes a GAP submessage.
func WriteGap(b *Buffer, g Gap) error {
	buf, err := b.AllocSubmessage(SubmessageGap, 0, 16+g.GapList.wireSize())
	if err != nil {
		return err
	}

	putEntityID(buf[0:4], g.ReaderID)
	putEntityID(buf[4:8], g.WriterID)
	putSequenceNumber(buf[8:16], g.GapStart)
	putSequenceNumberSet(buf[16:], &g.GapList)

	return nil
}

// AckNack describes an ACKNACK submessage.
type AckNack struct {
	ReaderID EntityID
	WriterID EntityID

	// State holds the sequence numbers requested by the reader.
	// Every number below the base is acknowledged.
	State SequenceNumberSet
	Count Count

	// Final states that the writer is not required to respond.
	Final bool
}

// WriteAckNack writes an ACKNACK submessage.
func WriteAckNack(b *Buffer, an AckNack) error {
	var flags uint8
	if an.Final {
		flags |= FlagAckNackFinal
	}

	size := 8 + an.State.wireSize() + 4

	buf, err := b.AllocSubmessage(SubmessageAckNack, flags, size)
	if err != nil {
		return err
	}

	putEntityID(buf[0:4], an.ReaderID)
	putEntityID(buf[4:8], an.WriterID)
	n := 8 + putSequenceNumberSet(buf[8:], &an.State)
	le.PutUint32(buf[n:n+4], uint32(an.Count))

	return nil
}

// NackFrag describes a NACK_FRAG submessage.
type NackFrag struct {
	ReaderID EntityID
	WriterID EntityID

	SequenceNumber SequenceNumber
	State          FragmentNumberSet
	Count          Count
}

// WriteNackFrag writes a NACK_FRAG submessage.
func WriteNackFrag(b *Buffer, nf NackFrag) error {
	size := 16 + nf.State.wireSize() + 4

	buf, err := b.AllocSubmessage(SubmessageNackFrag, 0, size)
	if err != nil {
		return err
	}

	putEntityID(buf[0:4], nf.ReaderID)
	putEntityID(buf[4:8], nf.WriterID)
	putSequenceNumber(buf[8:16], nf.SequenceNumber)
	n := 16 + putFragmentNumberSet(buf[16:], &nf.State)
	le.PutUint32(buf[n:n+4], uint32(nf.Count))

	return nil
}
