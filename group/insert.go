package group

import (
	"errors"
	"fmt"

	"github.com/FerroO2000/rtpsgroup/wire"
)

type encodeFunc func(b *wire.Buffer, dests []wire.Destination) error

// addSubmessage encodes a submessage into the scratch buffer,
// preceded by an INFO_TS when ts is valid, and inserts it into the message.
// When it returns an error the message is left as it was,
// unless the error comes from a flush.
func (g *Group) addSubmessage(encode encodeFunc, ts wire.Time) error {
	if g.closed {
		return ErrGroupClosed
	}

	dests, err := g.sender.Destinations(g.endpoint)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrResolve, err)
	}

	scratch := g.bufs.scratch
	scratch.Reset()

	tsLen := 0
	if ts.IsValid() {
		if err := wire.WriteInfoTimestamp(scratch, ts); err != nil {
			return g.encodeError(err)
		}
		tsLen = scratch.Len()
	}

	if err := encode(scratch, dests); err != nil {
		return g.encodeError(err)
	}

	effective, err := g.encoder.encode(scratch, tsLen)
	if err != nil {
		if errors.Is(err, ErrTooLargeForMessage) {
			g.metrics.incrementTooLarge()
		}
		return err
	}

	// The submessage must fit in a message holding only the header and the INFO_DST
	if len(effective) > g.capacity-g.headerLen-wire.InfoDestinationSize {
		g.metrics.incrementTooLarge()
		return ErrTooLargeForMessage
	}

	return g.insert(effective, dests)
}

func (g *Group) encodeError(err error) error {
	switch {
	case errors.Is(err, wire.ErrBufferFull), errors.Is(err, wire.ErrSubmessageTooLarge):
		g.metrics.incrementTooLarge()
		return ErrTooLargeForMessage

	case errors.Is(err, wire.ErrInvalidFragment):
		return ErrFragmentOutOfRange

	default:
		return err
	}
}

func (g *Group) insert(effective []byte, dests []wire.Destination) error {
	full := g.bufs.full

	// The destination changed, send what was framed for the previous one
	if g.framed && !sameDestinations(g.dests, dests) {
		if err := g.flush(); err != nil {
			return err
		}

		g.resetToHeader()
		g.metrics.incrementDestinationFlushes()
	}

	if g.pending > 0 {
		next := full.Len() + len(effective)
		if next > g.capacity || next > g.highWater {
			if err := g.flush(); err != nil {
				return err
			}

			g.metrics.incrementOverflowFlushes()
		}
	}

	if !g.framed {
		if err := wire.WriteInfoDestination(full, destinationPrefix(dests)); err != nil {
			return ErrTooLargeForMessage
		}

		g.framed = true
		g.dests = append(g.dests[:0], dests...)
	}

	if err := full.Append(effective); err != nil {
		return ErrTooLargeForMessage
	}

	g.pending++
	g.metrics.incrementAppended()

	return nil
}
