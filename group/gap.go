package group

import (
	"slices"

	"github.com/FerroO2000/rtpsgroup/wire"
)

// GapResult reports which of the sequence numbers passed to [Group.AddGap]
// made it into the GAP submessage.
type GapResult struct {
	// Consumed are the numbers declared irrelevant by the GAP, in ascending order.
	Consumed []wire.SequenceNumber
	// Remaining are the numbers that did not fit, in ascending order.
	Remaining []wire.SequenceNumber
}

// AddGap appends a GAP declaring irrelevant the given sequence numbers.
// A single GAP holds the leading run of consecutive numbers plus the numbers
// falling in the 256 bit window that follows it: the others are returned
// in the result and need another call.
// The given slice is not modified. Duplicates are ignored.
// On error nothing is consumed.
func (g *Group) AddGap(missing []wire.SequenceNumber) (GapResult, error) {
	sorted := slices.Clone(missing)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	if len(sorted) == 0 {
		return GapResult{}, nil
	}

	gap, consumed := buildGap(sorted)

	err := g.addSubmessage(func(b *wire.Buffer, dests []wire.Destination) error {
		gap.ReaderID = remoteEntity(dests)
		gap.WriterID = g.endpoint.Entity
		return wire.WriteGap(b, gap)
	}, wire.TimeInvalid)

	if err != nil {
		return GapResult{Remaining: sorted}, err
	}

	return GapResult{
		Consumed:  sorted[:consumed:consumed],
		Remaining: sorted[consumed:],
	}, nil
}

// AddGaps appends as many GAP submessages as needed to declare
// all the given sequence numbers irrelevant.
// On error it returns the numbers not declared yet.
func (g *Group) AddGaps(missing []wire.SequenceNumber) ([]wire.SequenceNumber, error) {
	remaining := missing
	for len(remaining) > 0 {
		res, err := g.AddGap(remaining)
		if err != nil {
			return res.Remaining, err
		}

		remaining = res.Remaining
	}

	return nil, nil
}

// buildGap builds the GAP for the sorted, deduplicated, numbers
// and returns how many of them it holds.
func buildGap(sorted []wire.SequenceNumber) (wire.Gap, int) {
	gapStart := sorted[0]

	runEnd := 0
	for runEnd+1 < len(sorted) && sorted[runEnd+1] == sorted[runEnd]+1 {
		runEnd++
	}

	gapList := wire.NewSequenceNumberSet(sorted[runEnd] + 1)

	consumed := runEnd + 1
	for consumed < len(sorted) && gapList.Add(sorted[consumed]) {
		consumed++
	}

	return wire.Gap{
		GapStart: gapStart,
		GapList:  gapList,
	}, consumed
}
