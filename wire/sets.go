package wire

import "iter"

// MaxSetBits is the maximum number of bits of a sequence/fragment number set.
const MaxSetBits = 256

type bitmap struct {
	numBits uint32
	words   [MaxSetBits / 32]uint32
}

func (b *bitmap) set(idx uint32) {
	b.words[idx/32] |= 1 << (31 - idx%32)
	b.numBits = max(b.numBits, idx+1)
}

func (b *bitmap) isSet(idx uint32) bool {
	if idx >= b.numBits {
		return false
	}
	return b.words[idx/32]&(1<<(31-idx%32)) != 0
}

func (b *bitmap) wordCount() int {
	return int((b.numBits + 31) / 32)
}

func (b *bitmap) wireSize() int {
	return 4 + 4*b.wordCount()
}

func (b *bitmap) empty() bool {
	for i := range b.wordCount() {
		if b.words[i] != 0 {
			return false
		}
	}
	return true
}

// SequenceNumberSet is a set of sequence numbers in the window [Base, Base+255],
// encoded as a base and a bitmap.
type SequenceNumberSet struct {
	Base SequenceNumber

	bits bitmap
}

// NewSequenceNumberSet returns an empty set starting at base.
func NewSequenceNumberSet(base SequenceNumber) SequenceNumberSet {
	return SequenceNumberSet{Base: base}
}

// Add adds the sequence number to the set.
// It returns false if the number is outside the window of the set.
func (s *SequenceNumberSet) Add(sn SequenceNumber) bool {
	if sn < s.Base || sn-s.Base >= MaxSetBits {
		return false
	}

	s.bits.set(uint32(sn - s.Base))
	return true
}

// Contains states whether the sequence number is in the set.
func (s *SequenceNumberSet) Contains(sn SequenceNumber) bool {
	if sn < s.Base || sn-s.Base >= MaxSetBits {
		return false
	}
	return s.bits.isSet(uint32(sn - s.Base))
}

// NumBits returns the number of bits used by the bitmap.
func (s *SequenceNumberSet) NumBits() uint32 {
	return s.bits.numBits
}

// Empty states whether no number is set.
func (s *SequenceNumberSet) Empty() bool {
	return s.bits.empty()
}

// All iterates over the numbers of the set in ascending order.
func (s *SequenceNumberSet) All() iter.Seq[SequenceNumber] {
	return func(yield func(SequenceNumber) bool) {
		for i := range s.bits.numBits {
			if s.bits.isSet(i) && !yield(s.Base+SequenceNumber(i)) {
				return
			}
		}
	}
}

func (s *SequenceNumberSet) wireSize() int {
	return 8 + s.bits.wireSize()
}

// FragmentNumberSet is a set of fragment numbers in the window [Base, Base+255],
// encoded as a base and a bitmap.
type FragmentNumberSet struct {
	Base FragmentNumber

	bits bitmap
}

// NewFragmentNumberSet returns an empty set starting at base.
func NewFragmentNumberSet(base FragmentNumber) FragmentNumberSet {
	return FragmentNumberSet{Base: base}
}

// Add adds the fragment number to the set.
// It returns false if the number is outside the window of the set.
func (s *FragmentNumberSet) Add(fn FragmentNumber) bool {
	if fn < s.Base || fn-s.Base >= MaxSetBits {
		return false
	}

	s.bits.set(uint32(fn - s.Base))
	return true
}

// Contains states whether the fragment number is in the set.
func (s *FragmentNumberSet) Contains(fn FragmentNumber) bool {
	if fn < s.Base || fn-s.Base >= MaxSetBits {
		return false
	}
	return s.bits.isSet(uint32(fn - s.Base))
}

// NumBits returns the number of bits used by the bitmap.
func (s *FragmentNumberSet) NumBits() uint32 {
	return s.bits.numBits
}

// All iterates over the numbers of the set in ascending order.
func (s *FragmentNumberSet) All() iter.Seq[FragmentNumber] {
	return func(yield func(FragmentNumber) bool) {
		for i := range s.bits.numBits {
			if s.bits.isSet(i) && !yield(s.Base+FragmentNumber(i)) {
				return
			}
		}
	}
}

func (s *FragmentNumberSet) wireSize() int {
	return 4 + s.bits.wireSize()
}
