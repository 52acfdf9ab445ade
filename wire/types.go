// Package wire contains the RTPS data model and the stateless encoders
// that serialize submessages into a [Buffer].
//
// All the submessages are written in little endian (E flag set).
// The parser accepts both endiannesses.
package wire

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidGUID is returned when a GUID (or one of its parts) cannot be parsed.
var ErrInvalidGUID = errors.New("wire: invalid guid")

// GuidPrefixSize is the size of a GUID prefix.
const GuidPrefixSize = 12

// GuidPrefix uniquely identifies a participant.
type GuidPrefix [GuidPrefixSize]byte

// GuidPrefixUnknown is the prefix used when the destination is not a single participant.
var GuidPrefixUnknown GuidPrefix

// IsUnknown states whether the prefix is the unknown one.
func (p GuidPrefix) IsUnknown() bool {
	return p == GuidPrefixUnknown
}

func (p GuidPrefix) String() string {
	return hex.EncodeToString(p[:])
}

// ParseGuidPrefix parses the hex form of a prefix.
func ParseGuidPrefix(s string) (GuidPrefix, error) {
	var p GuidPrefix
	if err := decodeHexInto(p[:], s); err != nil {
		return p, err
	}
	return p, nil
}

// EntityID identifies an endpoint inside a participant.
// The last byte is the entity kind.
type EntityID [4]byte

// EntityIDUnknown is the entity id used when a submessage targets every endpoint.
var EntityIDUnknown EntityID

func (e EntityID) String() string {
	return hex.EncodeToString(e[:])
}

// ParseEntityID parses the hex form of an entity id.
func ParseEntityID(s string) (EntityID, error) {
	var e EntityID
	if err := decodeHexInto(e[:], s); err != nil {
		return e, err
	}
	return e, nil
}

// GUID globally identifies an endpoint.
type GUID struct {
	Prefix GuidPrefix
	Entity EntityID
}

// String returns the GUID in the "<prefix>.<entity>" hex form.
func (g GUID) String() string {
	return g.Prefix.String() + "." + g.Entity.String()
}

// ParseGUID parses a GUID in the "<prefix>.<entity>" hex form.
func ParseGUID(s string) (GUID, error) {
	prefixStr, entityStr, ok := strings.Cut(s, ".")
	if !ok {
		return GUID{}, fmt.Errorf("%w: missing '.' in %q", ErrInvalidGUID, s)
	}

	prefix, err := ParseGuidPrefix(prefixStr)
	if err != nil {
		return GUID{}, err
	}

	entity, err := ParseEntityID(entityStr)
	if err != nil {
		return GUID{}, err
	}

	return GUID{Prefix: prefix, Entity: entity}, nil
}

func decodeHexInto(dst []byte, s string) error {
	if hex.DecodedLen(len(s)) != len(dst) {
		return fmt.Errorf("%w: %q must be %d hex digits", ErrInvalidGUID, s, 2*len(dst))
	}

	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGUID, err)
	}

	return nil
}

// SequenceNumber is the 64-bit sequence number of a change.
// On the wire it is split in a signed high and an unsigned low part.
type SequenceNumber int64

func (sn SequenceNumber) split() (int32, uint32) {
	return int32(sn >> 32), uint32(sn)
}

func joinSequenceNumber(high int32, low uint32) SequenceNumber {
	return SequenceNumber(int64(high)<<32 | int64(low))
}

// FragmentNumber is the 1-based index of a fragment.
type FragmentNumber uint32

// Count distinguishes repeated heartbeats/acknacks.
type Count int32

// InstanceHandle is the key hash of the instance a change belongs to.
type InstanceHandle [16]byte

// IsZero states whether the handle is not set.
func (ih InstanceHandle) IsZero() bool {
	return ih == InstanceHandle{}
}

// VendorID identifies the vendor of the implementation.
type VendorID [2]byte

// ProtocolVersion is the RTPS protocol version.
type ProtocolVersion struct {
	Major uint8
	Minor uint8
}

// DefaultProtocolVersion is the version written in every header.
var DefaultProtocolVersion = ProtocolVersion{Major: 2, Minor: 3}

// Time is the RTPS representation of a point in time:
// seconds and fractions (1/2^32) of a second since the unix epoch.
type Time struct {
	Seconds  int32
	Fraction uint32
}

// TimeInvalid marks a missing timestamp.
var TimeInvalid = Time{Seconds: -1, Fraction: math.MaxUint32}

// TimeFrom converts a time into its RTPS representation.
// The zero time is converted into [TimeInvalid].
func TimeFrom(t time.Time) Time {
	if t.IsZero() {
		return TimeInvalid
	}

	return Time{
		Seconds:  int32(t.Unix()),
		Fraction: uint32((uint64(t.Nanosecond()) << 32) / uint64(time.Second)),
	}
}

// IsValid states whether the time is not [TimeInvalid].
func (t Time) IsValid() bool {
	return t != TimeInvalid
}

// Std converts the time back into a [time.Time] (nanosecond precision is lost).
func (t Time) Std() time.Time {
	if !t.IsValid() {
		return time.Time{}
	}

	nanos := (uint64(t.Fraction) * uint64(time.Second)) >> 32
	return time.Unix(int64(t.Seconds), int64(nanos))
}
