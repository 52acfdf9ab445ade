// Package group implements the RTPS message group: the write path
// that packs the submessages of a single send operation into
// the fewest messages, framing them with INFO_DST and INFO_TS when needed.
//
// A group borrows its [Buffers] for the duration of a batch.
// Submessages are appended in the order the Add methods are called.
// The accumulated message is sent when the destination changes,
// when the next submessage would not fit, or when the batch ends
// with [Group.FlushAndReset] or [Group.Finish].
//
// A group is not safe for concurrent use. Many groups may share the same [Sender].
package group

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Option configures a group.
type Option func(*options)

type options struct {
	cfg    *Config
	crypto CryptoTransform
	name   string
}

// WithConfig sets the configuration of the group.
func WithConfig(cfg *Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithCrypto protects every submessage with the given transform.
// The buffers must have been created with the envelope buffer.
func WithCrypto(crypto CryptoTransform) Option {
	return func(o *options) {
		o.crypto = crypto
	}
}

// WithName sets the name used in the logs and traces of the group.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// Group is the message group of a single batch.
type Group struct {
	tel     *telemetry.Telemetry
	metrics *groupMetrics

	cfg *Config

	participant wire.GuidPrefix
	endpoint    wire.GUID

	bufs    *Buffers
	sender  Sender
	encoder submessageEncoder

	deadline time.Time

	headerLen int
	capacity  int
	highWater int

	// framed states whether an INFO_DST has been written in the current message,
	// dests are the destinations it was framed for.
	framed bool
	dests  []wire.Destination

	// pending is the number of submessages appended to the current message.
	pending int

	sentBytes uint64

	// finalBytes is the value of BytesProcessed once the group is finished.
	finalBytes uint64

	closed bool
}

// New returns a group sending on behalf of the given endpoint of the participant.
// The deadline bounds every blocking send of the group and it is required.
// The group borrows the buffers until [Group.Finish] is called.
func New(participant wire.GuidPrefix, endpoint wire.GUID, bufs *Buffers, sender Sender, deadline time.Time, opts ...Option) (*Group, error) {
	o := &options{
		name: endpoint.String(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if deadline.IsZero() {
		return nil, ErrNoDeadline
	}

	if bufs == nil {
		return nil, ErrMissingBuffers
	}

	if sender == nil {
		return nil, ErrMissingSender
	}

	if bufs.Capacity() < MinCapacity {
		return nil, fmt.Errorf("%w: %d bytes, at least %d are needed", ErrCapacityTooSmall, bufs.Capacity(), MinCapacity)
	}

	var encoder submessageEncoder = plainEncoder{}
	if o.crypto != nil {
		if !bufs.Secure() {
			return nil, ErrNoEnvelopeBuffer
		}
		encoder = newCryptoEncoder(o.crypto, bufs.envelope)
	}

	tel := telemetry.New("group", o.name)

	cfg := o.cfg
	if cfg == nil {
		cfg = NewConfig()
	}
	config.NewValidator(tel).Validate(cfg)

	if err := bufs.acquire(); err != nil {
		return nil, err
	}

	full := bufs.full
	full.Reset()
	if err := wire.WriteHeader(full, wire.Header{
		Version: wire.DefaultProtocolVersion,
		Vendor:  cfg.VendorID,
		Prefix:  participant,
	}); err != nil {
		bufs.release()
		return nil, err
	}

	capacity := bufs.Capacity()

	g := &Group{
		tel:     tel,
		metrics: groupMetricsInst,

		cfg: cfg,

		participant: participant,
		endpoint:    endpoint,

		bufs:    bufs,
		sender:  sender,
		encoder: encoder,

		deadline: deadline,

		headerLen: full.Len(),
		capacity:  capacity,
		highWater: int(cfg.HighWaterMark * float64(capacity)),
	}

	g.metrics.init(tel)

	return g, nil
}

// BytesProcessed returns the bytes already sent by the group
// plus the bytes of the message being assembled.
// It never decreases during a batch.
// Once the group is finished it returns the last value seen before finishing.
func (g *Group) BytesProcessed() uint64 {
	if g.closed {
		return g.finalBytes
	}
	return g.sentBytes + uint64(g.bufs.full.Len())
}

// Deadline returns the deadline of the group.
func (g *Group) Deadline() time.Time {
	return g.deadline
}

// FlushAndReset sends the accumulated submessages, if any, and
// brings the group back to an empty message, ready for a new batch.
// If the send fails the submessages are kept, so the call can be retried.
func (g *Group) FlushAndReset() error {
	if g.closed {
		return ErrGroupClosed
	}

	if err := g.flush(); err != nil {
		return err
	}

	g.resetToHeader()

	return nil
}

// Finish sends the accumulated submessages, if any, and returns the buffers.
// The group cannot be used afterwards.
// The submessages that could not be sent are discarded and the error is returned.
func (g *Group) Finish() error {
	if g.closed {
		return ErrGroupClosed
	}

	g.finalBytes = g.BytesProcessed()
	err := g.flush()

	g.closed = true
	g.dests = nil
	g.bufs.release()

	return err
}

// Close is the same as [Group.Finish].
func (g *Group) Close() error {
	return g.Finish()
}

// Release finishes the group if it was not finished already.
// It is meant to be deferred: a failed send is logged
// (and panics when built with the rtpsdebug tag).
// Callers that need to know whether the last message was delivered must call [Group.Finish].
func (g *Group) Release() {
	err := g.Finish()
	if err == nil || errors.Is(err, ErrGroupClosed) {
		return
	}

	g.tel.LogError("failed to flush on release, pending submessages discarded", err)

	if debugAssertions {
		panic(fmt.Sprintf("group: flush on release failed: %v", err))
	}
}

func (g *Group) resetToHeader() {
	g.bufs.full.Truncate(g.headerLen)
	g.framed = false
	g.dests = g.dests[:0]
	g.pending = 0
}

// flush sends the current message if it holds at least one submessage.
// On success the group is reset to the header.
func (g *Group) flush() error {
	if g.pending == 0 {
		return nil
	}

	msg := g.bufs.full.Bytes()
	if err := g.send(msg, g.dests); err != nil {
		return err
	}

	g.sentBytes += uint64(len(msg))
	g.resetToHeader()

	return nil
}

func (g *Group) send(msg []byte, dests []wire.Destination) error {
	ctx, span := g.tel.NewTrace(context.Background(), "send message")
	defer span.End()

	span.SetAttributes(
		attribute.Int("message_size", len(msg)),
		attribute.Int("destinations", len(dests)),
	)

	if len(dests) == 0 {
		g.metrics.addSentMessage(len(msg))
		return nil
	}

	if !time.Now().Before(g.deadline) {
		g.metrics.incrementSendTimeouts()
		span.SetStatus(codes.Error, "deadline exceeded")
		return ErrTimeout
	}

	ctx, cancel := context.WithDeadline(ctx, g.deadline)
	defer cancel()

	start := time.Now()
	err := g.sender.Send(ctx, msg, dests, g.deadline)
	g.metrics.recordSendTime(ctx, start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
			g.metrics.incrementSendTimeouts()
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		g.metrics.incrementSendErrors()
		return fmt.Errorf("%w: %w", ErrTransportSend, err)
	}

	g.metrics.addSentMessage(len(msg))

	return nil
}

// sameDestinations reports whether a and b hold the same set of destinations,
// ignoring order and duplicates.
func sameDestinations(a, b []wire.Destination) bool {
	return containsAll(a, b) && containsAll(b, a)
}

func containsAll(set, items []wire.Destination) bool {
	for _, dst := range items {
		if !slices.Contains(set, dst) {
			return false
		}
	}
	return true
}

// destinationPrefix returns the participant targeted by all the destinations,
// or the unknown prefix when they belong to different participants.
func destinationPrefix(dests []wire.Destination) wire.GuidPrefix {
	if len(dests) == 0 {
		return wire.GuidPrefixUnknown
	}

	prefix := dests[0].GUID.Prefix
	for _, dst := range dests[1:] {
		if dst.GUID.Prefix != prefix {
			return wire.GuidPrefixUnknown
		}
	}

	return prefix
}

// remoteEntity returns the entity of the remote endpoint
// if all the destinations are the same endpoint, the unknown entity otherwise.
func remoteEntity(dests []wire.Destination) wire.EntityID {
	if len(dests) == 0 {
		return wire.EntityIDUnknown
	}

	guid := dests[0].GUID
	for _, dst := range dests[1:] {
		if dst.GUID != guid {
			return wire.EntityIDUnknown
		}
	}

	return guid.Entity
}
