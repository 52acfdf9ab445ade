// Package transport provides the senders used by the message groups:
// a resolver maps a local endpoint to its remote destinations and
// a transport writes the finished messages to the locators of those destinations.
package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/FerroO2000/rtpsgroup/group"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"go.opentelemetry.io/otel/attribute"
)

// ErrUnsupportedLocator is returned when a transport cannot reach a locator of the given kind.
var ErrUnsupportedLocator = errors.New("transport: unsupported locator")

// Resolver returns the remote endpoints matched with a local endpoint.
type Resolver interface {
	Resolve(endpoint wire.GUID) ([]wire.Destination, error)
}

// Transport writes a message to a single locator.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Write sends the message to the locator. It must not retain msg
	// after returning and it must give up once the deadline is reached.
	Write(ctx context.Context, msg []byte, loc wire.Locator, deadline time.Time) error

	Close() error
}

var _ group.Sender = (*Sender)(nil)

// Sender combines a resolver and a transport.
type Sender struct {
	tel *telemetry.Telemetry

	resolver  Resolver
	transport Transport
}

// NewSender returns a new sender.
func NewSender(resolver Resolver, transport Transport) *Sender {
	return &Sender{
		tel: telemetry.New("transport", "sender"),

		resolver:  resolver,
		transport: transport,
	}
}

// Destinations returns the destinations of the endpoint.
func (s *Sender) Destinations(endpoint wire.GUID) ([]wire.Destination, error) {
	return s.resolver.Resolve(endpoint)
}

// Send writes the message once per distinct locator of the destinations.
// The locators left when the deadline is reached are not written.
func (s *Sender) Send(ctx context.Context, msg []byte, dests []wire.Destination, deadline time.Time) error {
	ctx, span := s.tel.NewTrace(ctx, "send to destinations")
	defer span.End()

	locators := uniqueLocators(dests)

	span.SetAttributes(
		attribute.Int("locators", len(locators)),
		attribute.Int("message_size", len(msg)),
	)

	var errs []error
	for idx, loc := range locators {
		if !time.Now().Before(deadline) {
			errs = append(errs, fmt.Errorf("%d locators not reached: %w", len(locators)-idx, os.ErrDeadlineExceeded))
			break
		}

		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if err := s.transport.Write(ctx, msg, loc, deadline); err != nil {
			errs = append(errs, fmt.Errorf("locator %s: %w", loc, err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

// Close closes the transport.
func (s *Sender) Close() error {
	return s.transport.Close()
}

func uniqueLocators(dests []wire.Destination) []wire.Locator {
	locators := make([]wire.Locator, 0, len(dests))
	for _, dst := range dests {
		if !slices.Contains(locators, dst.Locator) {
			locators = append(locators, dst.Locator)
		}
	}
	return locators
}
