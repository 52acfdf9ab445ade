package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/rb"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"go.opentelemetry.io/otel/propagation"
)

// ErrQueueFull is returned when a message cannot be queued before the deadline.
// It wraps [os.ErrDeadlineExceeded].
var ErrQueueFull = fmt.Errorf("transport: queue full: %w", os.ErrDeadlineExceeded)

//////////////
//  CONFIG  //
//////////////

// Default values for the queued transport configuration.
const (
	DefaultQueuedConfigCapacity = 1024
)

// QueuedConfig is the configuration of a [QueuedTransport].
type QueuedConfig struct {
	// Capacity is the number of messages the queue can hold.
	// It is rounded up to the next power of 2.
	//
	// Default: 1024
	Capacity uint32

	// DrainTimeout bounds each write of the inner transport.
	//
	// Default: 1s
	DrainTimeout time.Duration
}

// NewQueuedConfig returns the default configuration of the queued transport.
func NewQueuedConfig() *QueuedConfig {
	return &QueuedConfig{
		Capacity:     DefaultQueuedConfigCapacity,
		DrainTimeout: time.Second,
	}
}

// Validate checks the configuration.
func (c *QueuedConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotZero(ac, "Capacity", &c.Capacity, DefaultQueuedConfigCapacity)
	config.CheckDuration(ac, "DrainTimeout", &c.DrainTimeout, time.Second)
}

/////////////////
//  TRANSPORT  //
/////////////////

type queuedMessage struct {
	msg   []byte
	loc   wire.Locator
	trace propagation.MapCarrier
}

var _ Transport = (*QueuedTransport)(nil)

// QueuedTransport decouples the writers from a slow transport.
// The messages are copied into a bounded queue and a single goroutine
// forwards them to the inner transport.
type QueuedTransport struct {
	tel     *telemetry.Telemetry
	metrics *deliveryMetrics

	cfg *QueuedConfig

	inner Transport
	queue *rb.Queue[*queuedMessage]

	wg        sync.WaitGroup
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// NewQueuedTransport starts the forwarding goroutine over the inner transport.
func NewQueuedTransport(inner Transport, cfg *QueuedConfig) *QueuedTransport {
	tel := telemetry.New("transport", "queued")
	config.NewValidator(tel).Validate(cfg)

	ctx, cancel := context.WithCancel(context.Background())

	qt := &QueuedTransport{
		tel:     tel,
		metrics: queuedMetricsInst,

		cfg: cfg,

		inner: inner,
		queue: rb.NewQueue[*queuedMessage](cfg.Capacity),

		cancel: cancel,
	}

	qt.metrics.init(tel)
	tel.NewUpDownCounter("queued_messages", func() int64 { return int64(qt.queue.Len()) })

	qt.wg.Go(func() {
		qt.drain(ctx)
	})

	return qt
}

// Write queues a copy of the message, waiting for room until the deadline.
// A nil error means the message is queued, not delivered.
func (qt *QueuedTransport) Write(ctx context.Context, msg []byte, loc wire.Locator, deadline time.Time) error {
	item := &queuedMessage{
		msg:   slices.Clone(msg),
		loc:   loc,
		trace: propagation.MapCarrier{},
	}
	qt.tel.InjectTrace(ctx, item.trace)

	if qt.queue.TryPush(item) {
		return nil
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := qt.queue.Push(ctx, item); err != nil {
		qt.metrics.incrementFailedWrites()

		if errors.Is(err, context.DeadlineExceeded) {
			return ErrQueueFull
		}

		if errors.Is(err, rb.ErrClosed) {
			return ErrTransportClosed
		}

		return err
	}

	return nil
}

func (qt *QueuedTransport) drain(ctx context.Context) {
	for {
		item, err := qt.queue.Pop(ctx)
		if err != nil {
			if !errors.Is(err, rb.ErrClosed) {
				qt.tel.LogWarn("queue drain stopped", "reason", err)
			}
			return
		}

		qt.forward(item)
	}
}

func (qt *QueuedTransport) forward(item *queuedMessage) {
	ctx := qt.tel.ExtractTraceContext(context.Background(), item.trace)
	ctx, span := qt.tel.NewTrace(ctx, "forward queued message")
	defer span.End()

	deadline := time.Now().Add(qt.cfg.DrainTimeout)

	if err := qt.inner.Write(ctx, item.msg, item.loc, deadline); err != nil {
		qt.metrics.incrementFailedWrites()
		span.RecordError(err)
		qt.tel.LogError("failed to forward queued message", err, "locator", item.loc)
		return
	}

	qt.metrics.addDelivered(len(item.msg))
}

// Close stops accepting messages, forwards the queued ones
// and closes the inner transport.
func (qt *QueuedTransport) Close() error {
	var err error

	qt.closeOnce.Do(func() {
		qt.queue.Close()
		qt.wg.Wait()
		qt.cancel()

		err = qt.inner.Close()
	})

	return err
}
