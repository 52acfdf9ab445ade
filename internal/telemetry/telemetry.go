// Package telemetry wraps logging, tracing and metrics
// behind a single struct shared by all the components of the library.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/FerroO2000/rtpsgroup"

// Telemetry holds the logger, the tracer and the meter of a component.
// The kind is the family of the component (e.g. "group", "transport"),
// the name identifies the component inside the family (e.g. "udp").
type Telemetry struct {
	kind string
	name string

	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
}

// New returns a new telemetry for the given component.
func New(kind, name string) *Telemetry {
	return &Telemetry{
		kind: kind,
		name: name,

		logger: Logger().With("kind", kind, "name", name),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
}

func (t *Telemetry) metricName(name string) string {
	return t.kind + "_" + t.name + "_" + name
}

// LogDebug logs a message at debug level.
func (t *Telemetry) LogDebug(msg string, args ...any) {
	t.logger.Debug(msg, args...)
}

// LogInfo logs a message at info level.
func (t *Telemetry) LogInfo(msg string, args ...any) {
	t.logger.Info(msg, args...)
}

// LogWarn logs a message at warn level.
func (t *Telemetry) LogWarn(msg string, args ...any) {
	t.logger.Warn(msg, args...)
}

// LogError logs a message at error level with the given error attached.
func (t *Telemetry) LogError(msg string, err error, args ...any) {
	t.logger.Error(msg, append([]any{"error", err}, args...)...)
}

// NewTrace starts a new span as a child of the span carried by ctx (if any).
func (t *Telemetry) NewTrace(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("kind", t.kind),
			attribute.String("name", t.name),
		),
	)
}

// InjectTrace injects the span context of ctx into the carrier.
func (t *Telemetry) InjectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractTraceContext returns a copy of ctx carrying the span context found in the carrier.
func (t *Telemetry) ExtractTraceContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// NewCounter registers an observable monotonic counter
// whose value is read from the callback on every collection.
func (t *Telemetry) NewCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableCounter(t.metricName(name),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(callback())
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to register counter", err, "counter", name)
	}
}

// NewUpDownCounter registers an observable up/down counter
// whose value is read from the callback on every collection.
func (t *Telemetry) NewUpDownCounter(name string, callback func() int64) {
	_, err := t.meter.Int64ObservableUpDownCounter(t.metricName(name),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(callback())
			return nil
		}),
	)

	if err != nil {
		t.LogError("failed to register up/down counter", err, "counter", name)
	}
}

// Histogram is a thin wrapper around an otel int64 histogram.
type Histogram struct {
	hist metric.Int64Histogram
}

// Record records a value into the histogram.
func (h *Histogram) Record(ctx context.Context, value int64) {
	if h == nil || h.hist == nil {
		return
	}

	h.hist.Record(ctx, value)
}

// NewHistogram returns a new histogram.
// If the histogram cannot be created, the returned one discards every record.
func (t *Telemetry) NewHistogram(name string, opts ...metric.Int64HistogramOption) *Histogram {
	hist, err := t.meter.Int64Histogram(t.metricName(name), opts...)
	if err != nil {
		t.LogError("failed to create histogram", err, "histogram", name)
		return &Histogram{}
	}

	return &Histogram{hist: hist}
}
