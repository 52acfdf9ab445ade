package transport

import (
	"context"
	"slices"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the Kafka transport configuration.
const (
	DefaultKafkaConfigTopic = "rtps"
)

// KafkaConfig is the configuration of a [KafkaTransport].
type KafkaConfig struct {
	// A list of Kafka brokers to connect to.
	//
	// Default: localhost:9092
	Brokers []string

	// Topic is the topic the messages are written to.
	//
	// Default: rtps
	Topic string

	// The balancer used to distribute messages across partitions.
	// Messages of the same locator share the key, so the default
	// keeps them in order.
	//
	// Default: Hash
	Balancer kafka.Balancer

	// Limit on how many attempts will be made to deliver a message.
	//
	// Default: 3
	MaxAttempts int

	// Limit on how many messages will be buffered before being sent to a
	// partition.
	//
	// Default: 100
	BatchSize int

	// Time limit on how often incomplete message batches will be flushed to
	// kafka.
	//
	// Default: 10ms
	BatchTimeout time.Duration

	// Number of acknowledges from partition replicas required before receiving
	// a response to a produce request.
	//
	// Default: RequireOne
	RequiredAcks kafka.RequiredAcks

	// When true the writes do not wait for the brokers
	// and the delivery errors are only logged.
	//
	// Default: false
	Async bool

	// Compression set the compression codec to be used to compress messages.
	//
	// Default: Snappy
	Compression kafka.Compression

	// AllowAutoTopicCreation notifies writer to create topic if missing.
	//
	// Default: true
	AllowAutoTopicCreation bool
}

// NewKafkaConfig returns the default configuration of the Kafka transport.
func NewKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:                []string{"localhost:9092"},
		Topic:                  DefaultKafkaConfigTopic,
		Balancer:               &kafka.Hash{},
		MaxAttempts:            3,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// Validate checks the configuration.
func (c *KafkaConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckLen(ac, "Brokers", &c.Brokers, []string{"localhost:9092"})
	config.CheckNotEmpty(ac, "Topic", &c.Topic, DefaultKafkaConfigTopic)
	config.CheckPositive(ac, "MaxAttempts", &c.MaxAttempts, 3)
	config.CheckPositive(ac, "BatchSize", &c.BatchSize, 100)
	config.CheckDuration(ac, "BatchTimeout", &c.BatchTimeout, 10*time.Millisecond)

	if c.Balancer == nil {
		c.Balancer = &kafka.Hash{}
	}
}

/////////////////
//  TRANSPORT  //
/////////////////

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Transport = (*KafkaTransport)(nil)

// KafkaTransport bridges the messages to a Kafka topic.
// The key of a record is the text form of the locator, so a consumer
// can forward it to the right remote endpoint.
// The trace context travels in the record headers.
type KafkaTransport struct {
	tel     *telemetry.Telemetry
	metrics *deliveryMetrics

	topic  string
	writer kafkaWriter
}

// NewKafkaTransport returns a new Kafka transport.
func NewKafkaTransport(cfg *KafkaConfig) *KafkaTransport {
	tel := telemetry.New("transport", "kafka")
	config.NewValidator(tel).Validate(cfg)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               cfg.Balancer,
		MaxAttempts:            cfg.MaxAttempts,
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           cfg.RequiredAcks,
		Async:                  cfg.Async,
		Compression:            cfg.Compression,
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
	}

	if cfg.Async {
		writer.Completion = func(_ []kafka.Message, err error) {
			if err != nil {
				kafkaMetricsInst.incrementFailedWrites()
				tel.LogError("failed to deliver kafka messages", err)
			}
		}
	}

	return newKafkaTransport(tel, cfg.Topic, writer)
}

func newKafkaTransport(tel *telemetry.Telemetry, topic string, writer kafkaWriter) *KafkaTransport {
	kt := &KafkaTransport{
		tel:     tel,
		metrics: kafkaMetricsInst,

		topic:  topic,
		writer: writer,
	}

	kt.metrics.init(tel)

	return kt
}

// Write writes the message as a record keyed by the locator.
func (kt *KafkaTransport) Write(ctx context.Context, msg []byte, loc wire.Locator, deadline time.Time) error {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ctx, span := kt.tel.NewTrace(ctx, "deliver kafka message")
	defer span.End()

	span.SetAttributes(
		attribute.Int("message_size", len(msg)),
		attribute.String("locator", loc.String()),
	)

	// Create the header that carries the trace
	headerCarrier := telemetry.NewKafkaHeaderCarrier(nil)
	kt.tel.InjectTrace(ctx, headerCarrier)

	record := kafka.Message{
		Topic: kt.topic,
		Key:   []byte(loc.String()),
		Value: slices.Clone(msg),

		Headers: headerCarrier.Headers(),
	}

	if err := kt.writer.WriteMessages(ctx, record); err != nil {
		kt.metrics.incrementFailedWrites()
		span.RecordError(err)
		return err
	}

	// Update metrics
	kt.metrics.addDelivered(len(msg))

	return nil
}

// Close flushes the pending records and closes the writer.
func (kt *KafkaTransport) Close() error {
	return kt.writer.Close()
}
