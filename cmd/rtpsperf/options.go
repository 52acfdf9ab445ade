package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/FerroO2000/rtpsgroup/group"
	"github.com/FerroO2000/rtpsgroup/security"
	"github.com/FerroO2000/rtpsgroup/wire"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// sendOptions are the settings of the send command.
// They can be loaded from a TOML file, the flags override the file.
type sendOptions struct {
	ConfigPath string `toml:"-"`

	Endpoint string `toml:"endpoint"`

	Routes string `toml:"routes"`
	Etcd   string `toml:"etcd"`

	Transport    string `toml:"transport"`
	KafkaBrokers string `toml:"kafka_brokers"`
	KafkaTopic   string `toml:"kafka_topic"`
	Queue        uint32 `toml:"queue"`

	Changes      int    `toml:"changes"`
	Batch        int    `toml:"batch"`
	Payload      int    `toml:"payload"`
	FragmentSize uint16 `toml:"fragment_size"`

	Capacity        int      `toml:"capacity"`
	Deadline        duration `toml:"deadline"`
	HighWaterMark   float64  `toml:"high_water_mark"`
	SourceTimestamp bool     `toml:"source_timestamp"`

	Key string `toml:"key"`

	OTel     string `toml:"otel"`
	LogLevel string `toml:"log_level"`
}

func defaultSendOptions() *sendOptions {
	return &sendOptions{
		Endpoint: "0102030405060708090a0b0c.00000102",

		Routes: "routes.toml",

		Transport:    "udp",
		KafkaBrokers: "localhost:9092",
		KafkaTopic:   "rtps",

		Changes: 1000,
		Batch:   16,
		Payload: 1024,

		Capacity:        group.DefaultCapacity,
		Deadline:        duration(100 * time.Millisecond),
		HighWaterMark:   group.DefaultHighWaterMark,
		SourceTimestamp: group.DefaultSourceTimestamp,

		LogLevel: "info",
	}
}

func (o *sendOptions) bindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&o.ConfigPath, "config", o.ConfigPath, "TOML file with the options, the flags override it")

	flags.StringVar(&o.Endpoint, "endpoint", o.Endpoint, "GUID of the local writer, <prefix>.<entity> in hex")

	flags.StringVar(&o.Routes, "routes", o.Routes, "TOML route file, watched for changes")
	flags.StringVar(&o.Etcd, "etcd", o.Etcd, "comma separated etcd endpoints, the routes are read from etcd instead of the route file")

	flags.StringVar(&o.Transport, "transport", o.Transport, "transport of the messages: udp, tcp or kafka")
	flags.StringVar(&o.KafkaBrokers, "kafka-brokers", o.KafkaBrokers, "comma separated Kafka brokers")
	flags.StringVar(&o.KafkaTopic, "kafka-topic", o.KafkaTopic, "Kafka topic")
	flags.Uint32Var(&o.Queue, "queue", o.Queue, "size of the send queue in front of the transport, 0 disables it")

	flags.IntVar(&o.Changes, "changes", o.Changes, "number of changes to send")
	flags.IntVar(&o.Batch, "batch", o.Batch, "changes sent by each group")
	flags.IntVar(&o.Payload, "payload", o.Payload, "payload size of each change in bytes")
	flags.Uint16Var(&o.FragmentSize, "fragment-size", o.FragmentSize, "fragment size, 0 sends every change as a single DATA")

	flags.IntVar(&o.Capacity, "capacity", o.Capacity, "capacity of the message buffers in bytes")
	flags.Var(&o.Deadline, "deadline", "deadline of each batch")
	flags.Float64Var(&o.HighWaterMark, "high-water-mark", o.HighWaterMark, "fraction of the capacity that triggers a flush")
	flags.BoolVar(&o.SourceTimestamp, "source-timestamp", o.SourceTimestamp, "write INFO_TS before the data submessages")

	flags.StringVar(&o.Key, "key", o.Key, "hex master key, enables the submessage protection")

	flags.StringVar(&o.OTel, "otel", o.OTel, "OTLP gRPC collector endpoint, empty disables the export")
	flags.StringVar(&o.LogLevel, "log-level", o.LogLevel, "log level: debug, info, warn or error")
}

// loadFile reads the options file, keeping the values of the flags set on the command line.
func (o *sendOptions) loadFile(cmd *cobra.Command) error {
	if o.ConfigPath == "" {
		return nil
	}

	overrides := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) { overrides[f.Name] = f.Value.String() })

	data, err := os.ReadFile(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := toml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parse config %s: %w", o.ConfigPath, err)
	}

	for name, value := range overrides {
		if err := cmd.Flags().Set(name, value); err != nil {
			return err
		}
	}

	return nil
}

func (o *sendOptions) validate() error {
	var errs []error

	if o.Changes <= 0 {
		errs = append(errs, errors.New("changes must be positive"))
	}

	if o.Batch <= 0 {
		errs = append(errs, errors.New("batch must be positive"))
	}

	if o.Payload < 4 {
		errs = append(errs, errors.New("payload must hold at least the encapsulation header"))
	}

	if o.Deadline.get() <= 0 {
		errs = append(errs, errors.New("deadline must be positive"))
	}

	switch o.Transport {
	case "udp", "tcp", "kafka":
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", o.Transport))
	}

	return errors.Join(errs...)
}

func (o *sendOptions) endpoint() (wire.GUID, error) {
	return wire.ParseGUID(o.Endpoint)
}

func (o *sendOptions) masterKey() ([]byte, error) {
	key, err := hex.DecodeString(o.Key)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}

	if len(key) != security.MasterKeySize {
		return nil, fmt.Errorf("key: %w", security.ErrInvalidKey)
	}

	return key, nil
}

func (o *sendOptions) groupConfig() *group.Config {
	cfg := group.NewConfig()
	cfg.HighWaterMark = o.HighWaterMark
	cfg.SourceTimestamp = o.SourceTimestamp
	return cfg
}

func (o *sendOptions) logLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func splitList(s string) []string {
	var items []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// duration is a [time.Duration] that can be read from both
// the TOML file and the flags, e.g. "250ms".
type duration time.Duration

func (d duration) get() time.Duration {
	return time.Duration(d)
}

func (d *duration) UnmarshalText(text []byte) error {
	return d.Set(string(text))
}

func (d *duration) Set(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func (d *duration) String() string {
	return time.Duration(*d).String()
}

func (d *duration) Type() string {
	return "duration"
}
