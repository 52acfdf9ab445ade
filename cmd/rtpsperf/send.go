package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FerroO2000/rtpsgroup/group"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/security"
	"github.com/FerroO2000/rtpsgroup/transport"
	"github.com/FerroO2000/rtpsgroup/wire"
	"github.com/spf13/cobra"
)

// Key id written in the SEC_PREFIX of the protected submessages.
const perfKeyID = 1

func newSendCmd() *cobra.Command {
	opts := defaultSendOptions()

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send changes, each batch through its own group",
		Example: `  rtpsperf send --routes routes.toml --changes 10000 --payload 4000
  rtpsperf send --transport tcp --queue 1024 --payload 200000 --fragment-size 1300
  rtpsperf send --etcd localhost:2379 --key $(openssl rand -hex 32) --otel localhost:4317`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.loadFile(cmd); err != nil {
				return err
			}

			if err := opts.validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runSend(ctx, opts)
		},
	}

	opts.bindFlags(cmd.Flags())

	return cmd
}

func runSend(ctx context.Context, opts *sendOptions) error {
	telemetry.SetLogLevel(opts.logLevel())

	if opts.OTel != "" {
		otelCfg := telemetry.NewOTelConfig()
		otelCfg.Endpoint = opts.OTel
		otelCfg.ServiceName = "rtpsperf"

		providers, err := telemetry.Init(ctx, otelCfg)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := providers.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "rtpsperf: telemetry shutdown: %v\n", err)
			}
		}()

		telemetry.UseOTelLogs()
	}

	tel := telemetry.New("cmd", "rtpsperf")

	endpoint, err := opts.endpoint()
	if err != nil {
		return fmt.Errorf("endpoint: %w", err)
	}

	resolver, err := newResolver(ctx, tel, opts, endpoint)
	if err != nil {
		return err
	}

	tr, err := newTransport(opts)
	if err != nil {
		return err
	}

	sender := transport.NewSender(resolver, tr)
	defer func() {
		if err := sender.Close(); err != nil {
			tel.LogError("failed to close the transport", err)
		}
	}()

	groupOpts := []group.Option{
		group.WithConfig(opts.groupConfig()),
		group.WithName("rtpsperf"),
	}

	secure := opts.Key != ""
	if secure {
		key, err := opts.masterKey()
		if err != nil {
			return err
		}

		crypto, err := security.NewTransform(key, perfKeyID, nil)
		if err != nil {
			return err
		}
		defer crypto.Close()

		groupOpts = append(groupOpts, group.WithCrypto(crypto))
	}

	bufs := group.NewBuffers(opts.Capacity, secure)

	payload := make([]byte, opts.Payload)
	// CDR little endian encapsulation
	copy(payload, []byte{0x00, 0x01, 0x00, 0x00})
	if _, err := rand.Read(payload[4:]); err != nil {
		return err
	}

	stats := &sendStats{}
	start := time.Now()

	sn := wire.SequenceNumber(1)
	for sent := 0; sent < opts.Changes; {
		if ctx.Err() != nil {
			break
		}

		count := min(opts.Batch, opts.Changes-sent)

		bytes, err := sendBatch(endpoint, bufs, sender, opts, groupOpts, payload, sn, count, wire.Count(stats.batches+1))
		stats.add(bytes, err)
		if err != nil {
			tel.LogWarn("batch failed", "first_sn", sn, "reason", err)
		}

		tel.LogDebug("batch sent", "first_sn", sn, "changes", count, "bytes_processed", bytes)

		sn += wire.SequenceNumber(count)
		sent += count
	}

	tel.LogInfo("done",
		"batches", stats.batches,
		"failed_batches", stats.failed,
		"bytes_processed", stats.bytes,
		"elapsed", time.Since(start),
	)

	if stats.failed > 0 {
		return fmt.Errorf("%d of %d batches failed", stats.failed, stats.batches)
	}

	return nil
}

type sendStats struct {
	batches int
	failed  int
	bytes   uint64
}

func (s *sendStats) add(bytes uint64, err error) {
	s.batches++
	s.bytes += bytes
	if err != nil {
		s.failed++
	}
}

// sendBatch sends the changes [first, first+count) through a new group,
// followed by a heartbeat announcing them.
func sendBatch(
	endpoint wire.GUID, bufs *group.Buffers, sender group.Sender, opts *sendOptions,
	groupOpts []group.Option, payload []byte, first wire.SequenceNumber, count int, hbCount wire.Count,
) (uint64, error) {
	g, err := group.New(endpoint.Prefix, endpoint, bufs, sender, time.Now().Add(opts.Deadline.get()), groupOpts...)
	if err != nil {
		return 0, err
	}
	defer g.Release()

	now := time.Now()
	fragmented := opts.FragmentSize > 0 && len(payload) > int(opts.FragmentSize)

	last := first
	for i := range count {
		change := &wire.Change{
			Kind:            wire.ChangeKindAlive,
			SequenceNumber:  first + wire.SequenceNumber(i),
			SourceTimestamp: now,
			Payload:         payload,
		}
		last = change.SequenceNumber

		if !fragmented {
			if err := g.AddData(change, false); err != nil {
				return g.BytesProcessed(), err
			}
			continue
		}

		change.FragmentSize = opts.FragmentSize
		for fn := wire.FragmentNumber(1); uint32(fn) <= change.FragmentCount(); fn++ {
			if err := g.AddDataFrag(change, fn, false); err != nil {
				return g.BytesProcessed(), err
			}
		}
	}

	if err := g.AddHeartbeat(1, last, hbCount, false, false); err != nil {
		return g.BytesProcessed(), err
	}

	err = g.Finish()

	return g.BytesProcessed(), err
}

func newResolver(ctx context.Context, tel *telemetry.Telemetry, opts *sendOptions, endpoint wire.GUID) (transport.Resolver, error) {
	if etcdEndpoints := splitList(opts.Etcd); len(etcdEndpoints) > 0 {
		cfg := transport.NewEtcdResolverConfig()
		cfg.Endpoints = etcdEndpoints

		resolver, err := transport.NewEtcdResolver(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("etcd: %w", err)
		}
		context.AfterFunc(ctx, func() { resolver.Close() })

		go func() {
			if err := resolver.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				tel.LogError("etcd watch stopped", err)
			}
		}()

		return resolver, nil
	}

	resolver, err := transport.NewFileResolver(transport.NewFileResolverConfig(opts.Routes))
	if err != nil {
		return nil, fmt.Errorf("routes: %w", err)
	}

	go func() {
		if err := resolver.Watch(ctx); err != nil {
			tel.LogError("route watch stopped", err)
		}
	}()

	dests, _ := resolver.Resolve(endpoint)
	if len(dests) == 0 {
		tel.LogWarn("no routes for the endpoint, messages are dropped", "endpoint", endpoint)
	}

	return resolver, nil
}

func newTransport(opts *sendOptions) (transport.Transport, error) {
	var tr transport.Transport

	switch opts.Transport {
	case "udp":
		udp, err := transport.NewUDPTransport(transport.NewUDPConfig())
		if err != nil {
			return nil, err
		}
		tr = udp

	case "tcp":
		tr = transport.NewTCPTransport(transport.NewTCPConfig())

	case "kafka":
		cfg := transport.NewKafkaConfig()
		cfg.Brokers = splitList(opts.KafkaBrokers)
		cfg.Topic = opts.KafkaTopic
		tr = transport.NewKafkaTransport(cfg)
	}

	if opts.Queue > 0 {
		cfg := transport.NewQueuedConfig()
		cfg.Capacity = opts.Queue
		tr = transport.NewQueuedTransport(tr, cfg)
	}

	return tr, nil
}
