// Package rtpsgroup provides the entrypoint for the rtpsgroup library:
// the telemetry setup shared by the [group], [security] and [transport] packages.
//
// A typical writer creates one [transport.Sender], then a [group.Group]
// for every batch of submessages it sends:
//
//	sender := transport.NewSender(resolver, udp)
//	bufs := group.NewBuffers(group.DefaultCapacity, false)
//
//	g, err := group.New(prefix, writerGUID, bufs, sender, time.Now().Add(100*time.Millisecond))
//	if err != nil {
//		return err
//	}
//	defer g.Release()
//
//	if err := g.AddData(change, false); err != nil {
//		return err
//	}
//	return g.Finish()
package rtpsgroup

import (
	"context"
	"log/slog"

	"github.com/FerroO2000/rtpsgroup/group"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/security"
	"github.com/FerroO2000/rtpsgroup/transport"
)

// OTelConfig is the configuration of the OpenTelemetry exporters.
type OTelConfig = telemetry.OTelConfig

// OTelProviders are the providers created by [InitTelemetry].
type OTelProviders = telemetry.Providers

// ErrCollectorUnreachable is returned by [InitTelemetry] when the collector cannot be dialed.
var ErrCollectorUnreachable = telemetry.ErrCollectorUnreachable

// NewOTelConfig returns the default OpenTelemetry configuration.
func NewOTelConfig() *OTelConfig {
	return telemetry.NewOTelConfig()
}

// InitTelemetry sets the global OpenTelemetry providers used by the groups,
// the transforms and the transports. It must be called before creating them.
func InitTelemetry(ctx context.Context, cfg *OTelConfig) (*OTelProviders, error) {
	return telemetry.Init(ctx, cfg)
}

// SetLogLevel sets the level of the console logger.
func SetLogLevel(level slog.Level) {
	telemetry.SetLogLevel(level)
}

// SetLogHandler replaces the handler of the logger.
func SetLogHandler(handler slog.Handler) {
	telemetry.SetLogHandler(handler)
}

// UseOTelLogs sends the logs to the OpenTelemetry logger provider.
func UseOTelLogs() {
	telemetry.UseOTelLogs()
}

// NewUDPSender returns a sender writing UDP datagrams to the destinations
// of a route file. The routes are reloaded on change while ctx is alive.
func NewUDPSender(ctx context.Context, routesPath string) (*transport.Sender, error) {
	resolver, err := transport.NewFileResolver(transport.NewFileResolverConfig(routesPath))
	if err != nil {
		return nil, err
	}

	udp, err := transport.NewUDPTransport(transport.NewUDPConfig())
	if err != nil {
		return nil, err
	}

	go func() {
		if err := resolver.Watch(ctx); err != nil {
			telemetry.New("rtpsgroup", "routes").LogError("route watch stopped", err)
		}
	}()

	return transport.NewSender(resolver, udp), nil
}

var (
	_ group.Sender          = (*transport.Sender)(nil)
	_ group.CryptoTransform = (*security.Transform)(nil)
)
