package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"go.opentelemetry.io/otel/attribute"
)

//////////////
//  CONFIG  //
//////////////

// Default values for the UDP transport configuration.
const (
	DefaultUDPConfigLocalAddr   = ":0"
	DefaultUDPConfigWriteBuffer = 4 << 20
)

// UDPConfig is the configuration of a [UDPTransport].
type UDPConfig struct {
	// LocalAddr is the local address the socket is bound to.
	//
	// Default: ":0"
	LocalAddr string

	// WriteBuffer is the size of the socket send buffer in bytes.
	//
	// Default: 4 MiB
	WriteBuffer int
}

// NewUDPConfig returns the default configuration of the UDP transport.
func NewUDPConfig() *UDPConfig {
	return &UDPConfig{
		LocalAddr:   DefaultUDPConfigLocalAddr,
		WriteBuffer: DefaultUDPConfigWriteBuffer,
	}
}

// Validate checks the configuration.
func (c *UDPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotEmpty(ac, "LocalAddr", &c.LocalAddr, DefaultUDPConfigLocalAddr)
	config.CheckPositive(ac, "WriteBuffer", &c.WriteBuffer, DefaultUDPConfigWriteBuffer)
}

/////////////////
//  TRANSPORT  //
/////////////////

var _ Transport = (*UDPTransport)(nil)

// UDPTransport sends every message as a single datagram from one socket.
type UDPTransport struct {
	tel     *telemetry.Telemetry
	metrics *deliveryMetrics

	// mux serializes the deadline and the write on the shared socket
	mux  sync.Mutex
	conn *net.UDPConn
}

// NewUDPTransport binds the socket of the transport.
func NewUDPTransport(cfg *UDPConfig) (*UDPTransport, error) {
	tel := telemetry.New("transport", "udp")
	config.NewValidator(tel).Validate(cfg)

	laddr, err := net.ResolveUDPAddr("udp", cfg.LocalAddr)
	if err != nil {
		return nil, err
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}

	if err := conn.SetWriteBuffer(cfg.WriteBuffer); err != nil {
		tel.LogWarn("cannot set the socket send buffer", "size", cfg.WriteBuffer, "reason", err)
	}

	ut := &UDPTransport{
		tel:     tel,
		metrics: udpMetricsInst,

		conn: conn,
	}

	ut.metrics.init(tel)

	return ut, nil
}

// LocalAddr returns the address the socket is bound to.
func (ut *UDPTransport) LocalAddr() net.Addr {
	return ut.conn.LocalAddr()
}

// Write sends the message to the locator.
func (ut *UDPTransport) Write(ctx context.Context, msg []byte, loc wire.Locator, deadline time.Time) error {
	_, span := ut.tel.NewTrace(ctx, "deliver UDP message")
	defer span.End()

	if !loc.Kind.IsUDP() {
		return fmt.Errorf("%w: %s", ErrUnsupportedLocator, loc)
	}

	span.SetAttributes(
		attribute.Int("message_size", len(msg)),
		attribute.String("locator", loc.String()),
	)

	ut.mux.Lock()
	defer ut.mux.Unlock()

	if err := ut.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	deliveredBytes, err := ut.conn.WriteToUDPAddrPort(msg, loc.AddrPort())
	if err != nil {
		ut.metrics.incrementFailedWrites()
		span.RecordError(err)
		return err
	}

	// Update metrics
	ut.metrics.addDelivered(deliveredBytes)

	return nil
}

// Close closes the socket.
func (ut *UDPTransport) Close() error {
	return ut.conn.Close()
}
