package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net"
	"sync"
	"time"

	"github.com/FerroO2000/rtpsgroup/internal/config"
	"github.com/FerroO2000/rtpsgroup/internal/telemetry"
	"github.com/FerroO2000/rtpsgroup/wire"
	"go.opentelemetry.io/otel/attribute"
)

// ErrTransportClosed is returned when a transport is used after being closed.
var ErrTransportClosed = errors.New("transport: closed")

// TCPFrameHeaderSize is the size of the big endian length
// written before every message on a TCP stream.
const TCPFrameHeaderSize = 4

//////////////
//  CONFIG  //
//////////////

// TCPConfig is the configuration of a [TCPTransport].
type TCPConfig struct {
	// KeepAlive is the keep alive period of the connections.
	//
	// Default: 15s
	KeepAlive time.Duration

	// NoDelay disables the Nagle algorithm on the connections.
	//
	// Default: true
	NoDelay bool
}

// NewTCPConfig returns the default configuration of the TCP transport.
func NewTCPConfig() *TCPConfig {
	return &TCPConfig{
		KeepAlive: 15 * time.Second,
		NoDelay:   true,
	}
}

// Validate checks the configuration.
func (c *TCPConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckDuration(ac, "KeepAlive", &c.KeepAlive, 15*time.Second)
}

/////////////////
//  TRANSPORT  //
/////////////////

type tcpConn struct {
	mux  sync.Mutex
	conn *net.TCPConn
}

var _ Transport = (*TCPTransport)(nil)

// TCPTransport sends the messages over a stream per locator,
// each message prefixed by its length.
// The connections are dialed on the first write.
type TCPTransport struct {
	tel     *telemetry.Telemetry
	metrics *deliveryMetrics

	cfg *TCPConfig

	mux    sync.Mutex
	conns  map[wire.Locator]*tcpConn
	closed bool
}

// NewTCPTransport returns a new TCP transport.
func NewTCPTransport(cfg *TCPConfig) *TCPTransport {
	tel := telemetry.New("transport", "tcp")
	config.NewValidator(tel).Validate(cfg)

	tt := &TCPTransport{
		tel:     tel,
		metrics: tcpMetricsInst,

		cfg: cfg,

		conns: make(map[wire.Locator]*tcpConn),
	}

	tt.metrics.init(tel)

	return tt
}

func (tt *TCPTransport) getConn(loc wire.Locator) (*tcpConn, error) {
	tt.mux.Lock()
	defer tt.mux.Unlock()

	if tt.closed {
		return nil, ErrTransportClosed
	}

	conn, ok := tt.conns[loc]
	if !ok {
		conn = &tcpConn{}
		tt.conns[loc] = conn
	}

	return conn, nil
}

// lockConn returns the locked connection of the locator.
// The connection is still registered when it is returned, so [TCPTransport.Close] sees it.
func (tt *TCPTransport) lockConn(loc wire.Locator) (*tcpConn, error) {
	for {
		conn, err := tt.getConn(loc)
		if err != nil {
			return nil, err
		}

		conn.mux.Lock()

		tt.mux.Lock()
		current := tt.conns[loc] == conn
		closed := tt.closed
		tt.mux.Unlock()

		if current && !closed {
			return conn, nil
		}

		// Dropped by a failed writer or by Close while waiting for the lock
		conn.mux.Unlock()

		if closed {
			return nil, ErrTransportClosed
		}
	}
}

func (tt *TCPTransport) dropConn(loc wire.Locator, conn *tcpConn) {
	tt.mux.Lock()
	if tt.conns[loc] == conn {
		delete(tt.conns, loc)
	}
	tt.mux.Unlock()
}

func (tt *TCPTransport) dial(ctx context.Context, loc wire.Locator, deadline time.Time) (*net.TCPConn, error) {
	dialer := &net.Dialer{
		Deadline:  deadline,
		KeepAlive: tt.cfg.KeepAlive,
	}

	conn, err := dialer.DialContext(ctx, "tcp", loc.AddrPort().String())
	if err != nil {
		return nil, err
	}

	tc := conn.(*net.TCPConn)
	if err := tc.SetNoDelay(tt.cfg.NoDelay); err != nil {
		tc.Close()
		return nil, err
	}

	tt.tel.LogDebug("connected", "locator", loc)

	return tc, nil
}

// Write sends the message to the locator, dialing it if needed.
// A connection that fails a write is closed and dialed again on the next one.
func (tt *TCPTransport) Write(ctx context.Context, msg []byte, loc wire.Locator, deadline time.Time) error {
	ctx, span := tt.tel.NewTrace(ctx, "deliver TCP message")
	defer span.End()

	if !loc.Kind.IsTCP() {
		return fmt.Errorf("%w: %s", ErrUnsupportedLocator, loc)
	}

	if uint64(len(msg)) > math.MaxUint32 {
		return fmt.Errorf("message of %d bytes cannot be framed", len(msg))
	}

	span.SetAttributes(
		attribute.Int("message_size", len(msg)),
		attribute.String("locator", loc.String()),
	)

	conn, err := tt.lockConn(loc)
	if err != nil {
		return err
	}
	defer conn.mux.Unlock()

	if conn.conn == nil {
		c, err := tt.dial(ctx, loc, deadline)
		if err != nil {
			tt.metrics.incrementFailedWrites()
			tt.dropConn(loc, conn)
			return err
		}
		conn.conn = c
	}

	if err := tt.writeFrame(conn.conn, msg, deadline); err != nil {
		tt.metrics.incrementFailedWrites()
		span.RecordError(err)

		conn.conn.Close()
		conn.conn = nil
		tt.dropConn(loc, conn)

		return err
	}

	return nil
}

func (tt *TCPTransport) writeFrame(conn *net.TCPConn, msg []byte, deadline time.Time) error {
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	var header [TCPFrameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(msg)))

	frame := net.Buffers{header[:], msg}
	n, err := frame.WriteTo(conn)
	if err != nil {
		return err
	}

	// Update metrics
	tt.metrics.addDelivered(int(n))

	return nil
}

// Close closes all the connections.
func (tt *TCPTransport) Close() error {
	tt.mux.Lock()
	if tt.closed {
		tt.mux.Unlock()
		return nil
	}
	tt.closed = true

	conns := maps.Clone(tt.conns)
	clear(tt.conns)
	tt.mux.Unlock()

	var errs []error
	for loc, conn := range conns {
		conn.mux.Lock()
		if conn.conn != nil {
			if err := conn.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("locator %s: %w", loc, err))
			}
			conn.conn = nil
		}
		conn.mux.Unlock()
	}

	return errors.Join(errs...)
}

// ReadFrame reads a message framed by a [TCPTransport] from r.
func ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	var header [TCPFrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := int(binary.BigEndian.Uint32(header[:]))
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	buf = buf[:size]

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}
