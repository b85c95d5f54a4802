// Package network owns the TCP stream to the game server. A Connection
// performs exactly one request/response exchange at a time under a per-call
// deadline and tears itself down when an exchange fails mid-flight.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/metrics"
	"github.com/energizer-project/slingshot/internal/protocol"
)

var (
	// ErrTimeout is returned when no complete reply arrived before the
	// deadline. The connection is closed and must be re-dialed.
	ErrTimeout = errors.New("exchange timed out")

	// ErrClosed is returned by exchanges on a closed connection.
	ErrClosed = errors.New("connection is closed")
)

// DialOptions configures Dial.
type DialOptions struct {
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
	Metrics        *metrics.Metrics
}

// Connection wraps the TCP stream to one game server.
type Connection struct {
	mu          sync.Mutex
	conn        net.Conn
	callTimeout time.Duration
	logger      zerolog.Logger
	metrics     *metrics.Metrics

	closed bool
}

// Dial connects to the game server at addr.
func Dial(ctx context.Context, addr string, opts DialOptions) (*Connection, error) {
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to game server %s: %w", addr, err)
	}
	c := NewConnection(conn, opts.CallTimeout)
	c.metrics = opts.Metrics
	c.logger.Info().Msg("connected to game server")
	return c, nil
}

// NewConnection wraps an existing net.Conn. A zero callTimeout disables the
// per-call deadline.
func NewConnection(conn net.Conn, callTimeout time.Duration) *Connection {
	return &Connection{
		conn:        conn,
		callTimeout: callTimeout,
		logger:      log.With().Str("component", "connection").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// Exchange sends req and blocks until exactly n reply bytes have arrived or
// the call deadline passes. Any I/O failure closes the connection.
func (c *Connection) Exchange(req []byte, n int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op := opOf(req)
	start := time.Now()
	if err := c.beginLocked(req); err != nil {
		c.observe(op, err, start)
		return nil, err
	}

	data, fragments, err := protocol.ReadPayload(c.conn, n)
	if err != nil {
		err = c.failLocked(op, "read", err)
		c.observe(op, err, start)
		return nil, err
	}

	c.observe(op, nil, start)
	c.logger.Debug().
		Str("op", protocol.OpName(op)).
		Int("bytes", n).
		Int("fragments", fragments).
		Dur("took", time.Since(start)).
		Msg("exchange")
	return data, nil
}

// ExchangeScreenshot requests a screenshot, reads the size header and then
// accumulates exactly the declared number of payload bytes.
func (c *Connection) ExchangeScreenshot() (protocol.ScreenshotHeader, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op := protocol.OpScreenshot
	start := time.Now()
	if err := c.beginLocked(protocol.EncodeQuery(op)); err != nil {
		c.observe(op, err, start)
		return protocol.ScreenshotHeader{}, nil, err
	}

	raw, _, err := protocol.ReadPayload(c.conn, protocol.ScreenshotHeaderSize)
	if err != nil {
		err = c.failLocked(op, "read header", err)
		c.observe(op, err, start)
		return protocol.ScreenshotHeader{}, nil, err
	}
	header, err := protocol.DecodeScreenshotHeader(raw)
	if err != nil {
		// The payload length is unknown, so the stream cannot be resynchronized.
		c.closeLocked()
		c.observe(op, err, start)
		return protocol.ScreenshotHeader{}, nil, err
	}

	payload, fragments, err := protocol.ReadPayload(c.conn, header.Size())
	if err != nil {
		err = c.failLocked(op, "read payload", err)
		c.observe(op, err, start)
		return protocol.ScreenshotHeader{}, nil, err
	}

	c.observe(op, nil, start)
	c.logger.Debug().
		Int("width", header.Width).
		Int("height", header.Height).
		Int("fragments", fragments).
		Dur("took", time.Since(start)).
		Msg("screenshot received")
	return header, payload, nil
}

// beginLocked arms the deadline and writes the request.
func (c *Connection) beginLocked(req []byte) error {
	if c.closed {
		return ErrClosed
	}
	if c.callTimeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.callTimeout)); err != nil {
			return c.failLocked(opOf(req), "set deadline", err)
		}
	}
	if _, err := c.conn.Write(req); err != nil {
		return c.failLocked(opOf(req), "write", err)
	}
	return nil
}

// failLocked closes the connection after a mid-flight failure and maps
// deadline errors to ErrTimeout.
func (c *Connection) failLocked(op byte, stage string, err error) error {
	c.closeLocked()
	if isTimeout(err) {
		c.logger.Warn().Str("op", protocol.OpName(op)).Str("stage", stage).Msg("exchange timed out, connection dropped")
		return fmt.Errorf("%s %s: %w", protocol.OpName(op), stage, ErrTimeout)
	}
	c.logger.Error().Err(err).Str("op", protocol.OpName(op)).Str("stage", stage).Msg("exchange failed, connection dropped")
	return fmt.Errorf("%s %s: %w", protocol.OpName(op), stage, err)
}

func (c *Connection) observe(op byte, err error, start time.Time) {
	c.metrics.ObserveExchange(protocol.OpName(op),
		metrics.Classify(err, ErrTimeout, protocol.ErrMalformedResponse), time.Since(start))
}

// Close closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Connection) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info().Msg("connection closed")
	return c.conn.Close()
}

// IsClosed returns whether the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func opOf(req []byte) byte {
	if len(req) == 0 {
		return 0
	}
	return req[0]
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
