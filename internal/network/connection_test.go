package network

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/energizer-project/slingshot/internal/protocol"
)

// pipe returns a client Connection and the raw server end of an in-memory stream.
func pipe(t *testing.T, timeout time.Duration) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewConnection(client, timeout), server
}

func TestExchange(t *testing.T) {
	conn, server := pipe(t, time.Second)

	go func() {
		req := make([]byte, 1)
		if _, err := io.ReadFull(server, req); err != nil {
			return
		}
		server.Write(protocol.EncodeInt32(5))
	}()

	data, err := conn.Exchange(protocol.EncodeQuery(protocol.OpGetState), protocol.IntSize)
	if err != nil {
		t.Fatalf("Exchange() failed: %v", err)
	}
	v, err := protocol.DecodeInt32(data)
	if err != nil || v != 5 {
		t.Errorf("reply = %d, %v; want 5", v, err)
	}
	if conn.IsClosed() {
		t.Error("connection closed after a good exchange")
	}
}

func TestExchangeTimeoutClosesConnection(t *testing.T) {
	conn, server := pipe(t, 50*time.Millisecond)

	go func() {
		// Swallow the request and never answer.
		io.ReadFull(server, make([]byte, 1))
	}()

	_, err := conn.Exchange(protocol.EncodeQuery(protocol.OpGetMyScore), protocol.IntSize)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Exchange() err = %v, want ErrTimeout", err)
	}
	if !conn.IsClosed() {
		t.Error("connection still open after timeout")
	}

	_, err = conn.Exchange(protocol.EncodeQuery(protocol.OpGetMyScore), protocol.IntSize)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("second Exchange() err = %v, want ErrClosed", err)
	}
}

func TestExchangeScreenshotFragments(t *testing.T) {
	conn, server := pipe(t, time.Second)

	header := protocol.ScreenshotHeader{Width: 10, Height: 4}
	payload := bytes.Repeat([]byte{1, 2, 3}, header.Width*header.Height)

	go func() {
		req := make([]byte, 1)
		if _, err := io.ReadFull(server, req); err != nil {
			return
		}
		server.Write(protocol.EncodeScreenshotHeader(header))
		third := len(payload) / 3
		server.Write(payload[:third])
		server.Write(payload[third : 2*third])
		server.Write(payload[2*third:])
	}()

	got, pixels, err := conn.ExchangeScreenshot()
	if err != nil {
		t.Fatalf("ExchangeScreenshot() failed: %v", err)
	}
	if got != header {
		t.Errorf("header = %+v, want %+v", got, header)
	}
	if len(pixels) != header.Size() {
		t.Fatalf("payload len = %d, want %d", len(pixels), header.Size())
	}
	if !bytes.Equal(pixels, payload) {
		t.Error("payload mismatch")
	}
}

func TestExchangeScreenshotBadHeader(t *testing.T) {
	conn, server := pipe(t, time.Second)

	go func() {
		io.ReadFull(server, make([]byte, 1))
		server.Write(protocol.EncodeScreenshotHeader(protocol.ScreenshotHeader{Width: -4, Height: 2}))
	}()

	_, _, err := conn.ExchangeScreenshot()
	if !errors.Is(err, protocol.ErrMalformedResponse) {
		t.Fatalf("ExchangeScreenshot() err = %v, want ErrMalformedResponse", err)
	}
	if !conn.IsClosed() {
		t.Error("connection still open after a bad header")
	}
}

func TestDialAndServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, err := Listen(ctx, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() failed: %v", err)
	}
	go Serve(ctx, ln, func(ctx context.Context, c net.Conn) {
		defer c.Close()
		op, params, err := protocol.ReadRequest(c)
		if err != nil || op != protocol.OpLoadLevel || len(params) != 1 {
			return
		}
		c.Write(protocol.EncodeResult(params[0] == 4))
	})

	conn, err := Dial(ctx, ln.Addr().String(), DialOptions{ConnectTimeout: time.Second, CallTimeout: time.Second})
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer conn.Close()

	data, err := conn.Exchange(protocol.EncodeLoadLevel(4), protocol.ResultSize)
	if err != nil {
		t.Fatalf("Exchange() failed: %v", err)
	}
	ok, err := protocol.DecodeResult(data)
	if err != nil || !ok {
		t.Errorf("load level reply = %v, %v", ok, err)
	}
}
