package network

import (
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
)

// Handler serves one accepted connection.
type Handler func(ctx context.Context, conn net.Conn)

// Listen opens a TCP listener with SO_REUSEADDR so a restarted process can
// rebind a port still in TIME_WAIT.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts connections until ctx is cancelled, running handler for each
// one in its own goroutine. It closes ln on return.
func Serve(ctx context.Context, ln net.Listener, handler Handler) error {
	logger := log.With().Str("component", "listener").Str("addr", ln.Addr().String()).Logger()
	logger.Info().Msg("TCP listener started")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info().Msg("TCP listener stopping")
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("new client connection")
		go handler(ctx, conn)
	}
}
