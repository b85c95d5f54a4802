// Package simulator is a reference game server speaking the slingshot wire
// format. It keeps a small in-memory game (level, per-level scores, status)
// and exposes hooks to script failures: rejected handshakes, failing zoom,
// refused shots, stalled replies and fragmented screenshots.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/network"
	"github.com/energizer-project/slingshot/internal/protocol"
)

// Options shapes the simulated game and its failure modes.
type Options struct {
	Handshake protocol.Handshake

	// Screenshot dimensions and the number of writes the payload is split into.
	Width, Height int
	Fragments     int

	// ZoomOutFailures makes the next N zoom-out requests fail.
	ZoomOutFailures int
	// ZoomOutAlwaysFails makes every zoom-out request fail.
	ZoomOutAlwaysFails bool

	// RejectShots refuses every shoot request.
	RejectShots bool
	// ShotGains is added to the current level score by successive accepted
	// shots, cycling. Empty means shots score nothing.
	ShotGains []int
	// WinAfterShots switches the level to won after that many accepted shots.
	WinAfterShots int

	// RejectLoads refuses every load-level request.
	RejectLoads bool

	// Stall lists opcodes that are read but never answered.
	Stall map[byte]bool
}

// DefaultOptions returns a cooperative server.
func DefaultOptions() Options {
	return Options{
		Handshake: protocol.Handshake{RoundOK: true, TimeLimit: 30, LevelCount: game.MaxLevel},
		Width:     840,
		Height:    480,
		Fragments: 1,
	}
}

// Server is a single-game simulator. Every accepted connection plays the
// same game.
type Server struct {
	mu     sync.Mutex
	opts   Options
	logger zerolog.Logger

	level     int
	status    game.Status
	scores    [game.MaxLevel]int
	best      [game.MaxLevel]int
	shots     int
	gainIndex int

	rawStatus *int32
	rawLevel  *int32

	calls map[byte]int
	ln    net.Listener
	done  chan struct{}
}

// New creates a simulator positioned on level 1 at the level selection screen.
func New(opts Options) *Server {
	if opts.Fragments < 1 {
		opts.Fragments = 1
	}
	return &Server{
		opts:   opts,
		level:  game.MinLevel,
		status: game.StatusLevelSelection,
		calls:  make(map[byte]int),
		logger: log.With().Str("component", "simulator").Logger(),
	}
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves in the
// background until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := network.Listen(ctx, addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		if err := network.Serve(ctx, ln, s.handle); err != nil {
			s.logger.Debug().Err(err).Msg("serve loop ended")
		}
	}()
	return nil
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	ln, done := s.ln, s.done
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	<-done
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		op, params, err := protocol.ReadRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Debug().Err(err).Msg("client gone")
			}
			return
		}

		reply, stall := s.Apply(op, params)
		if stall {
			logger.Debug().Str("op", protocol.OpName(op)).Msg("stalling reply")
			io.Copy(io.Discard, conn)
			return
		}
		if err := s.write(conn, op, reply); err != nil {
			logger.Debug().Err(err).Msg("write failed")
			return
		}
	}
}

// write sends a reply, splitting screenshot payloads into fragments.
func (s *Server) write(conn net.Conn, op byte, reply []byte) error {
	s.mu.Lock()
	fragments := s.opts.Fragments
	s.mu.Unlock()

	if op != protocol.OpScreenshot || fragments <= 1 || len(reply) <= protocol.ScreenshotHeaderSize {
		_, err := conn.Write(reply)
		return err
	}
	if _, err := conn.Write(reply[:protocol.ScreenshotHeaderSize]); err != nil {
		return err
	}
	payload := reply[protocol.ScreenshotHeaderSize:]
	step := (len(payload) + fragments - 1) / fragments
	for len(payload) > 0 {
		n := step
		if n > len(payload) {
			n = len(payload)
		}
		if _, err := conn.Write(payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// Apply runs one request against the game and returns the encoded reply.
// stall reports that the request must go unanswered.
func (s *Server) Apply(op byte, params []int32) (reply []byte, stall bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[op]++
	if s.opts.Stall[op] {
		return nil, true
	}

	switch op {
	case protocol.OpConfigure:
		return protocol.EncodeHandshake(s.opts.Handshake), false
	case protocol.OpScreenshot:
		return s.screenshotLocked(), false
	case protocol.OpGetState:
		if s.rawStatus != nil {
			return protocol.EncodeInt32(*s.rawStatus), false
		}
		return protocol.EncodeInt32(int32(s.status)), false
	case protocol.OpGetBestScores:
		return protocol.EncodeScores(s.best[:]), false
	case protocol.OpGetCurrentLevel:
		if s.rawLevel != nil {
			return protocol.EncodeInt32(*s.rawLevel), false
		}
		return protocol.EncodeInt32(int32(s.level)), false
	case protocol.OpGetMyScore:
		return protocol.EncodeInt32(int32(s.scores[s.level-1])), false
	case protocol.OpCartShootSafe, protocol.OpCartShootFast, protocol.OpPolarShootSafe, protocol.OpPolarShootFast:
		return protocol.EncodeResult(s.shootLocked()), false
	case protocol.OpFullZoomOut:
		return protocol.EncodeResult(s.zoomOutLocked()), false
	case protocol.OpFullZoomIn, protocol.OpClickInCenter:
		return protocol.EncodeResult(true), false
	case protocol.OpLoadLevel:
		return protocol.EncodeResult(s.loadLocked(int(params[0]))), false
	case protocol.OpRestartLevel:
		return protocol.EncodeResult(s.loadLocked(s.level)), false
	case protocol.OpIsLevelOver:
		return protocol.EncodeResult(s.status.IsTerminal()), false
	}
	return protocol.EncodeResult(false), false
}

func (s *Server) screenshotLocked() []byte {
	header := protocol.ScreenshotHeader{Width: s.opts.Width, Height: s.opts.Height}
	out := make([]byte, 0, protocol.ScreenshotHeaderSize+header.Size())
	out = append(out, protocol.EncodeScreenshotHeader(header)...)
	for i := 0; i < header.Size(); i++ {
		out = append(out, byte(i%251))
	}
	return out
}

func (s *Server) shootLocked() bool {
	if s.opts.RejectShots || s.status.IsTerminal() {
		return false
	}
	if n := len(s.opts.ShotGains); n > 0 {
		s.scores[s.level-1] += s.opts.ShotGains[s.gainIndex%n]
		s.gainIndex++
	}
	if s.scores[s.level-1] > s.best[s.level-1] {
		s.best[s.level-1] = s.scores[s.level-1]
	}
	s.shots++
	if s.opts.WinAfterShots > 0 && s.shots >= s.opts.WinAfterShots {
		s.status = game.StatusWon
	}
	return true
}

func (s *Server) zoomOutLocked() bool {
	if s.opts.ZoomOutAlwaysFails {
		return false
	}
	if s.opts.ZoomOutFailures > 0 {
		s.opts.ZoomOutFailures--
		return false
	}
	return true
}

func (s *Server) loadLocked(level int) bool {
	if s.opts.RejectLoads || game.ValidateLevel(level) != nil {
		return false
	}
	s.level = level
	s.scores[level-1] = 0
	s.shots = 0
	s.status = game.StatusPlaying
	return true
}

// Calls returns how many requests with opcode op were received.
func (s *Server) Calls(op byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Level returns the level the simulated game is on.
func (s *Server) Level() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// SetScore overwrites the score of a level.
func (s *Server) SetScore(level, score int) error {
	if err := game.ValidateLevel(level); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[level-1] = score
	if score > s.best[level-1] {
		s.best[level-1] = score
	}
	return nil
}

// SetStatus forces the game status.
func (s *Server) SetStatus(status game.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.rawStatus = nil
}

// SetRawStatus makes get-state answer an arbitrary code.
func (s *Server) SetRawStatus(code int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawStatus = &code
}

// SetRawLevel makes get-current-level answer an arbitrary value.
func (s *Server) SetRawLevel(level int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawLevel = &level
}

// Update mutates the failure options under the server lock.
func (s *Server) Update(fn func(o *Options)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.opts)
}

func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("simulator[level=%d status=%s score=%d]", s.level, s.status, s.scores[s.level-1])
}
