// Package session exposes the typed operation set a controller uses to play
// the remote game: connect, observe, load levels and shoot. A Session owns one
// connection and is not safe for concurrent use; callers serialize access.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/game"
	"github.com/energizer-project/slingshot/internal/metrics"
	"github.com/energizer-project/slingshot/internal/network"
	"github.com/energizer-project/slingshot/internal/protocol"
)

// DefaultMaxZoomTrials bounds the zoom-out precondition of a shot.
const DefaultMaxZoomTrials = 5

// Transport is the connection a Session drives. *network.Connection
// implements it.
type Transport interface {
	Exchange(req []byte, n int) ([]byte, error)
	ExchangeScreenshot() (protocol.ScreenshotHeader, []byte, error)
	Close() error
	IsClosed() bool
}

// DialFunc opens a Transport.
type DialFunc func(ctx context.Context, addr string) (Transport, error)

// Options configures a Session.
type Options struct {
	Addr           string
	TeamID         int
	ConnectTimeout time.Duration
	CallTimeout    time.Duration

	StartLevel    int
	MaxZoomTrials int
	// ShotRetries is how many times a refused shot is re-sent. Zero means a
	// refused shot is reported immediately.
	ShotRetries   int
	LoadOnConnect bool

	Bus     *events.Bus
	Metrics *metrics.Metrics
	// Dial overrides how the connection is opened.
	Dial DialFunc
}

// Screenshot is an undecoded RGB frame.
type Screenshot struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pixels []byte `json:"-"`
}

// Session is the facade over the transport, score cache and shot executor.
type Session struct {
	opts      Options
	conn      Transport
	handshake protocol.Handshake
	tracker   *Tracker
	executor  *ShotExecutor
	logger    zerolog.Logger
}

// New creates a disconnected Session.
func New(opts Options) *Session {
	if opts.MaxZoomTrials < 1 {
		opts.MaxZoomTrials = DefaultMaxZoomTrials
	}
	if opts.ShotRetries < 0 {
		opts.ShotRetries = 0
	}
	if opts.Dial == nil {
		opts.Dial = func(ctx context.Context, addr string) (Transport, error) {
			return network.Dial(ctx, addr, network.DialOptions{
				ConnectTimeout: opts.ConnectTimeout,
				CallTimeout:    opts.CallTimeout,
				Metrics:        opts.Metrics,
			})
		}
	}

	s := &Session{
		opts:   opts,
		logger: log.With().Str("component", "session").Str("addr", opts.Addr).Logger(),
	}
	s.tracker = newTracker(s, opts.StartLevel)
	s.executor = &ShotExecutor{
		x:             s,
		tracker:       s.tracker,
		maxZoomTrials: opts.MaxZoomTrials,
		shotRetries:   opts.ShotRetries,
		metrics:       opts.Metrics,
		logger:        s.logger,
	}
	return s
}

// Connect dials the server and performs the configure handshake. An open
// connection is closed first. With LoadOnConnect the current level is
// reloaded so the server matches the tracker.
func (s *Session) Connect(ctx context.Context) error {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	conn, err := s.opts.Dial(ctx, s.opts.Addr)
	if err != nil {
		return err
	}
	s.conn = conn

	data, err := s.exchange(protocol.EncodeConfigure(int32(s.opts.TeamID)), protocol.ConfigureSize)
	if err != nil {
		s.drop("handshake failed")
		return fmt.Errorf("configure handshake: %w", err)
	}
	hs, err := protocol.DecodeConfigure(data)
	if err != nil {
		s.drop("handshake malformed")
		return fmt.Errorf("configure handshake: %w", err)
	}
	if !hs.RoundOK {
		s.drop("configuration rejected")
		return fmt.Errorf("team %d: %w", s.opts.TeamID, ErrConfigurationRejected)
	}
	s.handshake = hs
	s.opts.Metrics.SetConnected(true)

	s.logger.Info().
		Int("team_id", s.opts.TeamID).
		Int("time_limit", hs.TimeLimit).
		Int("level_count", hs.LevelCount).
		Msg("handshake complete")
	s.emit(events.EventConnected, events.ConnectedPayload{
		Addr:       s.opts.Addr,
		TeamID:     s.opts.TeamID,
		TimeLimit:  hs.TimeLimit,
		LevelCount: hs.LevelCount,
	})

	if s.opts.LoadOnConnect {
		level := s.tracker.Level()
		ok, err := s.LoadLevel(level)
		if err != nil {
			return fmt.Errorf("reload level %d: %w", level, err)
		}
		if !ok {
			return fmt.Errorf("reload level %d: %w", level, ErrLevelNotLoaded)
		}
	}
	return nil
}

// Disconnect closes the connection. It is a no-op when not connected.
func (s *Session) Disconnect() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.opts.Metrics.SetConnected(false)
	s.emit(events.EventDisconnected, events.DisconnectedPayload{Reason: "requested"})
	return err
}

// Connected reports whether a live connection is held.
func (s *Session) Connected() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

// Handshake returns the parameters announced by the server on connect.
func (s *Session) Handshake() protocol.Handshake {
	return s.handshake
}

func (s *Session) exchange(req []byte, n int) ([]byte, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	data, err := s.conn.Exchange(req, n)
	if err != nil && s.conn.IsClosed() {
		s.drop(err.Error())
	}
	return data, err
}

// drop forgets a connection that failed mid-flight.
func (s *Session) drop(reason string) {
	if s.conn == nil {
		return
	}
	s.conn.Close()
	s.conn = nil
	s.opts.Metrics.SetConnected(false)
	s.emit(events.EventDisconnected, events.DisconnectedPayload{Reason: reason})
}

func (s *Session) emit(t events.EventType, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Emit(context.Background(), events.Event{Type: t, Source: "session", Payload: payload})
}

// Screenshot fetches the current frame.
func (s *Session) Screenshot() (Screenshot, error) {
	if !s.Connected() {
		return Screenshot{}, ErrNotConnected
	}
	header, pixels, err := s.conn.ExchangeScreenshot()
	if err != nil {
		if s.conn.IsClosed() {
			s.drop(err.Error())
		}
		return Screenshot{}, fmt.Errorf("failed to fetch screenshot: %w", err)
	}
	return Screenshot{Width: header.Width, Height: header.Height, Pixels: pixels}, nil
}

// Status queries the game status.
func (s *Session) Status() (game.Status, error) {
	data, err := s.exchange(protocol.EncodeQuery(protocol.OpGetState), protocol.IntSize)
	if err != nil {
		return game.StatusUnknown, fmt.Errorf("failed to query status: %w", err)
	}
	code, err := protocol.DecodeInt32(data)
	if err != nil {
		return game.StatusUnknown, err
	}
	status, err := game.ParseStatus(code)
	if err != nil {
		return game.StatusUnknown, err
	}
	s.emit(events.EventStatusObserved, events.StatusPayload{Level: s.tracker.Level(), Status: status})
	return status, nil
}

// CurrentScore queries and caches the score of the current level.
func (s *Session) CurrentScore() (int, error) {
	score, err := s.tracker.CurrentScore()
	if err != nil {
		return 0, err
	}
	s.emit(events.EventScoreUpdated, events.ScoreUpdatedPayload{Level: s.tracker.Level(), Score: score})
	return score, nil
}

// BestScores returns the best score the server holds for every level.
func (s *Session) BestScores() ([]int, error) {
	data, err := s.exchange(protocol.EncodeQuery(protocol.OpGetBestScores), protocol.IntSize*protocol.LevelSlots)
	if err != nil {
		return nil, fmt.Errorf("failed to query best scores: %w", err)
	}
	return protocol.DecodeScores(data)
}

// ServerLevel asks the server which level it is on.
func (s *Session) ServerLevel() (int, error) {
	data, err := s.exchange(protocol.EncodeQuery(protocol.OpGetCurrentLevel), protocol.IntSize)
	if err != nil {
		return 0, fmt.Errorf("failed to query level: %w", err)
	}
	v, err := protocol.DecodeInt32(data)
	if err != nil {
		return 0, err
	}
	if err := game.ValidateLevel(int(v)); err != nil {
		return 0, fmt.Errorf("%w: %w", protocol.ErrMalformedResponse, err)
	}
	return int(v), nil
}

// IsLevelOver asks the server whether the current level has ended.
func (s *Session) IsLevelOver() (bool, error) {
	return s.simple(protocol.OpIsLevelOver)
}

// CurrentLevel returns the level pointer without I/O.
func (s *Session) CurrentLevel() int {
	return s.tracker.Level()
}

// TotalScore sums the cached per-level scores.
func (s *Session) TotalScore() int {
	return s.tracker.Board().Total()
}

// Levels returns a snapshot of every level slot.
func (s *Session) Levels() []game.LevelStat {
	return s.tracker.Board().Snapshot()
}

// LoadLevel loads level n. It fails with game.ErrInvalidLevel before any I/O
// when n is out of range, and returns false when the server refuses.
func (s *Session) LoadLevel(n int) (bool, error) {
	ok, err := s.tracker.LoadLevel(n)
	if err != nil || !ok {
		if err == nil {
			s.logger.Warn().Int("level", n).Msg("server refused level load")
		}
		return ok, err
	}
	s.loaded(events.EventLevelLoaded)
	return true, nil
}

// NextLevel advances to the following level. It returns false with a nil
// error when the last level has already been reached.
func (s *Session) NextLevel() (bool, error) {
	ok, err := s.tracker.NextLevel()
	if ok {
		s.loaded(events.EventLevelLoaded)
	}
	return ok, err
}

// RestartLevel restarts the current level.
func (s *Session) RestartLevel() (bool, error) {
	ok, err := s.simple(protocol.OpRestartLevel)
	if ok {
		s.tracker.Board().ResetShots(s.tracker.Level())
		s.loaded(events.EventLevelRestarted)
	}
	return ok, err
}

func (s *Session) loaded(t events.EventType) {
	level := s.tracker.Level()
	s.opts.Metrics.SetLevel(level)
	s.logger.Info().Int("level", level).Str("event", string(t)).Msg("level ready")
	s.emit(t, events.LevelPayload{Level: level})
}

// ZoomIn fully zooms in.
func (s *Session) ZoomIn() (bool, error) {
	return s.simple(protocol.OpFullZoomIn)
}

// ZoomOut fully zooms out.
func (s *Session) ZoomOut() (bool, error) {
	return s.simple(protocol.OpFullZoomOut)
}

// ClickCenter clicks the center of the screen.
func (s *Session) ClickCenter() (bool, error) {
	return s.simple(protocol.OpClickInCenter)
}

// simple issues a parameterless request answered by a result flag. It is
// never retried.
func (s *Session) simple(op byte) (bool, error) {
	data, err := s.exchange(protocol.EncodeQuery(op), protocol.ResultSize)
	if err != nil {
		return false, fmt.Errorf("%s: %w", protocol.OpName(op), err)
	}
	ok, err := protocol.DecodeResult(data)
	if err != nil {
		return false, fmt.Errorf("%s: %w", protocol.OpName(op), err)
	}
	return ok, nil
}

// Shoot fires a shot and returns the reward: the score gained on the current
// level, or RewardRejected when the server refused the shot.
func (s *Session) Shoot(shot protocol.Shot, mode protocol.ShotMode) (int, error) {
	res, err := s.Fire(shot, mode)
	return res.Reward, err
}

// Fire is Shoot with the full result.
func (s *Session) Fire(shot protocol.Shot, mode protocol.ShotMode) (ShotResult, error) {
	if !s.Connected() {
		return ShotResult{Level: s.tracker.Level(), Reward: RewardRejected}, ErrNotConnected
	}
	res, err := s.executor.Shoot(shot, mode)
	if err != nil {
		s.logger.Error().Err(err).Int("level", res.Level).Msg("shot failed")
		return res, err
	}

	params := protocol.ShotParamsOf(shot)
	s.emit(events.EventShotFired, events.ShotFiredPayload{
		Level:     res.Level,
		Kind:      shot.Kind(),
		Mode:      mode.String(),
		Params:    params,
		Accepted:  res.Accepted,
		PreScore:  res.PreScore,
		PostScore: res.PostScore,
		Reward:    res.Reward,
		Attempts:  res.Attempts,
	})
	if res.Accepted {
		s.emit(events.EventScoreUpdated, events.ScoreUpdatedPayload{Level: res.Level, Score: res.PostScore})
	}
	s.logger.Info().
		Int("level", res.Level).
		Str("kind", shot.Kind()).
		Str("mode", mode.String()).
		Bool("accepted", res.Accepted).
		Int("reward", res.Reward).
		Msg("shot fired")
	return res, nil
}
