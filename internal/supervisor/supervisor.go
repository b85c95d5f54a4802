// Package supervisor keeps a session usable across long runs: it can own the
// game-server process, connects with retry, reconnects after a timeout and
// restarts the server every N episodes.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/metrics"
	"github.com/energizer-project/slingshot/internal/session"
)

// Session is the part of session.Session the supervisor drives.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
}

// Process is the game-server process, implemented by *ProcessManager.
type Process interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	PID() int
}

// Options configures a Supervisor.
type Options struct {
	// Process is nil when the game server is managed elsewhere.
	Process       Process
	StartupDelay  time.Duration
	Retries       int
	RetryInterval time.Duration
	// RestartEvery restarts the process after this many episodes; zero
	// disables restarts.
	RestartEvery int

	Bus     *events.Bus
	Metrics *metrics.Metrics
}

// Supervisor drives the lifecycle of one session.
type Supervisor struct {
	mu       sync.Mutex
	sess     Session
	opts     Options
	episodes int
	logger   zerolog.Logger
}

// New creates a supervisor for sess.
func New(sess Session, opts Options) *Supervisor {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	s := &Supervisor{
		sess:   sess,
		opts:   opts,
		logger: log.With().Str("component", "supervisor").Logger(),
	}
	if pm, ok := opts.Process.(*ProcessManager); ok {
		pm.OnExit(s.processExited)
	}
	return s
}

func (s *Supervisor) processExited(pid, exitCode int, err error) {
	payload := events.ProcessPayload{PID: pid, ExitCode: exitCode}
	if err != nil {
		payload.Error = err.Error()
	}
	s.emit(events.EventProcessExited, payload)
}

// Start launches the game server when one is configured and connects.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startProcess(ctx); err != nil {
		return err
	}
	return s.connect(ctx)
}

func (s *Supervisor) startProcess(ctx context.Context) error {
	p := s.opts.Process
	if p == nil {
		return nil
	}
	if !p.IsRunning() {
		if err := p.Start(ctx); err != nil {
			return fmt.Errorf("start game server: %w", err)
		}
		s.emit(events.EventProcessStarted, events.ProcessPayload{PID: p.PID()})
	}
	return sleep(ctx, s.opts.StartupDelay)
}

// connect retries Connect until it succeeds, the attempts run out or the
// server refuses the team.
func (s *Supervisor) connect(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= s.opts.Retries; attempt++ {
		if err = s.sess.Connect(ctx); err == nil {
			return nil
		}
		if errors.Is(err, session.ErrConfigurationRejected) {
			return err
		}
		s.logger.Warn().Err(err).Int("attempt", attempt).Int("of", s.opts.Retries).Msg("connect failed")
		if attempt < s.opts.Retries {
			if werr := sleep(ctx, s.opts.RetryInterval); werr != nil {
				return werr
			}
		}
	}
	return fmt.Errorf("connect failed after %d attempts: %w", s.opts.Retries, err)
}

// Recover drops the current connection and connects again. With
// restartProcess the game server is restarted in between.
func (s *Supervisor) Recover(ctx context.Context, restartProcess bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recover(ctx, restartProcess)
}

func (s *Supervisor) recover(ctx context.Context, restartProcess bool) error {
	s.logger.Info().Bool("restart_process", restartProcess).Msg("recovering session")
	s.sess.Disconnect()

	if restartProcess && s.opts.Process != nil {
		if err := s.opts.Process.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("stop game server failed")
		}
		if err := s.startProcess(ctx); err != nil {
			return err
		}
	}

	if err := s.connect(ctx); err != nil {
		return err
	}
	s.opts.Metrics.Reconnect()
	s.emit(events.EventReconnected, nil)
	return nil
}

// EndEpisode counts a finished episode and restarts the game server when
// the restart cadence is reached. It reports whether a restart happened.
func (s *Supervisor) EndEpisode(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.episodes++
	restart := s.opts.RestartEvery > 0 && s.episodes%s.opts.RestartEvery == 0
	if restart {
		if err := s.recover(ctx, true); err != nil {
			return false, err
		}
	}
	s.emit(events.EventEpisodeRestarted, events.EpisodeRestartedPayload{
		Episode:        s.episodes,
		ProcessRestart: restart,
	})
	return restart, nil
}

// Episodes returns the number of finished episodes.
func (s *Supervisor) Episodes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.episodes
}

// Stop disconnects and stops the game server.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sess.Disconnect()
	if s.opts.Process != nil {
		return s.opts.Process.Stop()
	}
	return nil
}

func (s *Supervisor) emit(t events.EventType, payload interface{}) {
	if s.opts.Bus == nil {
		return
	}
	s.opts.Bus.Emit(context.Background(), events.Event{Type: t, Source: "supervisor", Payload: payload})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
