package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultStopTimeout is how long Stop waits after an interrupt before
// killing the process.
const DefaultStopTimeout = 10 * time.Second

// ProcessConfig describes how to launch the game server.
type ProcessConfig struct {
	Executable  string
	Args        []string
	WorkDir     string
	EnvVars     map[string]string
	StopTimeout time.Duration
}

// ProcessStats is a resource sample of the running game server.
type ProcessStats struct {
	PID        int           `json:"pid"`
	CPUPercent float64       `json:"cpu_percent"`
	MemoryMB   float64       `json:"memory_mb"`
	Uptime     time.Duration `json:"uptime"`
}

// ProcessManager owns one game-server OS process.
type ProcessManager struct {
	mu     sync.Mutex
	cfg    ProcessConfig
	cmd    *exec.Cmd
	proc   *process.Process
	done   chan struct{}
	logger zerolog.Logger

	pid       int
	running   bool
	startedAt time.Time
	exitCode  int
	exitErr   error

	onExit func(pid, exitCode int, err error)
}

// NewProcessManager creates a manager; nothing is started yet.
func NewProcessManager(cfg ProcessConfig) *ProcessManager {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &ProcessManager{
		cfg:      cfg,
		exitCode: -1,
		logger:   log.With().Str("component", "process").Str("executable", cfg.Executable).Logger(),
	}
}

// OnExit registers a callback run after the process exits.
func (pm *ProcessManager) OnExit(fn func(pid, exitCode int, err error)) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.onExit = fn
}

// Start launches the process. The context is not bound to the process
// lifetime; termination goes through Stop or Kill.
func (pm *ProcessManager) Start(_ context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.running {
		return fmt.Errorf("process already running (pid: %d)", pm.pid)
	}

	cmd := exec.Command(pm.cfg.Executable, pm.cfg.Args...)
	cmd.Dir = pm.cfg.WorkDir
	if len(pm.cfg.EnvVars) > 0 {
		cmd.Env = mergeEnv(os.Environ(), pm.cfg.EnvVars)
	}
	setPlatformProcessAttrs(cmd)

	pm.logger.Info().
		Strs("args", pm.cfg.Args).
		Str("workdir", pm.cfg.WorkDir).
		Msg("starting game server process")

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}

	pm.cmd = cmd
	pm.pid = cmd.Process.Pid
	pm.running = true
	pm.startedAt = time.Now()
	pm.exitCode = -1
	pm.exitErr = nil
	pm.done = make(chan struct{})
	pm.proc = nil
	if p, err := process.NewProcess(int32(pm.pid)); err == nil {
		pm.proc = p
	}

	pm.logger.Info().Int("pid", pm.pid).Msg("game server process started")

	go pm.monitor(cmd, pm.done)
	return nil
}

func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	for _, e := range base {
		key, _, _ := strings.Cut(e, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, e)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// monitor waits for the process and records its exit.
func (pm *ProcessManager) monitor(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	pm.mu.Lock()
	pm.running = false
	pm.exitErr = err
	if cmd.ProcessState != nil {
		pm.exitCode = cmd.ProcessState.ExitCode()
	}
	pid, code, onExit := pm.pid, pm.exitCode, pm.onExit
	close(done)
	pm.mu.Unlock()

	pm.logger.Info().Int("pid", pid).Int("exit_code", code).Msg("game server process exited")
	if onExit != nil {
		onExit(pid, code, err)
	}
}

// Stop interrupts the process and kills it if it has not exited within the
// stop timeout.
func (pm *ProcessManager) Stop() error {
	pm.mu.Lock()
	if !pm.running || pm.cmd == nil {
		pm.mu.Unlock()
		return nil
	}
	proc, done, pid := pm.cmd.Process, pm.done, pm.pid
	pm.mu.Unlock()

	pm.logger.Info().Int("pid", pid).Msg("stopping game server process")

	if err := proc.Signal(os.Interrupt); err != nil {
		pm.logger.Debug().Err(err).Msg("interrupt failed, killing")
		if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill process %d: %w", pid, err)
		}
		<-done
		return nil
	}

	select {
	case <-done:
		pm.logger.Info().Msg("process stopped gracefully")
	case <-time.After(pm.cfg.StopTimeout):
		pm.logger.Warn().Dur("timeout", pm.cfg.StopTimeout).Msg("process did not stop, force killing")
		proc.Kill()
		<-done
	}
	return nil
}

// Kill terminates the process immediately.
func (pm *ProcessManager) Kill() error {
	pm.mu.Lock()
	if !pm.running || pm.cmd == nil {
		pm.mu.Unlock()
		return nil
	}
	proc, done := pm.cmd.Process, pm.done
	pm.mu.Unlock()

	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	<-done
	return nil
}

// Done is closed when the current process exits.
func (pm *ProcessManager) Done() <-chan struct{} {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.done
}

// IsRunning returns whether the process is currently running.
func (pm *ProcessManager) IsRunning() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.running
}

// PID returns the process ID of the last start.
func (pm *ProcessManager) PID() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.pid
}

// ExitCode returns the exit code of the process (-1 while running or when
// killed by a signal).
func (pm *ProcessManager) ExitCode() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.exitCode
}

// Stats samples CPU and memory usage of the running process.
func (pm *ProcessManager) Stats() (ProcessStats, error) {
	pm.mu.Lock()
	proc, pid, running, started := pm.proc, pm.pid, pm.running, pm.startedAt
	pm.mu.Unlock()

	if !running || proc == nil {
		return ProcessStats{}, fmt.Errorf("process not available")
	}

	stats := ProcessStats{PID: pid, Uptime: time.Since(started)}
	cpu, err := proc.CPUPercent()
	if err != nil {
		return stats, err
	}
	stats.CPUPercent = cpu
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return stats, err
	}
	stats.MemoryMB = float64(memInfo.RSS) / (1024 * 1024)
	return stats, nil
}
