package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/slingshot/internal/api"
	"github.com/energizer-project/slingshot/internal/config"
	"github.com/energizer-project/slingshot/internal/db"
	"github.com/energizer-project/slingshot/internal/events"
	"github.com/energizer-project/slingshot/internal/metrics"
	"github.com/energizer-project/slingshot/internal/session"
	"github.com/energizer-project/slingshot/internal/supervisor"
	"github.com/energizer-project/slingshot/internal/telemetry"
)

// app owns every component of a running client.
type app struct {
	cfg     *config.Config
	bus     *events.Bus
	metrics *metrics.Metrics
	sess    *session.Session
	sup     *supervisor.Supervisor
	history *db.History
	api     *api.Server
	mqtt    *telemetry.MQTTHandler
	state   *telemetry.StateTracker

	wg    sync.WaitGroup
	errCh chan error
}

// newApp wires the components described by cfg. withAPI is false for the
// console, which owns the session exclusively.
func newApp(cfg *config.Config, withAPI bool) (*app, error) {
	a := &app{
		cfg:   cfg,
		bus:   events.NewBus(),
		state: telemetry.NewStateTracker(),
		errCh: make(chan error, 4),
	}
	a.state.Attach(a.bus)

	apiCfg := cfg.GetAPI()
	if apiCfg.EnableMetrics {
		a.metrics = metrics.Init()
	}

	if st := cfg.GetStorage(); st.Enabled {
		h, err := db.OpenHistory(st.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.history = h
		db.NewRecorder(h).Attach(a.bus)
		log.Info().Str("path", st.Path).Msg("shot history enabled")
	}

	srv := cfg.GetServer()
	sc := cfg.GetSession()
	a.sess = session.New(session.Options{
		Addr:           srv.Addr(),
		TeamID:         srv.TeamID,
		ConnectTimeout: srv.ConnectTimeout(),
		CallTimeout:    srv.CallTimeout(),
		StartLevel:     sc.StartLevel,
		MaxZoomTrials:  sc.MaxZoomTrials,
		ShotRetries:    sc.ShotRetries,
		LoadOnConnect:  sc.LoadOnConnect,
		Bus:            a.bus,
		Metrics:        a.metrics,
	})

	sv := cfg.GetSupervisor()
	opts := supervisor.Options{
		StartupDelay:  time.Duration(sv.StartupDelaySec) * time.Second,
		Retries:       sv.ConnectRetries,
		RetryInterval: time.Duration(sv.ConnectRetryIntervalSec) * time.Second,
		RestartEvery:  sv.RestartEveryEpisodes,
		Bus:           a.bus,
		Metrics:       a.metrics,
	}
	if sv.GameCommand != "" {
		opts.Process = supervisor.NewProcessManager(supervisor.ProcessConfig{
			Executable: sv.GameCommand,
			Args:       sv.GameArgs,
			WorkDir:    sv.WorkDir,
		})
	}
	a.sup = supervisor.New(a.sess, opts)

	if mc := cfg.GetMQTT(); mc.Enabled {
		h, err := telemetry.NewMQTTHandler(mc, version)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT telemetry disabled")
		} else {
			a.mqtt = h
			a.mqtt.Attach(a.bus)
		}
	}

	if withAPI && apiCfg.Enabled {
		deps := api.Deps{
			Lifecycle: a.sup,
			History:   a.history,
			Bus:       a.bus,
			Version:   version,
		}
		if a.metrics != nil {
			deps.Gatherer = prometheus.DefaultGatherer
		}
		a.api = api.NewServer(apiCfg, a.sess, deps)
	}
	return a, nil
}

// start launches the background components. Errors are reported on errCh.
func (a *app) start(ctx context.Context) {
	if a.api != nil {
		a.goRun("api", func() error { return a.api.Start(ctx) })
	}

	if a.mqtt != nil {
		a.goRun("mqtt", func() error { return a.mqtt.Start(ctx) })

		interval := time.Duration(a.cfg.GetMQTT().HeartbeatIntervalSec) * time.Second
		hb := telemetry.NewHeartbeat(a.mqtt, interval, a.state.State)
		a.goRun("heartbeat", func() error {
			hb.Run(ctx)
			return nil
		})
	}
}

// connect runs the supervisor's initial start. With the API up it goes
// through the API's session lock.
func (a *app) connect(ctx context.Context) error {
	if a.api != nil {
		return a.api.StartLifecycle(ctx)
	}
	return a.sup.Start(ctx)
}

func (a *app) goRun(name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil {
			log.Error().Err(err).Str("component", name).Msg("component failed")
			select {
			case a.errCh <- fmt.Errorf("%s: %w", name, err):
			default:
			}
		}
	}()
}

// shutdown waits for background components, then stops the supervisor so
// no API call is in flight when the session is closed.
func (a *app) shutdown(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all components stopped gracefully")
	case <-time.After(timeout):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}

	if err := a.sup.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping supervisor")
	}

	a.bus.Stop()
	if a.history != nil {
		a.history.Close()
	}
}
