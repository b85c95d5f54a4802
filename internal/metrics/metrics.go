// Package metrics exposes Prometheus collectors for the wire exchanges,
// shots and reconnects of a slingshot session.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "slingshot").
	Namespace string

	// Buckets are the histogram buckets for exchange duration.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "slingshot",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the session collectors.
type Metrics struct {
	exchangesTotal   *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	shotsTotal       *prometheus.CounterVec
	rewardTotal      prometheus.Counter
	zoomRetries      prometheus.Counter
	reconnectsTotal  prometheus.Counter
	connected        prometheus.Gauge
	currentLevel     prometheus.Gauge
}

var (
	global     *Metrics
	globalOnce sync.Once
	globalMu   sync.Mutex
)

// New registers a fresh set of collectors.
func New(opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		exchangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "exchanges_total",
			Help:      "Request/response exchanges with the game server by opcode and outcome",
		}, []string{"op", "outcome"}),

		exchangeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Round-trip time of a request/response exchange",
			Buckets:   cfg.Buckets,
		}, []string{"op"}),

		shotsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "shots_total",
			Help:      "Shots fired by mode and result",
		}, []string{"mode", "result"}),

		rewardTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reward_total",
			Help:      "Sum of positive rewards earned by accepted shots",
		}),

		zoomRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "zoom_retries_total",
			Help:      "Zoom-out attempts that failed before a shot",
		}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reconnects_total",
			Help:      "Reconnections performed by the supervisor",
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "connected",
			Help:      "1 while a connection to the game server is open",
		}),

		currentLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "current_level",
			Help:      "Level the session is currently playing",
		}),
	}
}

// Init installs the process-wide collectors. Only the first call registers.
func Init(opts ...Option) *Metrics {
	globalOnce.Do(func() {
		m := New(opts...)
		globalMu.Lock()
		global = m
		globalMu.Unlock()
	})
	return Get()
}

// Get returns the process-wide collectors, or nil when Init was never called.
func Get() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global
}

// Outcome labels of an exchange.
const (
	OutcomeOK        = "ok"
	OutcomeTimeout   = "timeout"
	OutcomeMalformed = "malformed"
	OutcomeError     = "error"
)

// ObserveExchange records one exchange. A nil receiver is a no-op so callers
// never need to check whether metrics are enabled.
func (m *Metrics) ObserveExchange(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.exchangesTotal.WithLabelValues(op, outcome).Inc()
	m.exchangeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveShot records a fired shot and its reward.
func (m *Metrics) ObserveShot(mode string, reward int) {
	if m == nil {
		return
	}
	result := "accepted"
	if reward < 0 {
		result = "rejected"
	} else if reward > 0 {
		m.rewardTotal.Add(float64(reward))
	}
	m.shotsTotal.WithLabelValues(mode, result).Inc()
}

// ZoomRetry counts a failed zoom-out attempt.
func (m *Metrics) ZoomRetry() {
	if m == nil {
		return
	}
	m.zoomRetries.Inc()
}

// Reconnect counts a supervisor reconnection.
func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

// SetConnected flips the connected gauge.
func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// SetLevel records the level being played.
func (m *Metrics) SetLevel(level int) {
	if m == nil {
		return
	}
	m.currentLevel.Set(float64(level))
}

// Classify maps an exchange error to an outcome label.
func Classify(err error, timeout, malformed error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, timeout):
		return OutcomeTimeout
	case errors.Is(err, malformed):
		return OutcomeMalformed
	}
	return OutcomeError
}
