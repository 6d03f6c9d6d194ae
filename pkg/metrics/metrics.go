package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the session metrics.
type Config struct {
	// Namespace is the metrics namespace (default: "snowplow").
	Namespace string

	// Subsystem is the metrics subsystem (default: "client").
	Subsystem string

	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry. Tests should pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "snowplow",
		Subsystem: "client",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	framesTotal          *prometheus.CounterVec
	decodeErrors         prometheus.Counter
	playersTracked       prometheus.Gauge
	evictionsTotal       prometheus.Counter
	killsTotal           prometheus.Counter
	transitionsTotal     *prometheus.CounterVec
	transitionDuration   prometheus.Histogram
	commandsSentTotal    *prometheus.CounterVec
	commandsDroppedTotal *prometheus.CounterVec
}

func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Inbound frames by decoded event kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		decodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "decode_errors_total",
			Help:        "Inbound frames that failed to decode",
			ConstLabels: config.ConstLabels,
		}),

		playersTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "players_tracked",
			Help:        "Players currently mirrored in the local store",
			ConstLabels: config.ConstLabels,
		}),

		evictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "evictions_total",
			Help:        "Players evicted for missing from a snapshot",
			ConstLabels: config.ConstLabels,
		}),

		killsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "kills_total",
			Help:        "Kill records applied",
			ConstLabels: config.ConstLabels,
		}),

		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "transitions_total",
			Help:        "Become-player requests by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		transitionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "transition_duration_seconds",
			Help:        "Time from become-player request to server response",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		commandsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_sent_total",
			Help:        "Outbound commands queued for the transport",
			ConstLabels: config.ConstLabels,
		}, []string{"command"}),

		commandsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "commands_dropped_total",
			Help:        "Outbound unreliable commands dropped on a full queue",
			ConstLabels: config.ConstLabels,
		}, []string{"command"}),
	}
}

func (m *Metrics) RecordFrame(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) SetPlayersTracked(n int) {
	if m == nil {
		return
	}
	m.playersTracked.Set(float64(n))
}

func (m *Metrics) RecordEvictions(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictionsTotal.Add(float64(n))
}

func (m *Metrics) RecordKills(n int) {
	if m == nil || n == 0 {
		return
	}
	m.killsTotal.Add(float64(n))
}

// RecordTransition counts one finished become-player request. result is one
// of "accepted", "rejected" or "closed".
func (m *Metrics) RecordTransition(result string, seconds float64) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(result).Inc()
	if seconds >= 0 {
		m.transitionDuration.Observe(seconds)
	}
}

func (m *Metrics) RecordCommandSent(command string) {
	if m == nil {
		return
	}
	m.commandsSentTotal.WithLabelValues(command).Inc()
}

func (m *Metrics) RecordCommandDropped(command string) {
	if m == nil {
		return
	}
	m.commandsDroppedTotal.WithLabelValues(command).Inc()
}
