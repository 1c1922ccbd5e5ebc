package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/livecaption/wsbroadcast/pkg/broadcast"
	"github.com/livecaption/wsbroadcast/pkg/pool"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "wsbroadcast").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for pool operation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "wsbroadcast",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records broadcast server and pool activity in Prometheus.
//
// It is a broadcast.Observer; Interceptor times pool operations.
type Metrics struct {
	serverState    *prometheus.GaugeVec
	connections    *prometheus.GaugeVec
	published      *prometheus.CounterVec
	recipients     *prometheus.CounterVec
	publishedBytes *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	poolOps        *prometheus.CounterVec
	poolOpDuration *prometheus.HistogramVec
}

var _ broadcast.Observer = (*Metrics)(nil)

// Prometheus registers the collectors and returns the recorder.
//
// Metrics collected:
//   - wsbroadcast_server_state: Gauge of each server's lifecycle state
//   - wsbroadcast_connections: Gauge of open WebSocket connections by port
//   - wsbroadcast_messages_published_total: Counter of fan-outs by port
//   - wsbroadcast_message_recipients_total: Counter of frames queued by port
//   - wsbroadcast_published_bytes_total: Counter of payload bytes by port
//   - wsbroadcast_messages_dropped_total: Counter of drops by port and reason
//   - wsbroadcast_pool_operations_total: Counter of pool operations by status
//   - wsbroadcast_pool_operation_duration_seconds: Histogram of pool operations
//
// Example:
//
//	m := middleware.Prometheus(middleware.WithRegistry(reg))
//	p := pool.New(pool.WithObserver(m), pool.WithInterceptor(m.Interceptor()))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Registering twice on the same registry panics, as with promauto.
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}

	factory := promauto.With(config.Registry)
	return &Metrics{
		serverState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "server_state",
			Help:        "Lifecycle state of each broadcast server (1 for the current state)",
			ConstLabels: config.ConstLabels,
		}, []string{"port", "state"}),

		connections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections",
			Help:        "Number of open WebSocket connections",
			ConstLabels: config.ConstLabels,
		}, []string{"port"}),

		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_published_total",
			Help:        "Total number of messages fanned out by the event loop",
			ConstLabels: config.ConstLabels,
		}, []string{"port"}),

		recipients: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "message_recipients_total",
			Help:        "Total number of frames queued to connections",
			ConstLabels: config.ConstLabels,
		}, []string{"port"}),

		publishedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "published_bytes_total",
			Help:        "Total payload bytes of published messages",
			ConstLabels: config.ConstLabels,
		}, []string{"port"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_dropped_total",
			Help:        "Total messages dropped by reason",
			ConstLabels: config.ConstLabels,
		}, []string{"port", "reason"}),

		poolOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pool_operations_total",
			Help:        "Total pool operations by status",
			ConstLabels: config.ConstLabels,
		}, []string{"op", "status"}),

		poolOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "pool_operation_duration_seconds",
			Help:        "Pool operation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"op"}),
	}
}

var allStates = []broadcast.State{
	broadcast.StateCreated,
	broadcast.StateStarting,
	broadcast.StateListening,
	broadcast.StateFailed,
	broadcast.StateStopped,
}

// StateChanged implements broadcast.Observer.
func (m *Metrics) StateChanged(port int, _, to broadcast.State) {
	p := portLabel(port)
	for _, s := range allStates {
		v := 0.0
		if s == to {
			v = 1
		}
		m.serverState.WithLabelValues(p, s.String()).Set(v)
	}
}

// ConnectionOpened implements broadcast.Observer.
func (m *Metrics) ConnectionOpened(port int) {
	m.connections.WithLabelValues(portLabel(port)).Inc()
}

// ConnectionClosed implements broadcast.Observer.
func (m *Metrics) ConnectionClosed(port int) {
	m.connections.WithLabelValues(portLabel(port)).Dec()
}

// MessagePublished implements broadcast.Observer.
func (m *Metrics) MessagePublished(port int, recipients int, bytes int) {
	p := portLabel(port)
	m.published.WithLabelValues(p).Inc()
	m.recipients.WithLabelValues(p).Add(float64(recipients))
	m.publishedBytes.WithLabelValues(p).Add(float64(bytes))
}

// MessageDropped implements broadcast.Observer.
func (m *Metrics) MessageDropped(port int, reason broadcast.DropReason) {
	m.dropped.WithLabelValues(portLabel(port), string(reason)).Inc()
}

// Interceptor returns a pool interceptor that counts and times operations.
func (m *Metrics) Interceptor() pool.Interceptor {
	return func(ctx context.Context, op pool.Op, port int, next func(context.Context) error) error {
		start := time.Now()
		err := next(ctx)
		m.poolOpDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
		}
		m.poolOps.WithLabelValues(string(op), status).Inc()
		return err
	}
}

func portLabel(port int) string {
	return strconv.Itoa(port)
}
