package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/livecaption/wsbroadcast/pkg/broadcast"
	"github.com/livecaption/wsbroadcast/pkg/pool"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestPrometheus_ObserverRecordsServerActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Prometheus(WithRegistry(reg))

	m.StateChanged(9001, broadcast.StateStarting, broadcast.StateListening)
	m.ConnectionOpened(9001)
	m.ConnectionOpened(9001)
	m.ConnectionClosed(9001)
	m.MessagePublished(9001, 3, 5)
	m.MessageDropped(9001, broadcast.DropBackpressure)
	m.MessageDropped(9001, broadcast.DropNotListening)
	m.MessageDropped(9001, broadcast.DropNotListening)

	if got := metricGaugeValue(t, m.serverState.WithLabelValues("9001", "listening")); got != 1 {
		t.Fatalf("server_state(listening) = %v, want 1", got)
	}
	if got := metricGaugeValue(t, m.serverState.WithLabelValues("9001", "starting")); got != 0 {
		t.Fatalf("server_state(starting) = %v, want 0", got)
	}
	if got := metricGaugeValue(t, m.connections.WithLabelValues("9001")); got != 1 {
		t.Fatalf("connections = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.published.WithLabelValues("9001")); got != 1 {
		t.Fatalf("messages_published_total = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.recipients.WithLabelValues("9001")); got != 3 {
		t.Fatalf("message_recipients_total = %v, want 3", got)
	}
	if got := metricCounterValue(t, m.publishedBytes.WithLabelValues("9001")); got != 5 {
		t.Fatalf("published_bytes_total = %v, want 5", got)
	}
	if got := metricCounterValue(t, m.dropped.WithLabelValues("9001", "not_listening")); got != 2 {
		t.Fatalf("messages_dropped_total(not_listening) = %v, want 2", got)
	}
	if got := metricCounterValue(t, m.dropped.WithLabelValues("9001", "backpressure")); got != 1 {
		t.Fatalf("messages_dropped_total(backpressure) = %v, want 1", got)
	}
}

func TestPrometheus_InterceptorCountsAndTimes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Prometheus(WithRegistry(reg), WithNamespace("test"))
	ic := m.Interceptor()

	boom := errors.New("bind failed")
	if err := ic(context.Background(), pool.OpEnsure, 9001, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("interceptor error = %v, want nil", err)
	}
	if err := ic(context.Background(), pool.OpEnsure, 9001, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("interceptor error = %v, want %v", err, boom)
	}

	if got := metricCounterValue(t, m.poolOps.WithLabelValues("ensure", "success")); got != 1 {
		t.Fatalf("pool_operations_total(success) = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.poolOps.WithLabelValues("ensure", "error")); got != 1 {
		t.Fatalf("pool_operations_total(error) = %v, want 1", got)
	}
	if got := metricHistogramCount(t, m.poolOpDuration.WithLabelValues("ensure")); got != 2 {
		t.Fatalf("pool_operation_duration_seconds count = %d, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "test_pool_operations_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("test_pool_operations_total not registered under the namespace")
	}
}

func TestPrometheus_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Prometheus(WithRegistry(reg))

	defer func() {
		if recover() == nil {
			t.Fatal("second Prometheus() on the same registry did not panic")
		}
	}()
	Prometheus(WithRegistry(reg))
}
