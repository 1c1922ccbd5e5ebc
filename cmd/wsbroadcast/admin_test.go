package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/livecaption/wsbroadcast/pkg/broadcast"
	"github.com/livecaption/wsbroadcast/pkg/middleware"
	"github.com/livecaption/wsbroadcast/pkg/pool"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := ln.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	return port
}

func newTestPool(t *testing.T, opts ...pool.Option) *pool.Pool {
	t.Helper()
	cfg := broadcast.DefaultConfig(0)
	cfg.Host = "127.0.0.1"
	p := pool.New(append([]pool.Option{pool.WithServerConfig(cfg), pool.WithLogger(discardLogger())}, opts...)...)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func getHealth(t *testing.T, url string) (int, healthResponse) {
	t.Helper()
	resp, err := http.Get(url + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /healthz: %v", err)
	}
	return resp.StatusCode, body
}

func TestAdminHealthz(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := middleware.Prometheus(middleware.WithRegistry(reg))
	p := newTestPool(t, pool.WithObserver(m))

	port := freePort(t)
	h, err := p.EnsureServer(t.Context(), port)
	if err != nil {
		t.Fatalf("EnsureServer() error: %v", err)
	}
	defer h.Release()

	srv := httptest.NewServer(adminRouter(p, []int{port}, reg, discardLogger()))
	defer srv.Close()

	code, body := getHealth(t, srv.URL)
	if code != http.StatusOK || body.Status != "ok" {
		t.Fatalf("healthz = %d %q, want 200 ok", code, body.Status)
	}
	if len(body.Servers) != 1 || body.Servers[0].Port != port || body.Servers[0].State != "listening" {
		t.Fatalf("healthz servers = %+v, want one listening server on %d", body.Servers, port)
	}

	h.Stop()
	code, body = getHealth(t, srv.URL)
	if code != http.StatusServiceUnavailable || body.Status != "degraded" {
		t.Errorf("healthz after Stop = %d %q, want 503 degraded", code, body.Status)
	}
}

func TestAdminHealthzMissingPort(t *testing.T) {
	p := newTestPool(t)
	srv := httptest.NewServer(adminRouter(p, []int{freePort(t)}, nil, discardLogger()))
	defer srv.Close()

	code, body := getHealth(t, srv.URL)
	if code != http.StatusServiceUnavailable {
		t.Errorf("healthz = %d, want 503", code)
	}
	if len(body.Servers) != 0 {
		t.Errorf("servers = %+v, want none", body.Servers)
	}
}

func TestAdminMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := middleware.Prometheus(middleware.WithRegistry(reg))
	p := newTestPool(t, pool.WithObserver(m), pool.WithInterceptor(m.Interceptor()))

	h, err := p.EnsureServer(t.Context(), freePort(t))
	if err != nil {
		t.Fatalf("EnsureServer() error: %v", err)
	}
	defer h.Release()

	srv := httptest.NewServer(adminRouter(p, nil, reg, discardLogger()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", resp.StatusCode)
	}
	for _, want := range []string{"wsbroadcast_server_state", "wsbroadcast_pool_operations_total"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func TestAdminMetricsDisabled(t *testing.T) {
	srv := httptest.NewServer(adminRouter(newTestPool(t), nil, nil, discardLogger()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/metrics status = %d, want 404", resp.StatusCode)
	}
}
