package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livecaption/wsbroadcast/internal/config"
	"github.com/livecaption/wsbroadcast/internal/errors"
)

func testServeConfig(ports ...int) *config.Config {
	cfg := config.New()
	cfg.Ports = ports
	cfg.Host = "127.0.0.1"
	cfg.Admin.Address = ""
	return cfg
}

func dialRetry(t *testing.T, port int) *websocket.Conn {
	t.Helper()
	url := fmt.Sprintf("ws://127.0.0.1:%d/", port)
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Cleanup(func() { _ = conn.Close() })
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("Dial(%q) failed: %v", url, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRunServeBroadcastsStdinAndExitsOnEOF(t *testing.T) {
	port1, port2 := freePort(t), freePort(t)
	cfg := testServeConfig(port1, port2)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- runServe(context.Background(), cfg, pr, true, discardLogger())
	}()

	c1 := dialRetry(t, port1)
	c2 := dialRetry(t, port2)

	// A line written before a client is subscribed is not delivered to it,
	// so keep writing until both clients have seen one.
	stop := make(chan struct{})
	wrote := make(chan struct{})
	go func() {
		defer close(wrote)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if _, err := io.WriteString(pw, "caption\n"); err != nil {
					return
				}
			}
		}
	}()

	for _, c := range []*websocket.Conn{c1, c2} {
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, msg, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error: %v", err)
		}
		if string(msg) != "caption" {
			t.Errorf("message = %q, want %q", msg, "caption")
		}
	}
	close(stop)
	<-wrote
	pw.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe() did not return after EOF")
	}

	// Servers are stopped on return and clients see a going-away close.
	_ = c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c1.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("close error = %v, want 1001", err)
			}
			break
		}
	}
}

func TestRunServeStopsOnContextCancel(t *testing.T) {
	port := freePort(t)
	cfg := testServeConfig(port)

	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, pr, false, discardLogger())
	}()
	dialRetry(t, port)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe() did not return after cancel")
	}
}

func TestRunServeBindFailure(t *testing.T) {
	port := freePort(t)
	p := newTestPool(t)
	h, err := p.EnsureServer(t.Context(), port)
	if err != nil {
		t.Fatalf("EnsureServer() error: %v", err)
	}
	defer h.Release()

	err = runServe(context.Background(), testServeConfig(port), strings.NewReader(""), true, discardLogger())
	if !errors.Is(err, "E201") {
		t.Fatalf("runServe() on a taken port error = %v, want E201", err)
	}
}

func TestRunServeAdminBindFailure(t *testing.T) {
	p := newTestPool(t)
	port := freePort(t)
	h, err := p.EnsureServer(t.Context(), port)
	if err != nil {
		t.Fatalf("EnsureServer() error: %v", err)
	}
	defer h.Release()

	cfg := testServeConfig(freePort(t))
	cfg.Admin.Address = h.Addr()
	err = runServe(context.Background(), cfg, strings.NewReader(""), true, discardLogger())
	if !errors.Is(err, "E205") {
		t.Fatalf("runServe() with a taken admin address error = %v, want E205", err)
	}
}

func TestRunServeRedisUnavailable(t *testing.T) {
	cfg := testServeConfig(freePort(t))
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	cfg.Redis.Channels = []string{"captions"}
	cfg.Redis.ConnectTimeout = 200 * time.Millisecond

	pr, pw := io.Pipe()
	defer pw.Close()

	err := runServe(context.Background(), cfg, pr, false, discardLogger())
	if !errors.Is(err, "E206") {
		t.Fatalf("runServe() with unreachable redis error = %v, want E206", err)
	}
}
