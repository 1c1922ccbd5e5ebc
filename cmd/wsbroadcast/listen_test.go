package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/livecaption/wsbroadcast/internal/errors"
	"github.com/livecaption/wsbroadcast/pkg/broadcast"
)

func startBroadcastServer(t *testing.T) *broadcast.Server {
	t.Helper()
	cfg := broadcast.DefaultConfig(0)
	cfg.Host = "127.0.0.1"
	cfg.Logger = discardLogger()
	srv := broadcast.New(cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv
}

func waitSubscribed(t *testing.T, srv *broadcast.Server, n int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Stats().Connections != n {
		if time.Now().After(deadline) {
			t.Fatalf("connections = %d, want %d", srv.Stats().Connections, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestListenPrintsMessages(t *testing.T) {
	srv := startBroadcastServer(t)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- listen(context.Background(), "ws://"+srv.Addr()+"/", 2, &out)
	}()
	waitSubscribed(t, srv, 1)

	srv.Broadcast("one")
	srv.Broadcast("two")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("listen() did not return after two messages")
	}
	if got := out.String(); got != "one\ntwo\n" {
		t.Errorf("output = %q, want %q", got, "one\ntwo\n")
	}
}

func TestListenReportsServerClose(t *testing.T) {
	srv := startBroadcastServer(t)

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- listen(context.Background(), "ws://"+srv.Addr()+"/", 0, &out)
	}()
	waitSubscribed(t, srv, 1)
	srv.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("listen() did not return after server stop")
	}
	if !strings.Contains(out.String(), "# closed: 1001") {
		t.Errorf("output = %q, want a 1001 close notice", out.String())
	}
}

func TestListenStopsOnCancel(t *testing.T) {
	srv := startBroadcastServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- listen(ctx, "ws://"+srv.Addr()+"/", 0, &bytes.Buffer{})
	}()
	waitSubscribed(t, srv, 1)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("listen() error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("listen() did not return after cancel")
	}
}

func TestListenConnectFailure(t *testing.T) {
	url := fmt.Sprintf("ws://127.0.0.1:%d/", freePort(t))
	err := listen(context.Background(), url, 0, &bytes.Buffer{})
	if !errors.Is(err, "E302") {
		t.Fatalf("listen() on a closed port error = %v, want E302", err)
	}
}
