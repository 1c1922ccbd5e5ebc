package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/livecaption/wsbroadcast/pkg/pool"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Broadcast(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

func (r *recorder) IsListening() bool { return true }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func TestLinesDeliversEveryLineToEveryTarget(t *testing.T) {
	a, b := &recorder{}, &recorder{}

	src := NewLines(strings.NewReader("first\n\nsecond line\r\nthird"))
	if err := src.Run(context.Background(), []pool.Broadcaster{a, b}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	want := []string{"first", "second line", "third"}
	for _, r := range []*recorder{a, b} {
		if fmt.Sprint(r.snapshot()) != fmt.Sprint(want) {
			t.Errorf("messages = %q, want %q", r.snapshot(), want)
		}
	}
}

func TestLinesTooLong(t *testing.T) {
	src := NewLines(strings.NewReader(strings.Repeat("x", 64) + "\n")).WithMaxLineBytes(16)
	if err := src.Run(context.Background(), nil); err == nil {
		t.Fatal("Run() on an oversized line returned nil error")
	}
}

func TestLinesStopsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &recorder{}
	if err := NewLines(strings.NewReader("a\nb\n")).Run(ctx, []pool.Broadcaster{r}); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := r.snapshot(); len(got) != 0 {
		t.Errorf("messages after cancel = %q, want none", got)
	}
}

func TestNewRedisValidates(t *testing.T) {
	tests := []struct {
		name string
		cfg  RedisConfig
		want error
	}{
		{"empty url", RedisConfig{Channels: []string{"captions"}}, ErrEmptyConnectionURL},
		{"no channels", RedisConfig{URL: "redis://localhost:6379/0"}, ErrNoChannels},
		{"bad scheme", RedisConfig{URL: "http://localhost:6379", Channels: []string{"captions"}}, ErrParseConnectionURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRedis(tt.cfg, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("NewRedis() error = %v, want %v", err, tt.want)
			}
		})
	}

	r, err := NewRedis(RedisConfig{URL: "redis://localhost:6379/0", Channels: []string{"captions"}}, nil)
	if err != nil {
		t.Fatalf("NewRedis() error: %v", err)
	}
	defer r.Close()
	if r.cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want %v", r.cfg.ConnectTimeout, DefaultConnectTimeout)
	}
}

func TestRedisNotReady(t *testing.T) {
	r, err := NewRedis(RedisConfig{
		URL:            "redis://127.0.0.1:1/0",
		Channels:       []string{"captions"},
		ConnectTimeout: 200 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewRedis() error: %v", err)
	}
	defer r.Close()

	if err := r.Run(context.Background(), nil); !errors.Is(err, ErrRedisNotReady) {
		t.Fatalf("Run() error = %v, want ErrRedisNotReady", err)
	}
}

// TestRedisRelaysPublishedMessages needs a Redis server; set
// WSBROADCAST_TEST_REDIS_URL to run it.
func TestRedisRelaysPublishedMessages(t *testing.T) {
	url := os.Getenv("WSBROADCAST_TEST_REDIS_URL")
	if url == "" {
		t.Skip("WSBROADCAST_TEST_REDIS_URL not set")
	}

	src, err := NewRedis(RedisConfig{URL: url, Channels: []string{"wsbroadcast-test", "wsbroadcast-test.*"}}, nil)
	if err != nil {
		t.Fatalf("NewRedis() error: %v", err)
	}
	defer src.Close()

	opts, _ := redis.ParseURL(url)
	pub := redis.NewClient(opts)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := &recorder{}
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, []pool.Broadcaster{r}) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(r.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("messages = %q, want two", r.snapshot())
		}
		// Publish until the subscription is live.
		pub.Publish(ctx, "wsbroadcast-test", "plain")
		pub.Publish(ctx, "wsbroadcast-test.captions", "pattern")
		time.Sleep(50 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	got := strings.Join(r.snapshot(), ",")
	if !strings.Contains(got, "plain") || !strings.Contains(got, "pattern") {
		t.Errorf("messages = %q, want plain and pattern", got)
	}
}
