package broadcast

import (
	"log/slog"
	"time"

	"github.com/livecaption/wsbroadcast/pkg/loop"
)

const (
	// DefaultMaxPayloadBytes caps inbound WebSocket messages (16 MiB).
	DefaultMaxPayloadBytes = 16 * 1024 * 1024

	// DefaultMaxBackpressureBytes is the per-connection buffering ceiling
	// (1 MiB). Messages published while a connection has this much queued
	// are dropped for that connection; the connection stays open.
	DefaultMaxBackpressureBytes = 1 * 1024 * 1024

	// DefaultSendQueueLength bounds the number of queued frames per connection.
	DefaultSendQueueLength = 256
)

// Config holds configuration for a broadcast Server.
type Config struct {
	// Host is the interface to bind. Empty binds all interfaces.
	Host string

	// Port is the TCP port to listen on. 0 picks a free port; see Server.Addr.
	Port int

	// Limits

	// MaxPayloadBytes is the maximum size of an inbound client message.
	// Default: 16 MiB.
	MaxPayloadBytes int64

	// MaxBackpressureBytes is the per-connection buffering ceiling.
	// Default: 1 MiB.
	MaxBackpressureBytes int64

	// SendQueueLength is the per-connection frame queue length.
	// Default: 256.
	SendQueueLength int

	// DeferQueueSize is the capacity of the event loop's closure queue.
	// Default: loop.DefaultQueueSize.
	DeferQueueSize int

	// Timeouts

	// WriteTimeout bounds a single frame write to a client.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// CloseTimeout bounds the close frame sent during teardown.
	// Default: 1 second.
	CloseTimeout time.Duration

	// ReadHeaderTimeout bounds the HTTP upgrade request headers.
	// Default: 10 seconds.
	ReadHeaderTimeout time.Duration

	// LockOSThread pins the event loop goroutine to its own OS thread.
	// Default: false.
	LockOSThread bool

	// Observer receives lifecycle and delivery notifications.
	// Default: no-op.
	Observer Observer

	// Logger is the base logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults for port.
func DefaultConfig(port int) *Config {
	return &Config{
		Port:                 port,
		MaxPayloadBytes:      DefaultMaxPayloadBytes,
		MaxBackpressureBytes: DefaultMaxBackpressureBytes,
		SendQueueLength:      DefaultSendQueueLength,
		DeferQueueSize:       loop.DefaultQueueSize,
		WriteTimeout:         10 * time.Second,
		CloseTimeout:         time.Second,
		ReadHeaderTimeout:    10 * time.Second,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// WithPort returns a copy of the Config bound to port.
func (c *Config) WithPort(port int) *Config {
	clone := c.Clone()
	if clone == nil {
		clone = DefaultConfig(port)
	}
	clone.Port = port
	return clone
}

// applyDefaults fills in any unset fields.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig(c.Port)
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = defaults.MaxPayloadBytes
	}
	if c.MaxBackpressureBytes <= 0 {
		c.MaxBackpressureBytes = defaults.MaxBackpressureBytes
	}
	if c.SendQueueLength <= 0 {
		c.SendQueueLength = defaults.SendQueueLength
	}
	if c.DeferQueueSize <= 0 {
		c.DeferQueueSize = defaults.DeferQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = defaults.CloseTimeout
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
