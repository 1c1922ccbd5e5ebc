package config

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/livecaption/wsbroadcast/internal/errors"
	"github.com/livecaption/wsbroadcast/pkg/broadcast"
	"github.com/livecaption/wsbroadcast/pkg/loop"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "wsbroadcast.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "WSBROADCAST_"

	// DefaultPort is the broadcast port used when none is configured.
	DefaultPort = 9001

	// DefaultAdminAddress is where /metrics and /healthz are served.
	DefaultAdminAddress = "127.0.0.1:9100"
)

// Config represents the complete wsbroadcast.yaml configuration.
type Config struct {
	// Ports are the broadcast ports served by the daemon.
	Ports []int `yaml:"ports" env:"PORTS" envSeparator:","`

	// Host is the interface every broadcast server binds. Empty binds all.
	Host string `yaml:"host,omitempty" env:"HOST"`

	// Admin contains the admin HTTP endpoint configuration.
	Admin AdminConfig `yaml:"admin" envPrefix:"ADMIN_"`

	// Server contains per-server transport limits.
	Server ServerConfig `yaml:"server" envPrefix:"SERVER_"`

	// Log contains logging configuration.
	Log LogConfig `yaml:"log" envPrefix:"LOG_"`

	// Metrics contains Prometheus configuration.
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`

	// Tracing contains OpenTelemetry configuration.
	Tracing TracingConfig `yaml:"tracing" envPrefix:"TRACING_"`

	// Redis configures the optional Redis pub/sub input.
	Redis RedisConfig `yaml:"redis" envPrefix:"REDIS_"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// AdminConfig configures the admin HTTP endpoint.
type AdminConfig struct {
	// Address is the listen address. Empty disables the endpoint.
	Address string `yaml:"address" env:"ADDRESS"`
}

// ServerConfig mirrors the tunable fields of broadcast.Config.
type ServerConfig struct {
	MaxPayloadBytes      int64         `yaml:"max_payload_bytes" env:"MAX_PAYLOAD_BYTES"`
	MaxBackpressureBytes int64         `yaml:"max_backpressure_bytes" env:"MAX_BACKPRESSURE_BYTES"`
	SendQueueLength      int           `yaml:"send_queue_length" env:"SEND_QUEUE_LENGTH"`
	DeferQueueSize       int           `yaml:"defer_queue_size" env:"DEFER_QUEUE_SIZE"`
	WriteTimeout         time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	CloseTimeout         time.Duration `yaml:"close_timeout" env:"CLOSE_TIMEOUT"`
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`

	// LockOSThread pins each event loop to its own OS thread.
	LockOSThread bool `yaml:"lock_os_thread" env:"LOCK_OS_THREAD"`
}

// LogConfig configures the slog handler built by the CLI.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures Prometheus collectors.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TracingConfig configures OpenTelemetry spans around pool operations.
type TracingConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED"`
	TracerName string `yaml:"tracer_name" env:"TRACER_NAME"`
}

// RedisConfig configures the Redis pub/sub input. An empty URL disables it.
type RedisConfig struct {
	URL            string        `yaml:"url,omitempty" env:"URL"`
	Channels       []string      `yaml:"channels,omitempty" env:"CHANNELS" envSeparator:","`
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty" env:"CONNECT_TIMEOUT"`
}

// Enabled reports whether the Redis input is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// New returns a Config with default values.
func New() *Config {
	bc := broadcast.DefaultConfig(DefaultPort)
	return &Config{
		Ports: []int{DefaultPort},
		Admin: AdminConfig{
			Address: DefaultAdminAddress,
		},
		Server: ServerConfig{
			MaxPayloadBytes:      bc.MaxPayloadBytes,
			MaxBackpressureBytes: bc.MaxBackpressureBytes,
			SendQueueLength:      bc.SendQueueLength,
			DeferQueueSize:       bc.DeferQueueSize,
			WriteTimeout:         bc.WriteTimeout,
			CloseTimeout:         bc.CloseTimeout,
			ReadHeaderTimeout:    bc.ReadHeaderTimeout,
			LockOSThread:         true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "wsbroadcast",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			TracerName: "wsbroadcast",
		},
	}
}

// Load reads wsbroadcast.yaml from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E101").
				WithDetail("No " + filepath.Base(path) + " found in " + filepath.Dir(path))
		}
		return nil, errors.New("E102").Wrap(err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.configPath = path
	return cfg, nil
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := New()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E102").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error())
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault loads path, or wsbroadcast.yaml in the working directory when
// path is empty. A missing default file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if !Exists(".") {
		return New(), nil
	}
	return Load(".")
}

// ApplyEnv overrides fields from WSBROADCAST_* variables. A nil environ
// reads the process environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return errors.New("E106").Wrap(err)
	}
	c.applyDefaults()
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration as YAML to path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.New("E102").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E102").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	defaults := New()
	if len(c.Ports) == 0 {
		c.Ports = defaults.Ports
	}

	s := &c.Server
	if s.MaxPayloadBytes == 0 {
		s.MaxPayloadBytes = defaults.Server.MaxPayloadBytes
	}
	if s.MaxBackpressureBytes == 0 {
		s.MaxBackpressureBytes = defaults.Server.MaxBackpressureBytes
	}
	if s.SendQueueLength == 0 {
		s.SendQueueLength = defaults.Server.SendQueueLength
	}
	if s.DeferQueueSize == 0 {
		s.DeferQueueSize = loop.DefaultQueueSize
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = defaults.Server.WriteTimeout
	}
	if s.CloseTimeout == 0 {
		s.CloseTimeout = defaults.Server.CloseTimeout
	}
	if s.ReadHeaderTimeout == 0 {
		s.ReadHeaderTimeout = defaults.Server.ReadHeaderTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = defaults.Tracing.TracerName
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	seen := make(map[int]bool, len(c.Ports))
	for _, port := range c.Ports {
		if port < 1 || port > 65535 {
			return errors.New("E103").
				WithDetail(fmt.Sprintf("Port %d is outside 1-65535", port))
		}
		if seen[port] {
			return errors.New("E103").
				WithDetail(fmt.Sprintf("Port %d is listed more than once", port))
		}
		seen[port] = true
	}

	s := c.Server
	switch {
	case s.MaxPayloadBytes < 0, s.MaxBackpressureBytes < 0:
		return errors.New("E104").WithDetail("Byte limits must be positive")
	case s.SendQueueLength < 0, s.DeferQueueSize < 0:
		return errors.New("E104").WithDetail("Queue lengths must be positive")
	case s.WriteTimeout < 0, s.CloseTimeout < 0, s.ReadHeaderTimeout < 0:
		return errors.New("E104").WithDetail("Timeouts must be positive")
	}

	if c.Redis.Enabled() && len(c.Redis.Channels) == 0 {
		return errors.New("E107").WithDetail("redis.url is set but redis.channels is empty")
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return errors.New("E105").Wrap(err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return errors.New("E105").
			WithDetail(fmt.Sprintf("Unknown log format %q", c.Log.Format))
	}
	return nil
}

// BroadcastConfig returns the broadcast server config for port.
func (c *Config) BroadcastConfig(port int) *broadcast.Config {
	bc := broadcast.DefaultConfig(port)
	bc.Host = c.Host
	bc.MaxPayloadBytes = c.Server.MaxPayloadBytes
	bc.MaxBackpressureBytes = c.Server.MaxBackpressureBytes
	bc.SendQueueLength = c.Server.SendQueueLength
	bc.DeferQueueSize = c.Server.DeferQueueSize
	bc.WriteTimeout = c.Server.WriteTimeout
	bc.CloseTimeout = c.Server.CloseTimeout
	bc.ReadHeaderTimeout = c.Server.ReadHeaderTimeout
	bc.LockOSThread = c.Server.LockOSThread
	return bc
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// JSONLogs reports whether logs are written as JSON.
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.Log.Format, "json")
}

var errUnknownLevel = stderrors.New("unknown log level")

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w %q", errUnknownLevel, s)
	}
	return level, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}
