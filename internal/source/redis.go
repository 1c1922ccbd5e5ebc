package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/livecaption/wsbroadcast/pkg/pool"
)

var (
	ErrEmptyConnectionURL = errors.New("source: empty redis connection URL")
	ErrParseConnectionURL = errors.New("source: failed to parse redis connection URL")
	ErrNoChannels         = errors.New("source: no redis channels")
	ErrRedisNotReady      = errors.New("source: redis did not become ready")
	ErrSubscriptionClosed = errors.New("source: redis subscription closed")
)

// DefaultConnectTimeout bounds the initial ping.
const DefaultConnectTimeout = 10 * time.Second

// RedisConfig configures a Redis pub/sub source.
type RedisConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// Channels are the pub/sub channels to subscribe to. A channel ending
	// in * is a pattern subscription.
	Channels []string

	// ConnectTimeout bounds the initial ping. Default: DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Redis broadcasts every message published on its channels.
type Redis struct {
	cfg    RedisConfig
	client *redis.Client
	logger *slog.Logger
}

var _ Source = (*Redis)(nil)

// NewRedis validates cfg and creates the client. It does not connect.
func NewRedis(cfg RedisConfig, logger *slog.Logger) (*Redis, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyConnectionURL
	}
	if len(cfg.Channels) == 0 {
		return nil, ErrNoChannels
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseConnectionURL, err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		cfg:    cfg,
		client: redis.NewClient(opts),
		logger: logger.With("component", "source", "source", "redis"),
	}, nil
}

// Name implements Source.
func (r *Redis) Name() string { return "redis" }

// Run implements Source. It returns nil when ctx is done.
func (r *Redis) Run(ctx context.Context, targets []pool.Broadcaster) error {
	pingCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectTimeout)
	err := r.client.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRedisNotReady, err)
	}

	var plain, patterns []string
	for _, ch := range r.cfg.Channels {
		if strings.HasSuffix(ch, "*") {
			patterns = append(patterns, ch)
		} else {
			plain = append(plain, ch)
		}
	}

	sub := r.client.Subscribe(ctx)
	defer sub.Close()
	if len(plain) > 0 {
		if err := sub.Subscribe(ctx, plain...); err != nil {
			return fmt.Errorf("source: subscribe: %w", err)
		}
	}
	if len(patterns) > 0 {
		if err := sub.PSubscribe(ctx, patterns...); err != nil {
			return fmt.Errorf("source: psubscribe: %w", err)
		}
	}
	r.logger.Info("redis source subscribed", "channels", r.cfg.Channels)

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrSubscriptionClosed
			}
			if msg.Payload == "" {
				continue
			}
			r.logger.Debug("redis message", "channel", msg.Channel, "bytes", len(msg.Payload))
			deliver(targets, msg.Payload)
		}
	}
}

// Healthcheck pings the Redis server.
func (r *Redis) Healthcheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
