// Package throttle limits repeated login attempts per key.
package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Limiter counts attempts per key within a window.
type Limiter interface {
	// Allow records an attempt and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
	// Reset forgets the attempts recorded for key.
	Reset(ctx context.Context, key string) error
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(ctx context.Context, key string) (bool, error) { return true, nil }

func (Noop) Reset(ctx context.Context, key string) error { return nil }

// RedisConfig configures a RedisLimiter.
type RedisConfig struct {
	Addr      string
	Password  string
	KeyPrefix string
	Limit     int64
	Window    time.Duration
}

// RedisLimiter is a fixed-window counter kept in Redis, shared by every
// instance of the service.
type RedisLimiter struct {
	client rueidis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(ctx context.Context, cfg RedisConfig) (*RedisLimiter, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("throttle: no redis address configured")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "payportal:login:"
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.Addr},
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("throttle: failed to create client: %w", err)
	}

	l := &RedisLimiter{client: client, prefix: cfg.KeyPrefix, limit: cfg.Limit, window: cfg.Window}
	if err := l.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("throttle: ping: %w", err)
	}
	return l, nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Do(ctx, l.client.B().Ping().Build()).Error()
}

// Allow counts an attempt for key. INCR and EXPIRE NX go out in one round
// trip, so every counter carries a TTL even if an earlier expire was lost.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	results := l.client.DoMulti(ctx,
		l.client.B().Incr().Key(k).Build(),
		l.client.B().Expire().Key(k).Seconds(l.windowSeconds()).Nx().Build(),
	)
	count, err := results[0].AsInt64()
	if err != nil {
		return false, fmt.Errorf("throttle: incr: %w", err)
	}
	if err := results[1].Error(); err != nil {
		return false, fmt.Errorf("throttle: expire: %w", err)
	}
	return count <= l.limit, nil
}

func (l *RedisLimiter) windowSeconds() int64 {
	seconds := int64(l.window / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Do(ctx, l.client.B().Del().Key(l.prefix+key).Build()).Error()
}

func (l *RedisLimiter) Close() {
	l.client.Close()
}
