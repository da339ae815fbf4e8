package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T, limit int64) *RedisLimiter {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	l, err := NewRedisLimiter(ctx, RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "test:login:",
		Limit:     limit,
		Window:    time.Minute,
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestNoop(t *testing.T) {
	ok, err := Noop{}.Allow(context.Background(), "a@example.com")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, Noop{}.Reset(context.Background(), "a@example.com"))
}

func TestNewRedisLimiterRequiresAddr(t *testing.T) {
	_, err := NewRedisLimiter(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestRedisLimiter_AllowAndReset(t *testing.T) {
	l := setupTestRedis(t, 3)
	ctx := context.Background()
	key := uuid.NewString()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}

	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Reset(ctx, key))
	ok, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_RestoresMissingTTL(t *testing.T) {
	l := setupTestRedis(t, 3)
	ctx := context.Background()
	key := uuid.NewString()
	k := l.prefix + key
	t.Cleanup(func() { l.Reset(ctx, key) })

	// A counter left without an expiry, as after a lost EXPIRE.
	require.NoError(t, l.client.Do(ctx, l.client.B().Set().Key(k).Value("2").Build()).Error())

	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := l.client.Do(ctx, l.client.B().Ttl().Key(k).Build()).AsInt64()
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))
	assert.LessOrEqual(t, ttl, int64(60))
}

func TestRedisLimiter_WindowSeconds(t *testing.T) {
	tests := []struct {
		window time.Duration
		want   int64
	}{
		{time.Minute, 60},
		{1500 * time.Millisecond, 1},
		{500 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		l := &RedisLimiter{window: tt.window}
		assert.Equal(t, tt.want, l.windowSeconds(), tt.window.String())
	}
}
