package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, cfg), mr
}

func TestAllowWithinWindow(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, ok, "attempt %d should pass", i+1)
	}

	ok, retryAfter, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, retryAfter, time.Duration(0))

	// Other IPs have their own window.
	ok, _, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestWindowExpires(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	ok, _, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, _ = l.Allow(ctx, "10.0.0.1")
	require.False(t, ok)

	mr.FastForward(time.Minute + time.Second)

	ok, _, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestResetClearsCounter(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	_, _, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "10.0.0.1"))

	ok, _, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAllowReportsBackendErrors(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})
	mr.Close()

	_, _, err := l.Allow(context.Background(), "10.0.0.1")
	require.Error(t, err)
}
