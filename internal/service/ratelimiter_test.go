package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"authlog-service/internal/config"
	"authlog-service/internal/repository"
)

func newTestLimiter(cfg config.LockoutConfig) *LoginRateLimiter {
	return NewLoginRateLimiter(repository.NewMemoryLockoutStore(), cfg, zap.NewNop())
}

func TestResolveIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		trackBy    string
		ip         string
		identifier string
		want       string
	}{
		{"ip mode", "ip", "203.0.113.7", "a@example.com", "203.0.113.7"},
		{"identifier mode", "identifier", "203.0.113.7", "a@example.com", "a@example.com"},
		{"identifier mode falls back to ip", "identifier", "203.0.113.7", "", "203.0.113.7"},
		{"both mode", "both", "203.0.113.7", "a@example.com", "a@example.com|203.0.113.7"},
		{"unknown mode defaults to ip", "bogus", "203.0.113.7", "a@example.com", "203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := newTestLimiter(config.LockoutConfig{Enabled: true, TrackBy: tt.trackBy})
			assert.Equal(t, tt.want, limiter.ResolveIdentifier(tt.ip, tt.identifier))
		})
	}
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(config.LockoutConfig{
		Enabled:         true,
		MaxAttempts:     3,
		LockoutDuration: time.Minute,
		TrackBy:         "ip",
	})
	key := "203.0.113.7"

	for i := 1; i <= 2; i++ {
		count, err := limiter.RegisterFailure(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(i), count)

		locked, err := limiter.IsLockedOut(ctx, key)
		require.NoError(t, err)
		assert.False(t, locked, "attempt %d must not lock", i)
	}

	count, err := limiter.RegisterFailure(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	locked, err := limiter.IsLockedOut(ctx, key)
	require.NoError(t, err)
	assert.True(t, locked)

	seconds, err := limiter.SecondsRemaining(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, seconds, int64(0))
}

func TestLockoutIsolatedPerKey(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(config.LockoutConfig{
		Enabled:         true,
		MaxAttempts:     1,
		LockoutDuration: time.Minute,
		TrackBy:         "ip",
	})

	_, err := limiter.RegisterFailure(ctx, "203.0.113.7")
	require.NoError(t, err)

	locked, err := limiter.IsLockedOut(ctx, "198.51.100.9")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestClearResetsState(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(config.LockoutConfig{
		Enabled:         true,
		MaxAttempts:     1,
		LockoutDuration: time.Minute,
		TrackBy:         "ip",
	})
	key := "203.0.113.7"

	_, err := limiter.RegisterFailure(ctx, key)
	require.NoError(t, err)

	locked, err := limiter.IsLockedOut(ctx, key)
	require.NoError(t, err)
	require.True(t, locked)

	require.NoError(t, limiter.Clear(ctx, key))

	locked, err = limiter.IsLockedOut(ctx, key)
	require.NoError(t, err)
	assert.False(t, locked)

	attempts, err := limiter.Attempts(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, attempts)
}

func TestDisabledLimiterNeverLocks(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(config.LockoutConfig{Enabled: false, MaxAttempts: 1})

	count, err := limiter.RegisterFailure(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Zero(t, count)

	locked, err := limiter.IsLockedOut(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, locked)
}
