package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"authlog-service/internal/config"
	"authlog-service/internal/repository"
	"authlog-service/internal/util"
)

// Track-by modes for failed-login throttling.
const (
	TrackByIP         = "ip"
	TrackByIdentifier = "identifier"
	TrackByBoth       = "both"
)

// LoginRateLimiter throttles repeated failed logins. It keys attempts by IP,
// by the claimed identifier, or by their combination, and flips a lock flag
// once the configured threshold is reached.
//
// Its failure counters are independent of the activity log: a failure is
// counted even when failed-login recording is disabled.
type LoginRateLimiter struct {
	store  repository.LockoutStore
	config config.LockoutConfig
	logger *zap.Logger
}

func NewLoginRateLimiter(store repository.LockoutStore, cfg config.LockoutConfig, logger *zap.Logger) *LoginRateLimiter {
	return &LoginRateLimiter{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Enabled reports whether throttling is active at all.
func (l *LoginRateLimiter) Enabled() bool {
	return l.config.Enabled
}

// ResolveIdentifier builds the tracking key for a failed attempt from the
// request IP and the claimed login identifier, per the configured track-by
// mode. In "both" mode the two are joined so an attacker cannot reset the
// counter by rotating only one of them.
func (l *LoginRateLimiter) ResolveIdentifier(ip, identifier string) string {
	switch strings.ToLower(l.config.TrackBy) {
	case TrackByIdentifier:
		if identifier != "" {
			return identifier
		}
		return ip
	case TrackByBoth:
		return identifier + "|" + ip
	default:
		return ip
	}
}

// RegisterFailure counts one failed attempt for the key and locks the key
// out once the attempt count reaches the configured maximum. It returns the
// attempt count after the increment.
func (l *LoginRateLimiter) RegisterFailure(ctx context.Context, key string) (int64, error) {
	if !l.config.Enabled {
		return 0, nil
	}

	count, err := l.store.RegisterAttempt(ctx, key, l.config.LockoutDuration)
	if err != nil {
		return 0, fmt.Errorf("failed to count login failure: %w", err)
	}

	if count >= int64(l.config.MaxAttempts) {
		if err := l.store.Lock(ctx, key, l.config.LockoutDuration); err != nil {
			return count, fmt.Errorf("failed to lock out identifier: %w", err)
		}
		l.logger.Warn("login attempts locked out",
			util.Int("attempts", int(count)),
			util.Duration("duration", l.config.LockoutDuration))
	}
	return count, nil
}

// IsLockedOut reports whether the key is currently locked.
func (l *LoginRateLimiter) IsLockedOut(ctx context.Context, key string) (bool, error) {
	if !l.config.Enabled {
		return false, nil
	}
	return l.store.IsLocked(ctx, key)
}

// Attempts returns the current failure count for the key.
func (l *LoginRateLimiter) Attempts(ctx context.Context, key string) (int64, error) {
	if !l.config.Enabled {
		return 0, nil
	}
	return l.store.Attempts(ctx, key)
}

// SecondsRemaining returns how long the key stays locked, in whole seconds,
// or zero when it is not locked.
func (l *LoginRateLimiter) SecondsRemaining(ctx context.Context, key string) (int64, error) {
	if !l.config.Enabled {
		return 0, nil
	}
	ttl, err := l.store.LockTTL(ctx, key)
	if err != nil {
		return 0, err
	}
	return int64(ttl.Seconds()), nil
}

// Clear wipes both the counter and the lock flag for the key. Used by the
// successful-login path when clear-on-success is configured, and by admin
// tooling.
func (l *LoginRateLimiter) Clear(ctx context.Context, key string) error {
	if !l.config.Enabled {
		return nil
	}
	return l.store.Clear(ctx, key)
}
