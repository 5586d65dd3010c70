package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockHeld is returned by WithLock when another worker owns the key.
var ErrLockHeld = errors.New("lock held by another worker")

// IntegrityLockKey guards the ledger integrity scan of one location.
func IntegrityLockKey(location string) string {
	return fmt.Sprintf("stockledger:integrity:%s:lock", location)
}

// WarmupLockKey guards the dashboard warmup.
func WarmupLockKey() string {
	return "stockledger:dashboard:warmup:lock"
}

// WithLock runs fn while holding key. A nil locker runs fn unguarded.
func WithLock(ctx context.Context, locker *redislock.Client, key string, ttl time.Duration, fn func(context.Context) error) error {
	if locker == nil {
		return fn(ctx)
	}
	lock, err := locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}
