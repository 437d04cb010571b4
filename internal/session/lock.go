package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxLockTTL bounds how long a stranded lock can block a session before a
// crashed worker's hold expires on its own (spec §4.B: "locks expire in
// <=30s so a crashed worker cannot strand a session").
const MaxLockTTL = 30 * time.Second

func newToken() string {
	return uuid.NewString()
}

// WithLock acquires the per-session lock, runs fn, and releases it,
// returning false if the lock was already held. Adapted from the
// acquire/defer-release shape the teacher uses around its own
// internal/scheduler file locks, but driven by AcquireLock/ReleaseLock
// instead of flock(2).
func WithLock(ctx context.Context, store Store, sessionID string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
	if ttl <= 0 || ttl > MaxLockTTL {
		ttl = MaxLockTTL
	}
	token, ok, err := store.AcquireLock(ctx, sessionID, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer store.ReleaseLock(ctx, sessionID, token)
	return true, fn(ctx)
}
