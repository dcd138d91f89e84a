// Package lock serialises batch jobs across processes.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	errEmptyKey   = errors.New("lock key is empty")
	errInvalidTTL = errors.New("lock ttl must be positive")
)

// Locker grants a short-lived exclusive lease on a key. The returned token
// must be handed back to Release; a lease that is not released expires
// after ttl.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

func validate(key string, ttl time.Duration) error {
	if key == "" {
		return errEmptyKey
	}
	if ttl <= 0 {
		return errInvalidTTL
	}
	return nil
}
