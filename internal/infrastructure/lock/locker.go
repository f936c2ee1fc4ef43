package lock

import (
	"context"
	"errors"
	"fmt"
)

var ErrLockFailed = errors.New("failed to acquire lock")

// Release gives the lock back. It must be called exactly once per successful
// Acquire, and only while the caller still believes it holds the lock.
type Release func(ctx context.Context) error

// Locker serializes work per key. The applier acquires one lock per account
// so that concurrent approvals never interleave a read-check-mutate-write.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// AccountKey is the lock key for one account. Locking is per account, not
// global: unrelated accounts proceed concurrently.
func AccountKey(userID int64) string {
	return fmt.Sprintf("ledger:lock:account:%d", userID)
}
