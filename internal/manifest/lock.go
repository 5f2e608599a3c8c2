package manifest

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrLockTimeout is returned when the manifest lock could not be taken
// within the configured wait. It indicates a leaked lock.
var ErrLockTimeout = errors.New("timed out waiting for the manifest lock")

// lock is a process-wide exclusive lock with a bounded acquire.
type lock struct {
	sem  *semaphore.Weighted
	wait time.Duration
}

func newLock(wait time.Duration) *lock {
	return &lock{sem: semaphore.NewWeighted(1), wait: wait}
}

func (l *lock) acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrLockTimeout
	}
	return nil
}

func (l *lock) release() {
	l.sem.Release(1)
}
