package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the lock could not be taken within the
// acquisition timeout. Callers abandon the guarded write.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker serialises writers of a shared resource with fail-fast acquisition.
type Locker interface {
	// TryLock waits at most timeout for the lock. On success it returns the
	// release function, which is safe to call more than once.
	TryLock(ctx context.Context, timeout time.Duration) (release func(), err error)
}

// Local is a process-wide mutual exclusion lock with timed acquisition.
type Local struct {
	sem chan struct{}
}

func NewLocal() *Local {
	return &Local{sem: make(chan struct{}, 1)}
}

func (l *Local) TryLock(ctx context.Context, timeout time.Duration) (func(), error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
	case <-timer.C:
		return nil, ErrNotAcquired
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-l.sem })
	}, nil
}
