// Package lock serializes remit invocations. Every mutating operation runs
// under exactly one held lock so that no two invocations interleave their
// reads and writes.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// context ended or the retry budget ran out.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker acquires the invocation lock. The returned function releases it
// and must be called exactly once.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// Local is an in-process Locker. It honours context cancellation while
// waiting, unlike sync.Mutex.
type Local struct {
	ch chan struct{}
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local {
	return &Local{ch: make(chan struct{}, 1)}
}

// Lock implements Locker.
func (l *Local) Lock(ctx context.Context) (func(), error) {
	select {
	case l.ch <- struct{}{}:
		return func() { <-l.ch }, nil
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}
