// Package redis provides a distributed invocation lock backed by Redis via
// redsync, for deployments that run several engine replicas against one
// store.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/xraph/remit/lock"
)

// DefaultKey is the lock key used when none is configured.
const DefaultKey = "remit:invoke"

// Compile-time interface check.
var _ lock.Locker = (*Locker)(nil)

// Locker is a lock.Locker held in Redis.
type Locker struct {
	rs         *redsync.Redsync
	key        string
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Locker.
type Option func(*Locker)

// WithKey sets the Redis key. Engines sharing a store must share a key.
func WithKey(key string) Option {
	return func(l *Locker) { l.key = key }
}

// WithExpiry bounds how long a crashed holder can keep the lock.
func WithExpiry(d time.Duration) Option {
	return func(l *Locker) { l.expiry = d }
}

// WithTries sets how many acquisition attempts are made.
func WithTries(n int) Option {
	return func(l *Locker) { l.tries = n }
}

// WithRetryDelay sets the pause between acquisition attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(l *Locker) { l.retryDelay = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) { l.logger = logger }
}

// New creates a Locker over client.
func New(client goredislib.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		rs:         redsync.New(goredis.NewPool(client)),
		key:        DefaultKey,
		expiry:     10 * time.Second,
		tries:      32,
		retryDelay: 50 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock implements lock.Locker.
func (l *Locker) Lock(ctx context.Context) (func(), error) {
	mutex := l.rs.NewMutex(
		l.key,
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(l.tries),
		redsync.WithRetryDelay(l.retryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, l.key, err)
	}

	return func() {
		// Release even if the invocation's context was cancelled.
		ok, err := mutex.UnlockContext(context.WithoutCancel(ctx))
		if err != nil || !ok {
			l.logger.Error("remit lock release failed",
				"key", l.key,
				"released", ok,
				"error", err,
			)
		}
	}, nil
}
