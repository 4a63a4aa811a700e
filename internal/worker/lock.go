package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockHeld is returned when another instance holds the job lock.
var ErrLockHeld = errors.New("lock held by another instance")

// Locker serializes job runs across processes.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// RedisLocker takes job locks in Redis.
type RedisLocker struct {
	client *redislock.Client
}

// NewRedisLocker wraps a go-redis client.
func NewRedisLocker(rdb redislock.RedisClient) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb)}
}

// Obtain takes key for ttl without retrying. The lock is refreshed every
// ttl/2 until the returned release func is called.
func (l *RedisLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return holdLock(lock, ttl), nil
}

type heldLock interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
	Release(ctx context.Context) error
}

// holdLock keeps lock alive until the returned func is called. Refreshing
// stops at the first error; a lost lock is not re-taken.
func holdLock(lock heldLock, ttl time.Duration) func() {
	interval := ttl / 2
	if interval <= 0 {
		interval = time.Millisecond
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				err := lock.Refresh(ctx, ttl, nil)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			_ = lock.Release(context.Background())
		})
	}
}

// NoopLocker always succeeds. It is used when Redis is not configured.
type NoopLocker struct{}

// Obtain implements Locker.
func (NoopLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return func() {}, nil
}
