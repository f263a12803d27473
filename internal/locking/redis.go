package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"possale/internal/logging"
)

var ErrLockBusy = errors.New("stock batch is busy, try again")

// Redis locks batches across instances with redislock.
type Redis struct {
	client *redislock.Client
	log    *logrus.Logger

	Prefix string
	// TTL bounds how long a crashed holder can block a batch.
	TTL     time.Duration
	Retries int
	Backoff time.Duration
}

func NewRedis(rdb redis.UniversalClient, log *logrus.Logger) *Redis {
	return &Redis{
		client:  redislock.New(rdb),
		log:     log,
		Prefix:  "pos:batch",
		TTL:     15 * time.Second,
		Retries: 50,
		Backoff: 100 * time.Millisecond,
	}
}

func (r *Redis) key(id int64) string {
	return fmt.Sprintf("%s:%d", r.Prefix, id)
}

// Lock obtains every batch id in ascending order. On failure the locks
// already obtained are released.
func (r *Redis) Lock(ctx context.Context, ids []int64) (func(), error) {
	opts := &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(r.Backoff), r.Retries),
	}
	var held []*redislock.Lock
	release := func() {
		// Release must not depend on the request context, which may be done.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logging.LogError(r.log, "locking", "Lock", "release", held[i].Key(), err)
			}
		}
	}
	for _, id := range sortedUnique(ids) {
		lock, err := r.client.Obtain(ctx, r.key(id), r.TTL, opts)
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			return nil, fmt.Errorf("batch %d: %w", id, ErrLockBusy)
		}
		if err != nil {
			release()
			return nil, fmt.Errorf("obtain lock for batch %d: %w", id, err)
		}
		held = append(held, lock)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
