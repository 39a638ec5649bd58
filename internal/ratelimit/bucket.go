// Package ratelimit provides a keyed fixed-window limiter for actor+action
// pairs. The bucket store and the clock are injected so tests run against a
// fixed time source and a fresh store.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskforge/platform/internal/app/domain/fault"
)

// Clock supplies the current time. Production code uses SystemClock; tests
// inject a fixed source.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// BucketStore counts hits per key within a window.
type BucketStore interface {
	// Incr bumps the key's counter for the window containing now and returns
	// the new count.
	Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error)
}

// Limiter enforces a per-key ceiling over a fixed window.
type Limiter struct {
	store  BucketStore
	clock  Clock
	limit  int64
	window time.Duration
}

// New constructs a limiter. A nil clock defaults to the system clock.
func New(store BucketStore, clock Clock, limit int64, window time.Duration) *Limiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Limiter{store: store, clock: clock, limit: limit, window: window}
}

// Allow records a hit for actor+action and reports whether it is within the
// limit. The error return is for store failures only.
func (l *Limiter) Allow(ctx context.Context, actor, action string) error {
	key := actor + ":" + action
	count, err := l.store.Incr(ctx, key, l.window, l.clock.Now())
	if err != nil {
		return err
	}
	if count > l.limit {
		return fault.Conflict("rate limit exceeded for %s", key)
	}
	return nil
}

// MemoryBuckets is an in-process BucketStore.
type MemoryBuckets struct {
	mu      sync.Mutex
	buckets map[string]memoryBucket
}

type memoryBucket struct {
	windowStart time.Time
	count       int64
}

// NewMemoryBuckets creates an empty in-process store.
func NewMemoryBuckets() *MemoryBuckets {
	return &MemoryBuckets{buckets: make(map[string]memoryBucket)}
}

var _ BucketStore = (*MemoryBuckets)(nil)

func (m *MemoryBuckets) Incr(_ context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.buckets[key]
	if b.windowStart.IsZero() || now.Sub(b.windowStart) >= window {
		b = memoryBucket{windowStart: now}
	}
	b.count++
	m.buckets[key] = b
	return b.count, nil
}

// RedisBuckets is a BucketStore backed by Redis, for multi-process
// deployments.
type RedisBuckets struct {
	client *redis.Client
	prefix string
}

// NewRedisBuckets wraps a Redis client.
func NewRedisBuckets(client *redis.Client, prefix string) *RedisBuckets {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisBuckets{client: client, prefix: prefix}
}

var _ BucketStore = (*RedisBuckets)(nil)

func (r *RedisBuckets) Incr(ctx context.Context, key string, window time.Duration, now time.Time) (int64, error) {
	bucket := now.UnixNano() / int64(window)
	redisKey := fmt.Sprintf("%s:%s:%d", r.prefix, key, bucket)

	count, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		// First hit in the window owns the expiry.
		if err := r.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}
