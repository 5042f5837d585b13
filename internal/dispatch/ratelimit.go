package dispatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter admits or rejects a call keyed by an arbitrary string
// (here, a workspace id), grounded on
// internal/scheduler/dispatcher/ratelimit.go's RateLimiter interface.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindowLimiter is a Redis ZSET sliding-window limiter: every
// admitted call is recorded as a member scored by its own timestamp, and
// a call is admitted only if fewer than limit members remain after
// trimming everything older than window. Grounded on the teacher's
// SlidingWindowLimiter, trimmed to the single Allow entry point dispatch
// needs.
type SlidingWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	nowFn  func() time.Time
}

func NewSlidingWindowLimiter(client *redis.Client, prefix string, limit int64, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client, prefix: prefix, limit: limit, window: window, nowFn: time.Now}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	zkey := l.prefix + ":" + key
	now := l.nowFn()
	windowStart := now.Add(-l.window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", strconv.FormatInt(windowStart.UnixNano(), 10))
	card := pipe.ZCard(ctx, zkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if card.Val() >= l.limit {
		return false, nil
	}

	member := redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()}
	addPipe := l.client.TxPipeline()
	addPipe.ZAdd(ctx, zkey, member)
	addPipe.Expire(ctx, zkey, l.window)
	_, err := addPipe.Exec(ctx)
	return err == nil, err
}

// LocalLimiter is an in-process token-bucket-by-window limiter for tests
// and single-instance deployments, grounded on the teacher's LocalLimiter.
type LocalLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	nowFn  func() time.Time
}

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{limit: limit, window: window, hits: make(map[string][]time.Time), nowFn: time.Now}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	cutoff := now.Add(-l.window)
	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.limit {
		l.hits[key] = kept
		return false, nil
	}
	l.hits[key] = append(kept, now)
	return true, nil
}

// CompositeLimiter admits only if every wrapped limiter admits, short
// circuiting on first rejection, matching the teacher's AND-combinator.
type CompositeLimiter struct {
	limiters []RateLimiter
}

func NewCompositeLimiter(limiters ...RateLimiter) *CompositeLimiter {
	return &CompositeLimiter{limiters: limiters}
}

func (c *CompositeLimiter) Allow(ctx context.Context, key string) (bool, error) {
	for _, l := range c.limiters {
		ok, err := l.Allow(ctx, key)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
