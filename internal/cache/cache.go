// Package cache implements the two-level TTL + LRU cache described in
// spec §4.1, grounded on the teacher's internal/pkg/cache/execution.go
// (Redis-backed, key-namespaced, TTL-defaulted caches), generalized into
// a reusable L1 (in-process LRU) / L2 (pluggable backend) pair.
package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is the contract both L1 and any L2 backend satisfy.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Loader populates a cache miss. Loaders must be idempotent: concurrent
// misses on the same key may each invoke Loader independently (spec
// §4.1 explicitly does not require load deduplication).
type Loader func(ctx context.Context) ([]byte, time.Duration, error)

// Stats are the hit/miss counters spec §4.1 requires be exposed.
type Stats struct {
	L1Hits   int64
	L1Misses int64
	L2Hits   int64
	L2Misses int64
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// LRU is an in-process, per-entry-expiring cache over container/list.
// No ecosystem LRU implementation appears anywhere in the retrieved
// example pack (see DESIGN.md), so this one building block is hand
// rolled over the standard library rather than ungrounded in a library
// that doesn't exist in the corpus.
type LRU struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
	hits     atomic.Int64
	misses   atomic.Int64
}

// NewLRU constructs an LRU with the given capacity. now defaults to
// time.Now when nil, overridable for deterministic tests.
func NewLRU(capacity int, now func() time.Time) *LRU {
	if capacity <= 0 {
		capacity = 10000
	}
	if now == nil {
		now = time.Now
	}
	return &LRU{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      now,
	}
}

func (c *LRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	e := el.Value.(*entry)
	if c.now().After(e.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		c.misses.Add(1)
		return nil, false, nil
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return e.value, true, nil
}

func (c *LRU) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		el.Value.(*entry).expiresAt = expiresAt
		c.ll.MoveToFront(el)
		return nil
	}

	el := c.ll.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
	return nil
}

func (c *LRU) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
	return nil
}

func (c *LRU) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
	return nil
}

// Sweep proactively evicts expired entries; intended to be called from a
// background ticker (spec §4.1's "proactively swept by a background
// tick").
func (c *LRU) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if now.After(e.expiresAt) {
			c.ll.Remove(el)
			delete(c.items, e.key)
		}
		el = prev
	}
}

// StartSweeper runs Sweep on interval until ctx is cancelled.
func StartSweeper(ctx context.Context, l *LRU, interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// TieredCache is the L1/L2 pair from spec §4.1. L1 is always written; L2
// is best-effort (write-through; errors are swallowed, and passed to the
// optional caller-supplied OnL2Error hook).
type TieredCache struct {
	L1         *LRU
	L2         Cache // optional, nil disables L2
	DefaultTTL time.Duration
	OnL2Error  func(op string, err error)

	stats Stats
}

func NewTieredCache(l1 *LRU, l2 Cache, defaultTTL time.Duration) *TieredCache {
	return &TieredCache{L1: l1, L2: l2, DefaultTTL: defaultTTL}
}

func (t *TieredCache) reportL2Err(op string, err error) {
	if err != nil && t.OnL2Error != nil {
		t.OnL2Error(op, err)
	}
}

// Get checks L1 then L2, promoting an L2 hit into L1.
func (t *TieredCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, _ := t.L1.Get(ctx, key); ok {
		atomic.AddInt64(&t.stats.L1Hits, 1)
		return v, true, nil
	}
	atomic.AddInt64(&t.stats.L1Misses, 1)

	if t.L2 == nil {
		return nil, false, nil
	}
	v, ok, err := t.L2.Get(ctx, key)
	if err != nil {
		t.reportL2Err("get", err)
		return nil, false, nil
	}
	if !ok {
		atomic.AddInt64(&t.stats.L2Misses, 1)
		return nil, false, nil
	}
	atomic.AddInt64(&t.stats.L2Hits, 1)
	_ = t.L1.Set(ctx, key, v, t.ttlOrDefault(0))
	return v, true, nil
}

func (t *TieredCache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return t.DefaultTTL
	}
	return ttl
}

// Set always writes L1; L2 write is best-effort.
func (t *TieredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ttl = t.ttlOrDefault(ttl)
	if err := t.L1.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if t.L2 != nil {
		if err := t.L2.Set(ctx, key, value, ttl); err != nil {
			t.reportL2Err("set", err)
		}
	}
	return nil
}

func (t *TieredCache) Delete(ctx context.Context, key string) error {
	_ = t.L1.Delete(ctx, key)
	if t.L2 != nil {
		if err := t.L2.Delete(ctx, key); err != nil {
			t.reportL2Err("delete", err)
		}
	}
	return nil
}

func (t *TieredCache) Clear(ctx context.Context) error {
	_ = t.L1.Clear(ctx)
	if t.L2 != nil {
		if err := t.L2.Clear(ctx); err != nil {
			t.reportL2Err("clear", err)
		}
	}
	return nil
}

// GetOrLoad returns the cached value, loading and populating both levels
// on a miss. Per spec §4.1, concurrent misses may each call loader; the
// loader must be idempotent.
func (t *TieredCache) GetOrLoad(ctx context.Context, key string, loader Loader) ([]byte, error) {
	if v, ok, err := t.Get(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return v, nil
	}

	v, ttl, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	_ = t.Set(ctx, key, v, ttl)
	return v, nil
}

// Stats returns a snapshot of hit/miss counters.
func (t *TieredCache) Stats() Stats {
	return Stats{
		L1Hits:   atomic.LoadInt64(&t.stats.L1Hits),
		L1Misses: atomic.LoadInt64(&t.stats.L1Misses),
		L2Hits:   atomic.LoadInt64(&t.stats.L2Hits),
		L2Misses: atomic.LoadInt64(&t.stats.L2Misses),
	}
}
