package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	l := NewLRU(10, clock)
	require.NoError(t, l.Set(ctx, "k", []byte("v"), time.Minute))

	v, ok, err := l.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, l.Delete(ctx, "k"))
	_, ok, _ = l.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRU_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	l := NewLRU(10, clock)
	require.NoError(t, l.Set(ctx, "k", []byte("v"), time.Minute))

	// Just before expiry: still a hit (spec invariant 8: until now+ttl-eps).
	now = now.Add(59 * time.Second)
	_, ok, _ := l.Get(ctx, "k")
	assert.True(t, ok)

	// After expiry: a miss.
	now = now.Add(2 * time.Second)
	_, ok, _ = l.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLRU_EvictsOldestOverCapacity(t *testing.T) {
	ctx := context.Background()
	l := NewLRU(2, nil)

	require.NoError(t, l.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, l.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, l.Set(ctx, "c", []byte("3"), time.Minute))

	_, ok, _ := l.Get(ctx, "a")
	assert.False(t, ok, "oldest entry should have been evicted")

	_, ok, _ = l.Get(ctx, "c")
	assert.True(t, ok)
}

type fakeL2 struct {
	data map[string][]byte
	errs map[string]error
}

func newFakeL2() *fakeL2 { return &fakeL2{data: map[string][]byte{}, errs: map[string]error{}} }

func (f *fakeL2) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := f.errs["get"]; err != nil {
		return nil, false, err
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeL2) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if err := f.errs["set"]; err != nil {
		return err
	}
	f.data[key] = value
	return nil
}

func (f *fakeL2) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func (f *fakeL2) Clear(_ context.Context) error {
	f.data = map[string][]byte{}
	return nil
}

func TestTieredCache_L2PromotesToL1(t *testing.T) {
	ctx := context.Background()
	l2 := newFakeL2()
	l2.data["k"] = []byte("from-l2")

	tc := NewTieredCache(NewLRU(10, nil), l2, time.Minute)

	v, ok, err := tc.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("from-l2"), v)

	stats := tc.Stats()
	assert.Equal(t, int64(1), stats.L1Misses)
	assert.Equal(t, int64(1), stats.L2Hits)

	// Now should hit L1 without touching L2.
	v2, ok2, _ := tc.Get(ctx, "k")
	assert.True(t, ok2)
	assert.Equal(t, v, v2)
	assert.Equal(t, int64(1), tc.Stats().L1Hits)
}

func TestTieredCache_L2ErrorsAreSwallowed(t *testing.T) {
	ctx := context.Background()
	l2 := newFakeL2()
	l2.errs["set"] = assert.AnError

	var reported error
	tc := NewTieredCache(NewLRU(10, nil), l2, time.Minute)
	tc.OnL2Error = func(op string, err error) { reported = err }

	err := tc.Set(ctx, "k", []byte("v"), time.Minute)
	require.NoError(t, err, "L2 errors must not fail the call")
	assert.Error(t, reported)

	// L1 remains authoritative.
	v, ok, _ := tc.Get(ctx, "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestTieredCache_GetOrLoad(t *testing.T) {
	ctx := context.Background()
	tc := NewTieredCache(NewLRU(10, nil), nil, time.Minute)

	calls := 0
	loader := func(ctx context.Context) ([]byte, time.Duration, error) {
		calls++
		return []byte("loaded"), time.Minute, nil
	}

	v, err := tc.GetOrLoad(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, []byte("loaded"), v)
	assert.Equal(t, 1, calls)

	v2, err := tc.GetOrLoad(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, v, v2)
	assert.Equal(t, 1, calls, "second call should be served from cache")
}
