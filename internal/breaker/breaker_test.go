package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := newBreaker("conn-a", Config{FailureThreshold: 3, OpenTimeout: time.Hour})

	failing := func(context.Context) error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		_ = b.ExecuteWithContext(context.Background(), failing)
	}

	assert.Equal(t, Open, b.State())
	err := b.ExecuteWithContext(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_HalfOpenClosesAfterSuccess(t *testing.T) {
	b := newBreaker("conn-b", Config{FailureThreshold: 1, OpenTimeout: time.Millisecond, SuccessThreshold: 1})

	_ = b.ExecuteWithContext(context.Background(), func(context.Context) error { return errors.New("boom") })
	require.Equal(t, Open, b.State())

	time.Sleep(5 * time.Millisecond)
	err := b.ExecuteWithContext(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, Closed, b.State())
}

func TestManager_GetIsStablePerKey(t *testing.T) {
	m := NewManager(Config{})
	a1 := m.Get("conn-a")
	a2 := m.Get("conn-a")
	b := m.Get("conn-b")

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
}
