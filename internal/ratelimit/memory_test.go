package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStoreDeniesOverLimit(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	first, err := store.Allow(ctx, "auth:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	second, _ := store.Allow(ctx, "auth:10.0.0.1", 2, time.Minute)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)

	third, _ := store.Allow(ctx, "auth:10.0.0.1", 2, time.Minute)
	assert.False(t, third.Allowed)
	assert.Equal(t, 30*time.Second, third.RetryAfter)

	other, _ := store.Allow(ctx, "auth:10.0.0.2", 2, time.Minute)
	assert.True(t, other.Allowed, "keys are independent")

	clock.Advance(30 * time.Second)
	again, _ := store.Allow(ctx, "auth:10.0.0.1", 2, time.Minute)
	assert.True(t, again.Allowed)
}

func TestMemoryStoreSweepDropsIdleKeys(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)
	ctx := context.Background()

	_, _ = store.Allow(ctx, "a", 5, time.Minute)
	clock.Advance(45 * time.Second)
	_, _ = store.Allow(ctx, "b", 5, time.Minute)
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreIsAtomicPerKey(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore(clock.Now)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := store.Allow(context.Background(), "k", 10, time.Minute)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)
}

func TestMemoryStoreDisabledLimit(t *testing.T) {
	store := NewMemoryStore(nil)
	d, err := store.Allow(context.Background(), "k", 0, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
