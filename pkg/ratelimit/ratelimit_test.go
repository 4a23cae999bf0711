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
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestMemoryRejectsOverLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := NewMemory(2, time.Minute, 10, clock.Now)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "user-2")
	assert.True(t, ok, "keys are limited independently")
}

func TestMemoryWindowRolls(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, err := NewMemory(1, time.Minute, 10, clock.Now)
	require.NoError(t, err)
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)
	clock.Advance(30 * time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.False(t, ok)
	clock.Advance(31 * time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestMemoryBoundsTrackedKeys(t *testing.T) {
	l, err := NewMemory(1, time.Minute, 2, nil)
	require.NoError(t, err)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, err := l.Allow(ctx, k)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, l.Len())
}

func TestMemoryConcurrentCallersNeverExceedLimit(t *testing.T) {
	l, err := NewMemory(5, time.Hour, 10, nil)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := l.Allow(context.Background(), "same")
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func TestNewMemoryValidatesArguments(t *testing.T) {
	_, err := NewMemory(0, time.Minute, 1, nil)
	assert.Error(t, err)
	_, err = NewMemory(1, 0, 1, nil)
	assert.Error(t, err)
}

func TestNewRedisRequiresClient(t *testing.T) {
	_, err := NewRedis(nil, "rl:", 1, time.Minute, nil)
	assert.Error(t, err)
}
