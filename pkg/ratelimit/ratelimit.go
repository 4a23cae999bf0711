// Package ratelimit caps how many events one key may produce inside a rolling
// time window.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Limiter decides whether the next event for key fits in its window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// Memory is an in-process rolling window limiter. Per-key timestamps live in
// a bounded LRU, so state is lost on restart and cold keys may be evicted.
type Memory struct {
	limit  int
	window time.Duration
	now    Clock

	mu      sync.Mutex
	windows *lru.Cache
}

// NewMemory builds a limiter admitting limit events per window for each of at
// most maxKeys keys.
func NewMemory(limit int, window time.Duration, maxKeys int, now Clock) (*Memory, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", window)
	}
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if now == nil {
		now = time.Now
	}
	cache, err := lru.New(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: build lru: %w", err)
	}
	return &Memory{limit: limit, window: window, now: now, windows: cache}, nil
}

// Allow records an event for key when the window has room.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-m.window)

	var stamps []time.Time
	if v, ok := m.windows.Get(key); ok {
		stamps = v.([]time.Time)
	}

	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= m.limit {
		m.windows.Add(key, kept)
		return false, nil
	}

	m.windows.Add(key, append(kept, now))
	return true, nil
}

// Len reports how many keys are tracked.
func (m *Memory) Len() int {
	return m.windows.Len()
}
