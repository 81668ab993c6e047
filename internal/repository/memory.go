package repository

import (
	"context"
	"sync"
	"time"

	"storagebooking/internal/clock"
)

type windowCounter struct {
	count     int
	expiresAt time.Time
}

// MemoryGuardStore is the single-process guard store.
type MemoryGuardStore struct {
	mu       sync.Mutex
	locks    map[string]time.Time
	counters map[string]*windowCounter
	clock    clock.Clock
}

func NewMemoryGuardStore(clk clock.Clock) *MemoryGuardStore {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &MemoryGuardStore{
		locks:    make(map[string]time.Time),
		counters: make(map[string]*windowCounter),
		clock:    clk,
	}
}

func (r *MemoryGuardStore) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if exp, ok := r.locks[key]; ok && now.Before(exp) {
		return false, nil
	}
	r.locks[key] = now.Add(ttl)
	return true, nil
}

func (r *MemoryGuardStore) Release(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.locks, key)
	r.mu.Unlock()
	return nil
}

func (r *MemoryGuardStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.counters[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &windowCounter{expiresAt: now.Add(window)}
		r.counters[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
