package services

import (
	"context"
	"strings"
	"sync"
)

// CounterStore holds the circuit breaker flag and the per-user monthly execution counters.
// Reserve must check and increment as one atomic step.
type CounterStore interface {
	Name() string
	BreakerTripped(ctx context.Context) (bool, error)
	SetBreaker(ctx context.Context, tripped bool, reason string) error
	Used(ctx context.Context, userID, period string) (int, error)
	Reserve(ctx context.Context, userID, period string, limit int) (allowed bool, used int, err error)
	Release(ctx context.Context, userID, period string) error
	ResetAll(ctx context.Context) error
	// ResetBefore drops counters for periods earlier than period
	ResetBefore(ctx context.Context, period string) error
}

// MemoryCounterStore keeps protection state in process memory.
// State is lost on restart and not shared between instances.
type MemoryCounterStore struct {
	mu      sync.Mutex
	counts  map[string]int
	tripped bool
}

// NewMemoryCounterStore creates an empty in-memory store
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counts: make(map[string]int)}
}

func memoryKey(userID, period string) string {
	return period + ":" + userID
}

// Name implements CounterStore
func (m *MemoryCounterStore) Name() string { return "memory" }

// BreakerTripped implements CounterStore
func (m *MemoryCounterStore) BreakerTripped(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tripped, nil
}

// SetBreaker implements CounterStore
func (m *MemoryCounterStore) SetBreaker(ctx context.Context, tripped bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tripped = tripped
	return nil
}

// Used implements CounterStore
func (m *MemoryCounterStore) Used(ctx context.Context, userID, period string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[memoryKey(userID, period)], nil
}

// Reserve implements CounterStore
func (m *MemoryCounterStore) Reserve(ctx context.Context, userID, period string, limit int) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(userID, period)
	used := m.counts[key]
	if used >= limit {
		return false, used, nil
	}
	m.counts[key] = used + 1
	return true, used + 1, nil
}

// Release implements CounterStore
func (m *MemoryCounterStore) Release(ctx context.Context, userID, period string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(userID, period)
	if m.counts[key] > 1 {
		m.counts[key]--
	} else {
		delete(m.counts, key)
	}
	return nil
}

// ResetAll implements CounterStore
func (m *MemoryCounterStore) ResetAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[string]int)
	return nil
}

// ResetBefore implements CounterStore
func (m *MemoryCounterStore) ResetBefore(ctx context.Context, period string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.counts {
		if p, _, _ := strings.Cut(key, ":"); p < period {
			delete(m.counts, key)
		}
	}
	return nil
}
