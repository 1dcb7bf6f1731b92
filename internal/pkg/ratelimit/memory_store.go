package ratelimit

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type memoryEntry struct {
	count        int64
	windowEnd    time.Time
	blockedUntil time.Time
}

// MemoryStore keeps counters in process memory with the same semantics as RedisStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	calls   int
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Consume(_ context.Context, key string, rule Rule) (Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%sweepEvery == 0 {
		m.sweep(now)
	}

	e := m.entries[key]
	if e != nil && now.Before(e.blockedUntil) {
		return Result{RetryAfter: e.blockedUntil.Sub(now)}, nil
	}
	if e == nil || !now.Before(e.windowEnd) {
		e = &memoryEntry{windowEnd: now.Add(rule.Window)}
		m.entries[key] = e
	}

	e.count++
	if e.count <= rule.Points {
		return Result{Allowed: true, Remaining: rule.Points - e.count}, nil
	}

	if rule.Block > 0 {
		e.blockedUntil = now.Add(rule.Block)
		e.windowEnd = e.blockedUntil
		return Result{RetryAfter: rule.Block}, nil
	}
	return Result{RetryAfter: e.windowEnd.Sub(now)}, nil
}

// sweep drops entries whose window and block have both ended. Caller holds mu.
func (m *MemoryStore) sweep(now time.Time) {
	for k, e := range m.entries {
		if !now.Before(e.windowEnd) && !now.Before(e.blockedUntil) {
			delete(m.entries, k)
		}
	}
}

// Len reports the number of live counters.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
