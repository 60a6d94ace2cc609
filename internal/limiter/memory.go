package limiter

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value    int64
	deadline time.Time
}

// MemoryStore is an in-process CounterStore for tests and single-node
// development runs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]*memEntry{}, now: time.Now}
}

func (s *MemoryStore) live(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.deadline.IsZero() && !e.deadline.After(s.now()) {
		delete(s.entries, key)
		return nil
	}
	return e
}

// Get returns the counter value, 0 when absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		return e.value, nil
	}
	return 0, nil
}

// Set stores a counter value with a TTL.
func (s *MemoryStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memEntry{value: value, deadline: s.now().Add(ttl)}
	return nil
}

// Increment atomically bumps the counter, creating it at 1 with no deadline
// until Expire is called.
func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.live(key)
	if e == nil {
		e = &memEntry{}
		s.entries[key] = e
	}
	e.value++
	return e.value, nil
}

// Expire refreshes the key's TTL.
func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil {
		e.deadline = s.now().Add(ttl)
	}
	return nil
}

// Delete removes the key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// TTL reports the remaining lifetime of a key (test helper).
func (s *MemoryStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.live(key); e != nil && !e.deadline.IsZero() {
		return e.deadline.Sub(s.now())
	}
	return 0
}
