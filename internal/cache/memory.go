package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

type memSet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

var _ Backend = (*MemoryStore)(nil)

// MemoryStore is a process-local Backend used when Redis is not configured and in tests.
// Expiry follows Redis semantics: a zero TTL never expires and a set expires as a whole.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	sets    map[string]*memSet
	now     func() time.Time
}

// NewMemoryStore creates an empty store on the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an empty store that reads time from now.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		sets:    make(map[string]*memSet),
		now:     now,
	}
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if expired(e.expiresAt, m.now()) {
		delete(m.entries, key)
		return nil, ErrMiss
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	value := make([]byte, len(payload))
	copy(value, payload)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{value: value, expiresAt: m.deadline(ttl)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
		delete(m.sets, key)
	}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	return err == nil, err
}

func (m *MemoryStore) Add(_ context.Context, set, member string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok || expired(s.expiresAt, m.now()) {
		s = &memSet{members: make(map[string]struct{})}
		m.sets[set] = s
	}
	s.members[member] = struct{}{}
	s.expiresAt = m.deadline(ttl)
	return nil
}

// Members returns the set sorted, which keeps fan-out order stable.
func (m *MemoryStore) Members(_ context.Context, set string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok {
		return nil, nil
	}
	if expired(s.expiresAt, m.now()) {
		delete(m.sets, set)
		return nil, nil
	}
	out := make([]string, 0, len(s.members))
	for member := range s.members {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Remove(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sets[set]; ok {
		delete(s.members, member)
		if len(s.members) == 0 {
			delete(m.sets, set)
		}
	}
	return nil
}

func (m *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if e, ok := m.entries[key]; ok && !expired(e.expiresAt, now) {
		return false, nil
	}
	m.entries[key] = memEntry{value: []byte(now.Format(time.RFC3339Nano)), expiresAt: m.deadline(ttl)}
	return true, nil
}
