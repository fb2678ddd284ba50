package backend

import (
	"context"
	"sync"

	"github.com/emirpasic/gods/sets/hashset"
)

// MemoryBackend keeps everything in memory. Data is lost on restart.
// Safe for concurrent use. It does not implement Atomic, so the store falls
// back to its sequential write path against it.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string][]byte
	sets   map[string]*hashset.Set
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string][]byte),
		sets:   make(map[string]*hashset.Set),
	}
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = copyBytes(value)
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNil
	}
	return copyBytes(v), nil
}

func (m *MemoryBackend) MGet(_ context.Context, keys []string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(keys))
	for i, k := range keys {
		if v, ok := m.values[k]; ok {
			out[i] = copyBytes(v)
		}
	}
	return out, nil
}

func (m *MemoryBackend) SAdd(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = hashset.New()
		m.sets[key] = set
	}
	set.Add(member)
	return nil
}

func (m *MemoryBackend) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[key]
	if !ok {
		return []string{}, nil
	}
	members := make([]string, 0, set.Size())
	for _, v := range set.Values() {
		members = append(members, v.(string))
	}
	return members, nil
}

// Delete removes the value at key without touching any set. It exists so
// that eviction by an external party can be simulated.
func (m *MemoryBackend) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

func (m *MemoryBackend) Close() error { return nil }
