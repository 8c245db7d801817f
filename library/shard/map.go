package shard

import (
	"sync"

	"github.com/zhenjl/cityhash"
)

const defaultShards = 32

// Map is a string keyed concurrent map split into independently locked
// buckets. The bucket of a key is chosen with cityhash, so unrelated keys
// rarely contend on the same lock.
type Map[V any] struct {
	buckets []*bucket[V]
}

type bucket[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// New creates a map with n buckets (default 32).
func New[V any](n ...int) *Map[V] {
	size := defaultShards
	if len(n) > 0 && n[0] > 0 {
		size = n[0]
	}
	m := &Map[V]{buckets: make([]*bucket[V], size)}
	for i := range m.buckets {
		m.buckets[i] = &bucket[V]{items: make(map[string]V)}
	}
	return m
}

func (m *Map[V]) bucket(key string) *bucket[V] {
	idx := cityhash.CityHash32([]byte(key), uint32(len(key))) % uint32(len(m.buckets))
	return m.buckets[idx]
}

func (m *Map[V]) Load(key string) (V, bool) {
	b := m.bucket(key)
	b.mu.RLock()
	v, ok := b.items[key]
	b.mu.RUnlock()
	return v, ok
}

func (m *Map[V]) Store(key string, v V) {
	b := m.bucket(key)
	b.mu.Lock()
	b.items[key] = v
	b.mu.Unlock()
}

// LoadOrStore returns the existing value for key if present. Otherwise it
// stores v and returns it. loaded reports whether the value was present.
func (m *Map[V]) LoadOrStore(key string, v V) (actual V, loaded bool) {
	b := m.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.items[key]; ok {
		return old, true
	}
	b.items[key] = v
	return v, false
}

func (m *Map[V]) LoadAndDelete(key string) (V, bool) {
	b := m.bucket(key)
	b.mu.Lock()
	v, ok := b.items[key]
	if ok {
		delete(b.items, key)
	}
	b.mu.Unlock()
	return v, ok
}

func (m *Map[V]) Delete(key string) {
	b := m.bucket(key)
	b.mu.Lock()
	delete(b.items, key)
	b.mu.Unlock()
}

// DeleteIf removes key only when match returns true for its current value.
func (m *Map[V]) DeleteIf(key string, match func(V) bool) bool {
	b := m.bucket(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.items[key]
	if !ok || !match(v) {
		return false
	}
	delete(b.items, key)
	return true
}

// Range calls fn for every entry until fn returns false. Each bucket is
// copied before iterating so fn may call back into the map.
func (m *Map[V]) Range(fn func(key string, v V) bool) {
	for _, b := range m.buckets {
		b.mu.RLock()
		keys := make([]string, 0, len(b.items))
		vals := make([]V, 0, len(b.items))
		for k, v := range b.items {
			keys = append(keys, k)
			vals = append(vals, v)
		}
		b.mu.RUnlock()

		for i := range keys {
			if !fn(keys[i], vals[i]) {
				return
			}
		}
	}
}

func (m *Map[V]) Len() int {
	n := 0
	for _, b := range m.buckets {
		b.mu.RLock()
		n += len(b.items)
		b.mu.RUnlock()
	}
	return n
}
