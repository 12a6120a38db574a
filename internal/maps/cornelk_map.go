package maps

import "github.com/cornelk/hashmap"

// CornelkMap wraps cornelk/hashmap.
type CornelkMap[K Integer, V any] struct {
	m *hashmap.Map[K, V]
}

func NewCornelkMap[K Integer, V any]() ConcurrentMap[K, V] {
	return &CornelkMap[K, V]{m: hashmap.New[K, V]()}
}

func (m *CornelkMap[K, V]) Load(key K) (V, bool) { return m.m.Get(key) }
func (m *CornelkMap[K, V]) Store(key K, value V) { m.m.Set(key, value) }
func (m *CornelkMap[K, V]) Delete(key K)         { m.m.Del(key) }

// LoadAndDelete is a Get followed by a Del; a concurrent Store in between is lost.
// The registry only mutates its index under its own lock, so this is acceptable there.
func (m *CornelkMap[K, V]) LoadAndDelete(key K) (V, bool) {
	val, ok := m.m.Get(key)
	if ok {
		m.m.Del(key)
	}
	return val, ok
}

func (m *CornelkMap[K, V]) Range(f func(key K, value V) bool) { m.m.Range(f) }
func (m *CornelkMap[K, V]) Len() int                          { return m.m.Len() }
