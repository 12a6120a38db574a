// Package maps provides the concurrent integer-keyed maps used as lookup indexes
// by the thread registry. The implementation is chosen at construction so the
// registry can be tuned from configuration without touching its logic.
package maps

import "fmt"

// Integer is a constraint that permits any integer type.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// ConcurrentMap is a thread-safe map with integer keys.
type ConcurrentMap[K Integer, V any] interface {
	Load(key K) (V, bool)
	Store(key K, value V)
	Delete(key K)
	LoadAndDelete(key K) (V, bool)
	Range(f func(key K, value V) bool)
	Len() int
}

// Implementation names accepted by New.
const (
	XSync   = "xsync"
	Sharded = "sharded"
	Cornelk = "cornelk"
	Sync    = "sync"
)

// Default is used when no implementation is configured.
const Default = XSync

// Valid reports whether impl names a known implementation. The empty string
// selects Default.
func Valid(impl string) bool {
	switch impl {
	case "", XSync, Sharded, Cornelk, Sync:
		return true
	}
	return false
}

// New returns an empty map backed by impl.
func New[K Integer, V any](impl string) (ConcurrentMap[K, V], error) {
	switch impl {
	case "", XSync:
		return NewXSyncMap[K, V](), nil
	case Sharded:
		return NewShardedMap[K, V](), nil
	case Cornelk:
		return NewCornelkMap[K, V](), nil
	case Sync:
		return NewStdSyncMap[K, V](), nil
	}
	return nil, fmt.Errorf("unknown map implementation %q", impl)
}
