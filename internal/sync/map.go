package sync

import "sync"

// Map is a typed map guarded by an RWMutex. Unlike sync.Map it supports
// compound check-then-set updates through LoadOrCompute and WithLock.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

func (m *Map[K, V]) Load(key K) (value V, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok = m.m[key]
	return
}

func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key] = value
}

func (m *Map[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, key)
}

// LoadOrCompute returns the value for key, calling create under the write
// lock to fill it when absent. create runs at most once per missing key and
// must not touch the map.
func (m *Map[K, V]) LoadOrCompute(key K, create func() V) (actual V, loaded bool) {
	if v, ok := m.Load(key); ok {
		return v, true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.m[key]; ok {
		return v, true
	}
	actual = create()
	m.m[key] = actual
	return actual, false
}

// CompareAndDelete deletes the entry for key if its value is equal to old.
// Values are compared with ==, so V should be a pointer or basic type.
func (m *Map[K, V]) CompareAndDelete(key K, old V) (deleted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, exists := m.m[key]
	if !exists || any(current) != any(old) {
		return false
	}
	delete(m.m, key)
	return true
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}

// View is the lock-free face of a Map handed to WithLock callbacks. It must
// not escape the callback.
type View[K comparable, V any] interface {
	Get(key K) (value V, ok bool)
	Set(key K, value V)
	Delete(key K)
	Len() int
}

type mapView[K comparable, V any] map[K]V

func (mv mapView[K, V]) Get(key K) (value V, ok bool) {
	value, ok = mv[key]
	return
}

func (mv mapView[K, V]) Set(key K, value V) { mv[key] = value }

func (mv mapView[K, V]) Delete(key K) { delete(mv, key) }

func (mv mapView[K, V]) Len() int { return len(mv) }

// WithLock executes f while holding the write lock, so a check-then-set
// sequence inside f is atomic with respect to every other map operation.
//
//	m.WithLock(func(view sync.View[string, *Slot]) {
//		if _, ok := view.Get(scope); !ok {
//			view.Set(scope, newSlot())
//		}
//	})
func (m *Map[K, V]) WithLock(f func(view View[K, V])) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f(mapView[K, V](m.m))
}
