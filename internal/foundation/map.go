package foundation

import "unsafe"

// Map is a bounded, fixed-capacity key-value map. Capacity N is fixed at
// construction; Insert beyond capacity returns ErrCapacityExceeded, per
// spec.md §3.1 and §4.1. Lookup is O(1) via a Go map index over a
// preallocated backing slice of entries, documented here per spec.md
// §4.1's requirement that the complexity choice be stated.
type Map[K comparable, V any] struct {
	guard   *Guard
	keys    []K
	values  []V
	indexOf map[K]int
}

// NewMap spends cap to charge (sizeof(K)+sizeof(V))*n bytes and returns a
// Map pre-sized to hold exactly n entries.
func NewMap[K comparable, V any](cap *Capability, n int) (*Map[K, V], error) {
	var zk K
	var zv V
	byteSize := uint64(n) * uint64(unsafe.Sizeof(zk)+unsafe.Sizeof(zv))
	g, err := cap.Allocate(byteSize)
	if err != nil {
		return nil, err
	}
	g = newGuardWithFinalizer(g)
	return &Map[K, V]{
		guard:   g,
		keys:    make([]K, 0, n),
		values:  make([]V, 0, n),
		indexOf: make(map[K]int, n),
	}, nil
}

// Len returns the number of entries currently stored.
func (m *Map[K, V]) Len() int { return len(m.keys) }

// Cap returns the fixed capacity.
func (m *Map[K, V]) Cap() int { return cap(m.keys) }

// Insert adds or overwrites key k with value v. Returns the previous value
// (if any) and ErrCapacityExceeded if the map is full and k is new.
func (m *Map[K, V]) Insert(k K, v V) (V, bool, error) {
	var zero V
	if idx, ok := m.indexOf[k]; ok {
		old := m.values[idx]
		m.values[idx] = v
		return old, true, nil
	}
	if len(m.keys) >= cap(m.keys) {
		return zero, false, ErrCapacityExceeded
	}
	m.indexOf[k] = len(m.keys)
	m.keys = append(m.keys, k)
	m.values = append(m.values, v)
	return zero, false, nil
}

// Get looks up k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	var zero V
	idx, ok := m.indexOf[k]
	if !ok {
		return zero, false
	}
	return m.values[idx], true
}

// Close releases the Map's budget charge. Idempotent.
func (m *Map[K, V]) Close() { m.guard.Release() }
