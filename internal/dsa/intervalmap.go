package dsa

import "sort"

// entry is one {begin, end, value} triple stored in an IntervalMapVector.
type entry[V any] struct {
	begin uint64
	end   uint64
	value V
}

// IntervalMapVector is a sorted vector of non-overlapping [begin, end)
// intervals keyed by begin, with binary-search lookup. It backs the
// global-variable-by-address and known-memory-region lookups (§4.1).
//
// Insertion is O(n) (it must find the sorted insertion point and shift);
// lookup by key is O(log n); overlap counting scans every entry (O(n)).
type IntervalMapVector[V any] struct {
	entries []entry[V]
}

// NewIntervalMapVector returns an empty map.
func NewIntervalMapVector[V any]() *IntervalMapVector[V] {
	return &IntervalMapVector[V]{}
}

// Len returns the number of intervals currently stored.
func (m *IntervalMapVector[V]) Len() int { return len(m.entries) }

// searchIndex returns the index of the first entry whose begin is >= key.
func (m *IntervalMapVector[V]) searchIndex(key uint64) int {
	return sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].begin >= key
	})
}

// Insert adds a new interval [begin, end) -> value. It reports false without
// modifying the map if the new interval overlaps any existing one.
func (m *IntervalMapVector[V]) Insert(begin, end uint64, value V) bool {
	idx := m.searchIndex(begin)

	if idx > 0 && m.entries[idx-1].end > begin {
		return false
	}
	if idx < len(m.entries) && m.entries[idx].begin < end {
		return false
	}

	m.entries = append(m.entries, entry[V]{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = entry[V]{begin: begin, end: end, value: value}
	return true
}

// Remove deletes the interval starting at exactly begin. It reports whether
// an interval was removed.
func (m *IntervalMapVector[V]) Remove(begin uint64) bool {
	idx := m.searchIndex(begin)
	if idx >= len(m.entries) || m.entries[idx].begin != begin {
		return false
	}
	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	return true
}

// Find returns the unique interval with begin <= key < end, if any.
func (m *IntervalMapVector[V]) Find(key uint64) (value V, begin, end uint64, ok bool) {
	idx := m.searchIndex(key + 1)
	if idx == 0 {
		return value, 0, 0, false
	}
	e := m.entries[idx-1]
	if key < e.begin || key >= e.end {
		return value, 0, 0, false
	}
	return e.value, e.begin, e.end, true
}

// Count returns the number of intervals overlapping [begin, end).
func (m *IntervalMapVector[V]) Count(begin, end uint64) int {
	count := 0
	for _, e := range m.entries {
		if e.end > begin && e.begin < end {
			count++
		}
	}
	return count
}

// ForEach calls fn for every stored interval in ascending begin order. fn
// must not mutate the map.
func (m *IntervalMapVector[V]) ForEach(fn func(begin, end uint64, value V)) {
	for _, e := range m.entries {
		fn(e.begin, e.end, e.value)
	}
}
