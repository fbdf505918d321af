package pointerobj

import "sync"

// InMemoryMap records, for addresses currently holding a pointer-typed
// value, the Target that was stored there. It is sparse: an address with no
// entry is treated as holding the null tag, matching "load of a pointer
// type ... if absent, {0,0}".
//
// The map is guarded by the same mutex the process listener acquires for
// shadow memory (§4.10 "Thread-safety" — "the in-memory pointer-object map
// is guarded by the global-memory lock"); InMemoryMap exposes its own lock
// here so callers that already hold shadow memory's lock can choose to
// share it, or callers that only touch pointer tags can lock just this.
type InMemoryMap struct {
	mu      sync.Mutex
	entries map[uint64]Target
}

// NewInMemoryMap returns an empty map.
func NewInMemoryMap() *InMemoryMap {
	return &InMemoryMap{entries: make(map[uint64]Target)}
}

// Load returns the tag stored at addr, or Null if none.
func (m *InMemoryMap) Load(addr uint64) Target {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tag, ok := m.entries[addr]; ok {
		return tag
	}
	return Null
}

// Store commits tag at addr, first clearing any tags that overlap
// [addr, addr+ptrSize) so a narrower or unaligned subsequent read never
// observes a stale tag fragment from a previous, differently-sized store.
// Each existing tag is taken to span ptrSize bytes from its own address.
func (m *InMemoryMap) Store(addr uint64, tag Target, ptrSize uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for a := range m.entries {
		if a < addr+ptrSize && a+ptrSize > addr {
			delete(m.entries, a)
		}
	}
	if !tag.IsNull() {
		m.entries[addr] = tag
	}
}

// ClearRange removes every tag whose address falls in [addr, addr+length).
func (m *InMemoryMap) ClearRange(addr, length uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearRangeLocked(addr, length)
}

func (m *InMemoryMap) clearRangeLocked(addr, length uint64) {
	for a := range m.entries {
		if a >= addr && a < addr+length {
			delete(m.entries, a)
		}
	}
}

// CopyRange copies tags from [src, src+length) to [dst, dst+length),
// preserving each tag's offset from the start of the range, as by a
// memmove/memcpy or a byval argument copy. The destination is cleared only
// after the source range is staged into a temporary buffer, so an
// overlapping move (dst inside [src, src+length) or vice versa) is handled
// correctly regardless of direction.
func (m *InMemoryMap) CopyRange(src, dst, length uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type staged struct {
		offset uint64
		tag    Target
	}
	var staging []staged
	for a, tag := range m.entries {
		if a >= src && a < src+length {
			staging = append(staging, staged{offset: a - src, tag: tag})
		}
	}

	m.clearRangeLocked(dst, length)
	for _, s := range staging {
		m.entries[dst+s.offset] = s.tag
	}
}

// Len returns the number of live tags, for diagnostics and tests.
func (m *InMemoryMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
