package pointerobj

import (
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/shadowmem"
)

// CurrentTemporalID returns the temporal ID currently assigned to the
// allocation whose start address is base, and whether such an allocation is
// currently live. A freed-and-not-reallocated address, or an address that
// was never an allocation's start, reports ok=false.
func CurrentTemporalID(mem *shadowmem.State, base uint64) (id uint64, ok bool) {
	alloc, found := mem.FindAllocationContaining(base)
	if !found || alloc.Area().Address() != base {
		return 0, false
	}
	return alloc.TemporalID(), true
}

// IsStale reports whether t's temporal ID no longer matches the live
// allocation at t.Base — i.e. the allocation t was minted against has since
// been freed (and possibly replaced by an unrelated one at the same
// address).
func IsStale(mem *shadowmem.State, t Target) bool {
	if t.IsNull() {
		return false
	}
	current, ok := CurrentTemporalID(mem, t.Base)
	if !ok {
		return true
	}
	return current != t.TemporalID
}

// ResultWithinBase reports whether addr lies inside, or exactly one past
// the end of, the allocation named by base's tag — the bound a GEP result
// must satisfy to avoid an invalid-arithmetic-result error.
func ResultWithinBase(mem *shadowmem.State, base Target, addr uint64) bool {
	alloc, ok := mem.FindAllocationContaining(base.Base)
	if !ok {
		return false
	}
	area := alloc.Area()
	onePastEnd := area.Address() + area.Length()
	return area.Contains(addr) || addr == onePastEnd
}

// OwnedByLiveAllocation reports whether t's base is the start address of a
// currently live allocation with a matching temporal ID — the check a
// load or store through a pointer must pass to avoid a memory-unowned
// error.
func OwnedByLiveAllocation(mem *shadowmem.State, t Target) bool {
	if t.IsNull() {
		return false
	}
	current, ok := CurrentTemporalID(mem, t.Base)
	return ok && current == t.TemporalID
}

// WithinStackArea reports whether t's base lies inside stackArea, the
// bound used to detect a function returning a pointer to one of its own
// now-popped local allocations (return-of-local).
func WithinStackArea(stackArea dsa.MemoryArea, t Target) bool {
	return !t.IsNull() && stackArea.Contains(t.Base)
}
