// Package pointerobj tracks pointer provenance: every pointer value the
// tracer observes is tagged with the address of the allocation it was
// minted against and that allocation's temporal identity, so that a
// use-after-free or a stale-pointer-arithmetic access can be detected even
// though the raw numeric address alone cannot tell the difference between a
// live allocation and a freed one later reused at the same address (§4.4).
package pointerobj

import "fmt"

// Target is a pointer provenance tag: {base, temporal_id}. The zero Target
// represents a null pointer or an origin the tracer never observed.
type Target struct {
	Base       uint64
	TemporalID uint64
}

// Null is the zero Target, used for null pointer constants and for loads of
// an address the in-memory map has no tag for.
var Null = Target{}

// IsNull reports whether t is the zero tag.
func (t Target) IsNull() bool {
	return t.Base == 0 && t.TemporalID == 0
}

// Equal reports whether t and other name the same base and temporal ID.
func (t Target) Equal(other Target) bool {
	return t == other
}

// Forever mints a tag for an object with no temporal reuse concern (a
// global variable or function address): temporal ID 0, lifetime-forever.
func Forever(base uint64) Target {
	return Target{Base: base, TemporalID: 0}
}

// Mint returns a tag for an allocation with the given base address and
// temporal ID, as returned by alloca/malloc/realloc once the allocation has
// been registered in shadow memory.
func Mint(base, temporalID uint64) Target {
	return Target{Base: base, TemporalID: temporalID}
}

func (t Target) String() string {
	if t.IsNull() {
		return "null"
	}
	return fmt.Sprintf("{base=%#x, temporal_id=%d}", t.Base, t.TemporalID)
}
