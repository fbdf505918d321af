// Package shadowmem tracks, per process, which bytes of which memory
// allocations have been written since they became live. It is the
// per-allocation byte-level initialization model described in §4.3: every
// allocation (global, stack, or heap) is
// a contiguous address range paired with one shadow bit per byte.
package shadowmem

import (
	"fmt"

	"github.com/seec-team/seectrace/internal/dsa"
)

// Allocation is a live memory region plus its initialization shadow. The
// shadow starts entirely uninitialized; SetInitialized marks bytes written.
type Allocation struct {
	area    dsa.MemoryArea
	shadow  *bitset
	// temporalID distinguishes this allocation's lifetime from any other
	// allocation that is later created at the same address, so a pointer
	// tag minted against a freed allocation is detectably stale even after
	// the address is reused.
	temporalID uint64
}

// NewAllocation returns a new, fully uninitialized allocation over area,
// stamped with temporalID.
func NewAllocation(area dsa.MemoryArea, temporalID uint64) *Allocation {
	return &Allocation{area: area, shadow: newBitset(area.Length()), temporalID: temporalID}
}

// Area returns the allocation's address range and permission.
func (a *Allocation) Area() dsa.MemoryArea { return a.area }

// TemporalID returns the allocation's mint-time identity.
func (a *Allocation) TemporalID() uint64 { return a.temporalID }

// offsetFor validates that [addr, addr+length) lies within a, returning the
// offset of addr relative to the allocation's start.
func (a *Allocation) offsetFor(addr, length uint64) (uint64, error) {
	span := dsa.NewIntervalLength(addr, length)
	if !a.area.ContainsInterval(span) {
		return 0, fmt.Errorf("shadowmem: range [%#x, %#x) outside allocation %v", addr, addr+length, a.area)
	}
	return addr - a.area.Start(), nil
}

// SetInitialized marks [addr, addr+length) written.
func (a *Allocation) SetInitialized(addr, length uint64) error {
	off, err := a.offsetFor(addr, length)
	if err != nil {
		return err
	}
	a.shadow.setRange(off, length)
	return nil
}

// Clear marks [addr, addr+length) uninitialized, as when a local variable's
// storage is invalidated at function exit or stack unwind.
func (a *Allocation) Clear(addr, length uint64) error {
	off, err := a.offsetFor(addr, length)
	if err != nil {
		return err
	}
	a.shadow.clearRange(off, length)
	return nil
}

// HasKnownState reports whether every byte in [addr, addr+length) is
// initialized. An out-of-range request is reported uninitialized rather
// than erroring, since "outside this allocation" also fails the check the
// caller actually cares about.
func (a *Allocation) HasKnownState(addr, length uint64) bool {
	off, err := a.offsetFor(addr, length)
	if err != nil {
		return false
	}
	return a.shadow.allSet(off, length)
}

// Resize grows or shrinks the allocation to newLength, starting at the same
// address, preserving the leading shadow bits (as by realloc growing or
// shrinking a block in place).
func (a *Allocation) Resize(newLength uint64) {
	a.area = a.area.WithLength(newLength)
	a.shadow.resize(newLength)
}
