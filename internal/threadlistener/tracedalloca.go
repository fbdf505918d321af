package threadlistener

import "github.com/seec-team/seectrace/internal/dsa"

// TracedAlloca records one stack allocation made by an active function, so
// the function's stack area and individual alloca regions can be recovered
// on demand (for pointer-provenance checks and for tearing the allocation
// down again when the function returns or the alloca's stacksave point is
// restored).
type TracedAlloca struct {
	InstructionIndex uint32
	Address          uint64
	ElementSize      uint64
	ElementCount     uint64
	EventOffset      int64
}

// Area returns the memory region this alloca occupies.
func (a TracedAlloca) Area() dsa.MemoryArea {
	return dsa.NewMemoryArea(a.Address, a.ElementSize*a.ElementCount)
}
