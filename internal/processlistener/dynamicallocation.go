package processlistener

import "github.com/seec-team/seectrace/internal/dsa"

// DynamicAllocation records which thread and event created a heap
// allocation, so an offline viewer can jump straight to the allocating
// call site instead of re-walking every thread's event stream.
type DynamicAllocation struct {
	Thread uint32
	Offset int64
	Address uint64
	Size   uint64
}

// Area returns the memory region the allocation occupies.
func (d DynamicAllocation) Area() dsa.MemoryArea {
	return dsa.NewMemoryArea(d.Address, d.Size)
}

// update replaces the thread, offset, and size of a still-live
// DynamicAllocation, used when realloc resizes an allocation in place, so
// its address, and its identity for callers tracking it by address, stay
// the same.
func (d *DynamicAllocation) update(thread uint32, offset int64, size uint64) {
	d.Thread = thread
	d.Offset = offset
	d.Size = size
}
