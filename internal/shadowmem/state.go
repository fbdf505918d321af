package shadowmem

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/seec-team/seectrace/internal/dsa"
)

// State is the process-wide shadow-memory map: an address-keyed,
// strictly sorted, non-overlapping set of live Allocations (I1, I2). It is
// safe for concurrent use: every method takes the map's own lock, so each
// call is atomic on its own. The lock is not reentrant, so State's methods
// must not be called while Lock is held.
type State struct {
	mu          sync.RWMutex
	allocations *dsa.IntervalMapVector[*Allocation]
	nextTemporalID atomic.Uint64
}

// NewState returns an empty shadow-memory map.
func NewState() *State {
	return &State{allocations: dsa.NewIntervalMapVector[*Allocation]()}
}

// Lock acquires the map's write lock. State's own methods take the same
// lock, so none of them may be called until Unlock.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the map's write lock.
func (s *State) Unlock() { s.mu.Unlock() }

// AddAllocation registers a new live allocation over area. It fails (I2) if
// area overlaps any currently live allocation.
func (s *State) AddAllocation(area dsa.MemoryArea) (*Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextTemporalID.Add(1)
	alloc := NewAllocation(area, id)
	if !s.allocations.Insert(area.Address(), area.Address()+area.Length(), alloc) {
		return nil, fmt.Errorf("shadowmem: allocation %v overlaps an existing allocation", area)
	}
	return alloc, nil
}

// AddForeverAllocation registers area as a live allocation with temporal ID
// 0, the sentinel the atomic counter in AddAllocation never produces. It
// backs global variables and other objects with no temporal reuse concern
// (§4.4): a pointerobj.Forever tag minted against area's base will never be
// flagged stale, since CurrentTemporalID will keep reporting 0 for as long
// as the allocation is never removed.
func (s *State) AddForeverAllocation(area dsa.MemoryArea) (*Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alloc := NewAllocation(area, 0)
	if !s.allocations.Insert(area.Address(), area.Address()+area.Length(), alloc) {
		return nil, fmt.Errorf("shadowmem: allocation %v overlaps an existing allocation", area)
	}
	return alloc, nil
}

// RemoveAllocation deregisters the allocation starting at address, if any.
func (s *State) RemoveAllocation(address uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allocations.Remove(address)
}

// FindAllocationContaining returns the unique allocation covering addr, if
// any (the shadow-memory half of getContainingMemoryArea; the process
// listener additionally searches global variables, known regions, and other
// threads' stacks).
func (s *State) FindAllocationContaining(addr uint64) (*Allocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alloc, _, _, ok := s.allocations.Find(addr)
	return alloc, ok
}

// SetInitialized marks [addr, addr+length) initialized within whichever
// allocation contains it.
func (s *State) SetInitialized(addr, length uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alloc, _, _, ok := s.allocations.Find(addr)
	if !ok {
		return fmt.Errorf("shadowmem: address %#x is not inside any live allocation", addr)
	}
	return alloc.SetInitialized(addr, length)
}

// Clear marks [addr, addr+length) uninitialized within whichever allocation
// contains it.
func (s *State) Clear(addr, length uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	alloc, _, _, ok := s.allocations.Find(addr)
	if !ok {
		return fmt.Errorf("shadowmem: address %#x is not inside any live allocation", addr)
	}
	return alloc.Clear(addr, length)
}

// HasKnownState reports whether every byte of [addr, addr+length) is
// initialized. It is false, not an error, if the range is not entirely
// inside one live allocation — callers that need to distinguish "no such
// allocation" from "uninitialized" should use FindAllocationContaining
// directly.
func (s *State) HasKnownState(addr, length uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alloc, _, _, ok := s.allocations.Find(addr)
	if !ok {
		return false
	}
	return alloc.HasKnownState(addr, length)
}

// Memmove copies the shadow state of [src, src+length) onto
// [dst, dst+length) (P3). Both ranges must each lie entirely within a
// (possibly different) live allocation. The copy goes through an
// intermediate buffer, so it is correct regardless of whether, and in which
// direction, the two ranges overlap (B5) — unlike a naive byte-by-byte copy
// in the wrong direction, there is no direction to get wrong.
func (s *State) Memmove(src, dst, length uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcAlloc, _, _, ok := s.allocations.Find(src)
	if !ok {
		return fmt.Errorf("shadowmem: memmove source %#x is not inside any live allocation", src)
	}
	dstAlloc, _, _, ok := s.allocations.Find(dst)
	if !ok {
		return fmt.Errorf("shadowmem: memmove destination %#x is not inside any live allocation", dst)
	}

	srcOff, err := srcAlloc.offsetFor(src, length)
	if err != nil {
		return fmt.Errorf("shadowmem: memmove source: %w", err)
	}
	dstOff, err := dstAlloc.offsetFor(dst, length)
	if err != nil {
		return fmt.Errorf("shadowmem: memmove destination: %w", err)
	}

	snapshot := srcAlloc.shadow.extractRange(srcOff, length)
	dstAlloc.shadow.writeRange(dstOff, snapshot)
	return nil
}
