// Package checker implements the runtime-error checker (§4.8): the layered
// validation that turns a raw memory access or library call into either
// success or a recorded rterror.Error.
package checker

import (
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/pointerobj"
	"github.com/seec-team/seectrace/internal/rterror"
	"github.com/seec-team/seectrace/internal/shadowmem"
)

// Access identifies the kind of memory access being checked.
type Access uint8

const (
	AccessRead Access = iota
	AccessWrite
)

func (a Access) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// MemoryReader lets the checker inspect the instrumented program's actual
// memory contents (to find a C string's terminator, for instance) without
// owning that memory itself — it is supplied by the process listener,
// which runs in the same address space as the traced program.
type MemoryReader interface {
	ReadByte(addr uint64) (byte, bool)
}

// RuntimeErrorChecker performs the general memory checks an instruction at
// a given index needs, independent of any particular library call.
type RuntimeErrorChecker struct {
	Mem              *shadowmem.State
	InstructionIndex uint32
}

// New returns a checker for the instruction at instructionIndex, validating
// against mem.
func New(mem *shadowmem.State, instructionIndex uint32) *RuntimeErrorChecker {
	return &RuntimeErrorChecker{Mem: mem, InstructionIndex: instructionIndex}
}

// CheckPointer verifies that tag is non-null and temporal-current (not
// stale), returning nil if so.
func (c *RuntimeErrorChecker) CheckPointer(tag pointerobj.Target) *rterror.Error {
	if tag.IsNull() {
		return rterror.New(rterror.KindMemoryUnowned, c.InstructionIndex, rterror.Address(tag.Base))
	}
	if pointerobj.IsStale(c.Mem, tag) {
		return rterror.New(rterror.KindPointerArithmeticOperandOutdated, c.InstructionIndex, rterror.Address(tag.Base))
	}
	return nil
}

// MemoryExists verifies addr is inside a live allocation, returning it.
func (c *RuntimeErrorChecker) MemoryExists(addr uint64) (dsa.MemoryArea, *rterror.Error) {
	alloc, ok := c.Mem.FindAllocationContaining(addr)
	if !ok {
		return dsa.MemoryArea{}, rterror.New(rterror.KindMemoryUnowned, c.InstructionIndex, rterror.Address(addr))
	}
	return alloc.Area(), nil
}

// CheckMemoryAccess verifies that [addr, addr+size) lies within a live
// allocation, that access is permitted by the allocation's permission, and
// — for reads — that the range is fully initialized (P2).
func (c *RuntimeErrorChecker) CheckMemoryAccess(addr, size uint64, access Access) *rterror.Error {
	area, err := c.MemoryExists(addr)
	if err != nil {
		return err
	}

	span := dsa.NewIntervalLength(addr, size)
	if !area.ContainsInterval(span) {
		return rterror.New(rterror.KindMemoryUnowned, c.InstructionIndex,
			rterror.Address(addr), rterror.Size(size), rterror.Select(uint32(access)))
	}
	if (access == AccessRead && !area.Access().AllowsRead()) || (access == AccessWrite && !area.Access().AllowsWrite()) {
		return rterror.New(rterror.KindPassedPointerToUnowned, c.InstructionIndex,
			rterror.Address(addr), rterror.Size(size), rterror.Select(uint32(access)))
	}
	if access == AccessRead && !c.Mem.HasKnownState(addr, size) {
		return rterror.New(rterror.KindMemoryUninitialized, c.InstructionIndex,
			rterror.Address(addr), rterror.Size(size))
	}
	return nil
}

// GetLengthOfKnownState returns the number of contiguous initialized bytes
// starting at addr, up to a maximum of limit (P4): either limit itself, or
// the offset of the first uninitialized byte.
func (c *RuntimeErrorChecker) GetLengthOfKnownState(addr, limit uint64) uint64 {
	var k uint64
	for k < limit && c.Mem.HasKnownState(addr+k, 1) {
		k++
	}
	return k
}

// GetCStringInArea finds the NUL terminator of the string starting at addr
// within area, reading bytes via reader. It returns the string's length
// including the terminator. Every byte visited must be initialized and
// inside area; violating either raises an error instead of reading past it.
func (c *RuntimeErrorChecker) GetCStringInArea(reader MemoryReader, area dsa.MemoryArea, addr uint64) (uint64, *rterror.Error) {
	limit := area.Address() + area.Length() - addr
	return c.GetLimitedCStringInArea(reader, area, addr, limit)
}

// GetLimitedCStringInArea is GetCStringInArea bounded additionally by limit
// bytes, for APIs like strncpy that cap how far they may read.
func (c *RuntimeErrorChecker) GetLimitedCStringInArea(reader MemoryReader, area dsa.MemoryArea, addr, limit uint64) (uint64, *rterror.Error) {
	maxAreaOffset := area.Address() + area.Length() - addr
	if limit > maxAreaOffset {
		limit = maxAreaOffset
	}

	for i := uint64(0); i < limit; i++ {
		cur := addr + i
		if !c.Mem.HasKnownState(cur, 1) {
			return 0, rterror.New(rterror.KindMemoryUninitialized, c.InstructionIndex, rterror.Address(cur))
		}
		b, ok := reader.ReadByte(cur)
		if !ok {
			return 0, rterror.New(rterror.KindMemoryUnowned, c.InstructionIndex, rterror.Address(cur))
		}
		if b == 0 {
			return i + 1, nil
		}
	}
	return 0, rterror.New(rterror.KindNullTerminatorMissing, c.InstructionIndex, rterror.Address(addr), rterror.Size(limit))
}
