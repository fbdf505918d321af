package threadlistener

import (
	"sync"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/pointerobj"
	"github.com/seec-team/seectrace/internal/valuestore"
)

// TracedFunction holds the bookkeeping for a single active (or just
// finished) call frame: the stack region it owns, the allocas and byval
// argument areas within that region, its per-SSA-value pointer tags, and
// the per-instruction runtime value store backing replay.
type TracedFunction struct {
	FunctionIndex     uint32
	StartEventOffset  blockio.WriteRecord
	ThreadTimeEntered uint64
	ThreadTimeExited  uint64

	mu                sync.Mutex
	activeInstruction uint32
	hasActive         bool
	finished          bool

	allocas     []TracedAlloca
	byValAreas  []dsa.MemoryArea
	stackSaves  map[uint64][]TracedAlloca
	stackLow    uint64
	stackHigh   uint64

	values   *valuestore.BasicBlockStore
	pointers *pointerobj.FunctionMap
	children []*TracedFunction
}

// NewTracedFunction starts tracking a new call frame. layout may be nil if
// the caller has no per-instruction value layout for this function (e.g. an
// intercepted library call with no corresponding LLVM IR); the frame then
// tracks pointer provenance and stack state only.
func NewTracedFunction(functionIndex uint32, start blockio.WriteRecord, threadTimeEntered uint64, layout *valuestore.BasicBlockLayout) *TracedFunction {
	var values *valuestore.BasicBlockStore
	if layout != nil {
		values = valuestore.NewActivation(layout)
	}
	return &TracedFunction{
		FunctionIndex:     functionIndex,
		StartEventOffset:  start,
		ThreadTimeEntered: threadTimeEntered,
		stackSaves:        make(map[uint64][]TracedAlloca),
		values:            values,
		pointers:          pointerobj.NewFunctionMap(),
	}
}

// Values returns the runtime value store backing this activation.
func (f *TracedFunction) Values() *valuestore.BasicBlockStore { return f.values }

// Pointers returns the per-SSA-value pointer tag map for this activation.
func (f *TracedFunction) Pointers() *pointerobj.FunctionMap { return f.pointers }

// SetActiveInstruction records the instruction currently executing in this
// frame.
func (f *TracedFunction) SetActiveInstruction(index uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeInstruction = index
	f.hasActive = true
}

// ActiveInstruction returns the currently active instruction index, if any.
func (f *TracedFunction) ActiveInstruction() (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeInstruction, f.hasActive
}

// ClearActiveInstruction marks this frame as between instructions.
func (f *TracedFunction) ClearActiveInstruction() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasActive = false
}

// AddAlloca records a new stack allocation and extends the frame's known
// stack bounds to cover it.
func (f *TracedFunction) AddAlloca(a TracedAlloca) {
	f.mu.Lock()
	defer f.mu.Unlock()

	area := a.Area()
	low, high := area.Address(), area.LastAddress()
	if len(f.allocas) == 0 && f.stackLow == 0 && f.stackHigh == 0 {
		f.stackLow, f.stackHigh = low, high
	} else {
		if low < f.stackLow {
			f.stackLow = low
		}
		if high > f.stackHigh {
			f.stackHigh = high
		}
	}
	f.allocas = append(f.allocas, a)
}

// AddByValArea records the memory region backing a byval argument.
func (f *TracedFunction) AddByValArea(area dsa.MemoryArea) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byValAreas = append(f.byValAreas, area)
}

// Allocas returns a snapshot of the currently active allocas.
func (f *TracedFunction) Allocas() []TracedAlloca {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TracedAlloca, len(f.allocas))
	copy(out, f.allocas)
	return out
}

// StackArea returns the memory region occupied by this frame's stack
// allocations.
func (f *TracedFunction) StackArea() dsa.MemoryArea {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.allocas) == 0 || f.stackHigh < f.stackLow {
		return dsa.NewMemoryArea(0, 0)
	}
	return dsa.NewMemoryArea(f.stackLow, (f.stackHigh-f.stackLow)+1)
}

// ContainingMemoryArea returns the alloca or byval area containing addr, if
// any belongs to this frame.
func (f *TracedFunction) ContainingMemoryArea(addr uint64) (dsa.MemoryArea, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if addr >= f.stackLow && addr <= f.stackHigh {
		for _, a := range f.allocas {
			if a.Area().Contains(addr) {
				return a.Area(), true
			}
		}
	}
	for _, area := range f.byValAreas {
		if area.Contains(addr) {
			return area, true
		}
	}
	return dsa.MemoryArea{}, false
}

// StackSave snapshots the current alloca set under key (the llvm.stacksave
// token's runtime value).
func (f *TracedFunction) StackSave(key uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	saved := make([]TracedAlloca, len(f.allocas))
	copy(saved, f.allocas)
	f.stackSaves[key] = saved
}

// StackRestore discards every alloca made since the matching StackSave,
// returning the memory area they occupied so the caller can tear it down.
func (f *TracedFunction) StackRestore(key uint64) (dsa.MemoryArea, []TracedAlloca) {
	f.mu.Lock()
	defer f.mu.Unlock()

	saved, ok := f.stackSaves[key]
	if !ok {
		return dsa.MemoryArea{}, nil
	}

	savedCount := len(saved)
	invalidated := append([]TracedAlloca{}, f.allocas[savedCount:]...)
	f.allocas = f.allocas[:savedCount]

	if len(invalidated) == 0 {
		return dsa.MemoryArea{}, nil
	}

	low, high := invalidated[0].Address, invalidated[0].Area().LastAddress()
	for _, a := range invalidated[1:] {
		if a.Address < low {
			low = a.Address
		}
		if last := a.Area().LastAddress(); last > high {
			high = last
		}
	}
	return dsa.NewMemoryArea(low, (high-low)+1), invalidated
}

// Children returns this frame's direct callees.
func (f *TracedFunction) Children() []*TracedFunction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*TracedFunction, len(f.children))
	copy(out, f.children)
	return out
}

// AddChild records a direct callee of this frame.
func (f *TracedFunction) AddChild(child *TracedFunction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children = append(f.children, child)
}

// FinishRecording marks the frame complete and discards its active-only
// state, leaving only the permanent record accessible.
func (f *TracedFunction) FinishRecording(threadTimeExited uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = true
	f.ThreadTimeExited = threadTimeExited
	f.hasActive = false
	f.allocas = nil
	f.byValAreas = nil
	f.stackLow, f.stackHigh = 0, 0
}

// Finished reports whether FinishRecording has already been called.
func (f *TracedFunction) Finished() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finished
}
