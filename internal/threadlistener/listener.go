// Package threadlistener implements the per-thread instrumentation
// notification surface (§4.9): the sequence of notifyXxx calls an
// instrumented program's single thread makes into the tracer as it
// executes, each one appending one or more events to that thread's event
// stream and updating the shared process-level state (shadow memory,
// pointer provenance) that other threads also observe.
package threadlistener

import (
	"fmt"
	"sync"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/checker"
	"github.com/seec-team/seectrace/internal/detectcalls"
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/pointerobj"
	"github.com/seec-team/seectrace/internal/rterror"
	"github.com/seec-team/seectrace/internal/shadowmem"
	"github.com/seec-team/seectrace/internal/syncexit"
	"github.com/seec-team/seectrace/internal/traceformat"
	"github.com/seec-team/seectrace/internal/valuestore"
)

// LayoutLookup resolves the per-basic-block value layout for a function, so
// a new TracedFunction's runtime value store can be sized without the
// listener needing to understand LLVM IR itself.
type LayoutLookup func(functionIndex uint32) *valuestore.BasicBlockLayout

// ThreadListener is the receiver for one instrumented thread's
// notifications. It owns that thread's event stream and call stack, and
// shares the process-wide memory, pointer, and call-detection state with
// every other thread's listener.
type ThreadListener struct {
	ThreadID    uint32
	StackLimit  uint64 // 0 disables the stack-exhaustion check (B3)
	Mem         *shadowmem.State
	Pointers    *pointerobj.InMemoryMap
	Calls       *detectcalls.Lookup
	Coordinator *syncexit.Coordinator
	Layout      LayoutLookup

	// Streams and Dirs back the library-call interception framework's
	// fopen/fclose/opendir/closedir-family checks (§4.11). Both are nil
	// unless set after construction; a shim against a nil table treats the
	// handle as unknown rather than panicking.
	Streams *checker.StreamTable
	Dirs    *checker.DirTable

	// Reader lets wrapped library calls resolve C-string arguments against
	// the traced program's actual memory (§4.11). Set after construction;
	// nil disables string-argument checks rather than panicking.
	Reader checker.MemoryReader

	// InterceptLock, if set, is held for the duration of a wrapped library
	// call that touches shared dynamic-allocation or global-memory state
	// (§4.11's lock-acquisition settings). It is shared by every thread
	// listener of one process, the same way Mem is. Left nil, wrapped
	// calls run unsynchronized against each other — acceptable for a
	// single-threaded trace, but not for a concurrent one.
	InterceptLock *sync.Mutex

	// OnRuntimeError, if set, is invoked with every runtime error recorded on
	// this thread, after it has been written to the event stream. It lets a
	// process listener surface errors (structured logging, a live callback)
	// without the thread listener needing to know who is observing.
	OnRuntimeError func(threadID uint32, err *rterror.Error)

	events *blockio.EventWriter
	reg    *syncexit.Registration

	mu         sync.Mutex
	threadTime uint64
	stack      []*TracedFunction
}

// New returns a listener for threadID, writing events to stream and
// registering with coord for the duration of the thread's life. Close must
// be called when the thread terminates.
func New(threadID uint32, stream *blockio.ThreadEventStream, mem *shadowmem.State, pointers *pointerobj.InMemoryMap, calls *detectcalls.Lookup, coord *syncexit.Coordinator, layout LayoutLookup) *ThreadListener {
	return &ThreadListener{
		ThreadID:    threadID,
		Mem:         mem,
		Pointers:    pointers,
		Calls:       calls,
		Coordinator: coord,
		Layout:      layout,
		events:      blockio.NewEventWriter(stream),
		reg:         coord.Register(),
	}
}

// Close deregisters the thread from its coordinator and closes its event
// stream. It must be called exactly once, when the traced thread exits.
func (l *ThreadListener) Close() error {
	l.reg.Close()
	return l.events.Close()
}

func (l *ThreadListener) advanceTime() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threadTime++
	return l.threadTime
}

// ThreadTime returns the thread's current logical clock value.
func (l *ThreadListener) ThreadTime() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.threadTime
}

func (l *ThreadListener) pushFrame(fn *TracedFunction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.stack) > 0 {
		l.stack[len(l.stack)-1].AddChild(fn)
	}
	l.stack = append(l.stack, fn)
}

func (l *ThreadListener) popFrame() (*TracedFunction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.stack) == 0 {
		return nil, false
	}
	fn := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	return fn, true
}

// CurrentFunction returns the innermost active call frame, if any.
func (l *ThreadListener) CurrentFunction() (*TracedFunction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.stack) == 0 {
		return nil, false
	}
	return l.stack[len(l.stack)-1], true
}

// StackContaining searches every active call frame on this thread, from
// innermost outward, for an alloca or byval area covering addr. It is the
// per-thread half of the process listener's getContainingMemoryArea search,
// used when addr does not belong to a global, a dynamic allocation, or a
// known region (§4.10).
func (l *ThreadListener) StackContaining(addr uint64) (dsa.MemoryArea, bool) {
	l.mu.Lock()
	stack := make([]*TracedFunction, len(l.stack))
	copy(stack, l.stack)
	l.mu.Unlock()

	for i := len(stack) - 1; i >= 0; i-- {
		if area, ok := stack[i].ContainingMemoryArea(addr); ok {
			return area, true
		}
	}
	return dsa.MemoryArea{}, false
}

// checkerFor returns a runtime-error checker for the given instruction.
func (l *ThreadListener) checkerFor(instructionIndex uint32) *checker.RuntimeErrorChecker {
	return checker.New(l.Mem, instructionIndex)
}

// RecordRuntimeError is recordRuntimeError's exported form, used by the
// library-call interception framework (internal/intercept), which lives in
// a separate package to keep per-function libc shims out of the
// notification surface itself.
func (l *ThreadListener) RecordRuntimeError(rerr *rterror.Error) *rterror.Error {
	return l.recordRuntimeError(rerr)
}

// recordRuntimeError appends the runtime error (and its arguments) as
// subservient events, and returns it unchanged for the caller to act on.
func (l *ThreadListener) recordRuntimeError(rerr *rterror.Error) *rterror.Error {
	if rerr == nil {
		return nil
	}
	l.events.WriteEvent(&traceformat.RuntimeErrorRecord{
		Header:           traceformat.Header{Type: traceformat.EventRuntimeError},
		Type:             uint32(rerr.Kind),
		InstructionIndex: rerr.InstructionIndex,
	})
	for _, arg := range rerr.Args {
		l.events.WriteEvent(&traceformat.RuntimeErrorArgumentRecord{
			Header: traceformat.Header{Type: traceformat.EventRuntimeErrorArgument},
			Type:   uint8(arg.Type),
			Value:  argValue(arg),
		})
	}
	if l.OnRuntimeError != nil {
		l.OnRuntimeError(l.ThreadID, rerr)
	}
	return rerr
}

// argValue packs an rterror.Arg's payload into a single 64-bit value for
// the wire record; the paired Type byte tells a reader which field it is.
func argValue(arg rterror.Arg) uint64 {
	switch arg.Type {
	case rterror.ArgTypeAddress:
		return arg.Address
	case rterror.ArgTypeSize:
		return arg.Size
	case rterror.ArgTypeSelect:
		return uint64(arg.Select)
	case rterror.ArgTypeOperandIndex, rterror.ArgTypeParameterIndex:
		return uint64(arg.Index)
	default:
		return 0
	}
}

// NotifyFunctionBegin records entry into functionIndex, returning the new
// frame. It begins with a coordinator check (E1), so a pending stop is
// honored before any new state is recorded; so do function end, call,
// intrinsic, pre-instruction and the pre-load/pre-store notifications.
// NotifyAlloca, NotifyPostLoad, NotifyPostStore and the NotifyValueXxx
// calls do not check.
func (l *ThreadListener) NotifyFunctionBegin(functionIndex uint32) (*TracedFunction, error) {
	l.Coordinator.Check()
	threadTime := l.advanceTime()

	wr, err := l.events.WriteEvent(&traceformat.FunctionStartRecord{
		Header:        traceformat.Header{Type: traceformat.EventFunctionStart},
		FunctionIndex: functionIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("threadlistener: write FunctionStart: %w", err)
	}

	var layout *valuestore.BasicBlockLayout
	if l.Layout != nil {
		layout = l.Layout(functionIndex)
	}
	fn := NewTracedFunction(functionIndex, wr, threadTime, layout)
	l.pushFrame(fn)
	return fn, nil
}

// NotifyArgumentByVal records a byval argument's backing memory becoming
// live for the duration of the call.
func (l *ThreadListener) NotifyArgumentByVal(fn *TracedFunction, area dsa.MemoryArea) error {
	l.Coordinator.Check()
	fn.AddByValArea(area)
	_, err := l.events.WriteEvent(&traceformat.ByValRegionAddRecord{
		Header:  traceformat.Header{Type: traceformat.EventByValRegionAdd},
		Address: area.Address(),
		Length:  area.Length(),
	})
	return err
}

// NotifyFunctionEnd records fn returning. If result is a pointer tag, it is
// checked against fn's own stack area: returning a pointer into a frame's
// own locals (B1-adjacent "return of local") is flagged as a runtime error
// rather than silently producing a dangling pointer.
func (l *ThreadListener) NotifyFunctionEnd(fn *TracedFunction, instructionIndex uint32, result *pointerobj.Target) *rterror.Error {
	l.Coordinator.Check()
	threadTime := l.advanceTime()

	var rerr *rterror.Error
	if result != nil && pointerobj.WithinStackArea(fn.StackArea(), *result) {
		rerr = l.recordRuntimeError(rterror.New(rterror.KindReturnOfLocal, instructionIndex, rterror.Address(result.Base)))
	}

	for _, a := range fn.Allocas() {
		l.Mem.RemoveAllocation(a.Address)
	}

	wr, err := l.events.WriteEvent(&traceformat.FunctionEndRecord{
		Header:        traceformat.Header{Type: traceformat.EventFunctionEnd},
		FunctionIndex: fn.FunctionIndex,
	})
	if err == nil {
		l.events.RewriteEvent(fn.StartEventOffset, &traceformat.FunctionStartRecord{
			Header:        traceformat.Header{Type: traceformat.EventFunctionStart},
			FunctionIndex: fn.FunctionIndex,
			EventOffset:   uint64(wr.Offset()),
		})
	}

	fn.FinishRecording(threadTime)
	l.popFrame()
	return rerr
}

// NotifyPreCall looks up the call target at addr, returning the detected
// standard-library call (if any) so the caller can dispatch to the
// matching internal/intercept shim (Malloc, Free, Strlen, and so on) for
// that detectcalls.Call identifier.
func (l *ThreadListener) NotifyPreCall(addr uint64) (detectcalls.Call, bool) {
	l.Coordinator.Check()
	l.advanceTime()
	return l.Calls.Check(addr)
}

// NotifyPostCall marks the return of a call previously reported by
// NotifyPreCall.
func (l *ThreadListener) NotifyPostCall() {
	l.Coordinator.Check()
	l.advanceTime()
}

// NotifyPreCallIntrinsicMemcpy validates and performs an llvm.memcpy
// intrinsic, updating shadow state and pointer tags for the copied range
// (P3, B5). memcpy's source and destination overlapping is undefined
// behaviour in C, but this tracer's staged-copy Memmove produces a
// deterministic result regardless (B5), so it is recorded as a warning
// rather than treated as fatal.
func (l *ThreadListener) NotifyPreCallIntrinsicMemcpy(instructionIndex uint32, dst, src, length uint64) *rterror.Error {
	l.Coordinator.Check()
	l.advanceTime()

	c := l.checkerFor(instructionIndex)
	if rerr := c.CheckMemoryAccess(src, length, checker.AccessRead); rerr != nil {
		return l.recordRuntimeError(rerr)
	}
	if rerr := c.CheckMemoryAccess(dst, length, checker.AccessWrite); rerr != nil {
		return l.recordRuntimeError(rerr)
	}

	srcArea, dstArea := dsa.NewMemoryArea(src, length), dsa.NewMemoryArea(dst, length)
	var rerr *rterror.Error
	if srcArea.Intersects(dstArea.Interval) {
		rerr = l.recordRuntimeError(rterror.New(rterror.KindOverlappingSourceDestination, instructionIndex, rterror.Address(src), rterror.Address(dst), rterror.Size(length)))
	}

	if err := l.Mem.Memmove(src, dst, length); err != nil {
		return l.recordRuntimeError(rterror.New(rterror.KindMemoryUnowned, instructionIndex, rterror.Address(dst)))
	}
	l.Pointers.CopyRange(src, dst, length)

	l.events.WriteEvent(&traceformat.StateMemmoveRecord{
		Header:      traceformat.Header{Type: traceformat.EventStateMemmove},
		Source:      src,
		Destination: dst,
		Length:      length,
	})
	return rerr
}

// NotifyPreCallIntrinsicMemset validates and performs an llvm.memset
// intrinsic, marking length bytes at dst as initialized.
func (l *ThreadListener) NotifyPreCallIntrinsicMemset(instructionIndex uint32, dst, length uint64) *rterror.Error {
	l.Coordinator.Check()
	l.advanceTime()

	c := l.checkerFor(instructionIndex)
	if rerr := c.CheckMemoryAccess(dst, length, checker.AccessWrite); rerr != nil {
		return l.recordRuntimeError(rerr)
	}

	if err := l.Mem.SetInitialized(dst, length); err != nil {
		return l.recordRuntimeError(rterror.New(rterror.KindMemoryUnowned, instructionIndex, rterror.Address(dst)))
	}
	l.Pointers.ClearRange(dst, length)
	l.events.WriteEvent(&traceformat.StateOverwriteRecord{
		Header:  traceformat.Header{Type: traceformat.EventStateOverwrite},
		Address: dst,
		Length:  length,
	})
	return nil
}

// NotifyPreCallIntrinsicStacksave records fn's current alloca set under key
// (the llvm.stacksave token).
func (l *ThreadListener) NotifyPreCallIntrinsicStacksave(fn *TracedFunction, key uint64) {
	l.Coordinator.Check()
	l.advanceTime()
	fn.StackSave(key)
}

// NotifyPreCallIntrinsicStackrestore invalidates every alloca made since the
// matching stacksave, releasing their shadow allocations.
func (l *ThreadListener) NotifyPreCallIntrinsicStackrestore(fn *TracedFunction, key uint64) {
	l.Coordinator.Check()
	l.advanceTime()

	area, invalidated := fn.StackRestore(key)
	for _, a := range invalidated {
		l.Mem.RemoveAllocation(a.Address)
	}
	if area.Length() == 0 {
		return
	}

	l.events.WriteEvent(&traceformat.StackRestoreRecord{
		Header:  traceformat.Header{Type: traceformat.EventStackRestore},
		Address: area.Address(),
	})
	for _, a := range invalidated {
		l.events.WriteEvent(&traceformat.StackRestoreAllocaRecord{
			Header:  traceformat.Header{Type: traceformat.EventStackRestoreAlloca},
			Address: a.Address,
		})
	}
}

// NotifyPreAlloca validates that a new stack allocation of elementSize *
// elementCount bytes would not exceed the configured stack limit (B3),
// returning a fatal error if so.
func (l *ThreadListener) NotifyPreAlloca(fn *TracedFunction, instructionIndex uint32, elementSize, elementCount uint64) *rterror.Error {
	l.Coordinator.Check()
	l.advanceTime()

	if l.StackLimit > 0 {
		used := fn.StackArea().Length() + elementSize*elementCount
		if used > l.StackLimit {
			return l.recordRuntimeError(rterror.New(rterror.KindStackOverflow, instructionIndex, rterror.Size(used)))
		}
	}
	return nil
}

// NotifyAlloca records a stack allocation becoming live at address.
func (l *ThreadListener) NotifyAlloca(fn *TracedFunction, instructionIndex uint32, address, elementSize, elementCount uint64) error {
	area := dsa.NewMemoryArea(address, elementSize*elementCount)
	if _, err := l.Mem.AddAllocation(area); err != nil {
		return fmt.Errorf("threadlistener: alloca overlaps existing allocation: %w", err)
	}

	if _, err := l.events.WriteEvent(&traceformat.AllocaRecord{
		Header:  traceformat.Header{Type: traceformat.EventAlloca},
		Address: address,
		Size:    area.Length(),
	}); err != nil {
		return err
	}

	fn.AddAlloca(TracedAlloca{
		InstructionIndex: instructionIndex,
		Address:          address,
		ElementSize:      elementSize,
		ElementCount:     elementCount,
	})
	return nil
}

// NotifyPreLoad validates a pending load of size bytes through tag before
// it executes (P2, P5).
func (l *ThreadListener) NotifyPreLoad(instructionIndex uint32, tag pointerobj.Target, size uint64) *rterror.Error {
	l.Coordinator.Check()
	c := l.checkerFor(instructionIndex)
	if rerr := c.CheckPointer(tag); rerr != nil {
		return l.recordRuntimeError(rerr)
	}
	if rerr := c.CheckMemoryAccess(tag.Base, size, checker.AccessRead); rerr != nil {
		return l.recordRuntimeError(rerr)
	}
	return nil
}

// NotifyPostLoad records an Instruction event for the completed load. The
// loaded value itself is recorded by a following NotifyValueXxx call.
func (l *ThreadListener) NotifyPostLoad(instructionIndex uint32) {
	l.advanceTime()
	l.events.WriteEvent(&traceformat.InstructionRecord{
		Header: traceformat.Header{Type: traceformat.EventInstruction},
		Index:  instructionIndex,
	})
}

// NotifyPreStore validates a pending store of size bytes through tag before
// it executes.
func (l *ThreadListener) NotifyPreStore(instructionIndex uint32, tag pointerobj.Target, size uint64) *rterror.Error {
	l.Coordinator.Check()
	c := l.checkerFor(instructionIndex)
	if rerr := c.CheckPointer(tag); rerr != nil {
		return l.recordRuntimeError(rerr)
	}
	if rerr := c.CheckMemoryAccess(tag.Base, size, checker.AccessWrite); rerr != nil {
		return l.recordRuntimeError(rerr)
	}
	return nil
}

// NotifyPostStore marks size bytes at addr as initialized after a
// successful store, and clears any stale pointer tag the store overwrote.
func (l *ThreadListener) NotifyPostStore(instructionIndex uint32, addr, size uint64) error {
	l.advanceTime()
	if err := l.Mem.SetInitialized(addr, size); err != nil {
		return fmt.Errorf("threadlistener: mark stored range initialized: %w", err)
	}
	l.Pointers.ClearRange(addr, size)

	_, err := l.events.WriteEvent(&traceformat.StateOverwriteRecord{
		Header:  traceformat.Header{Type: traceformat.EventStateOverwrite},
		Address: addr,
		Length:  size,
	})
	return err
}

// NotifyPreDivide checks divisor before a division or remainder instruction
// executes, so a division by zero never reaches the host CPU (B2).
func (l *ThreadListener) NotifyPreDivide(instructionIndex uint32, divisor uint64) *rterror.Error {
	l.Coordinator.Check()
	if divisor == 0 {
		return l.recordRuntimeError(rterror.New(rterror.KindDivisionByZero, instructionIndex))
	}
	return nil
}

// NotifyValueInt records an integer instruction result, both in fn's
// runtime value store and as a trace event.
func (l *ThreadListener) NotifyValueInt(fn *TracedFunction, instructionIndex uint32, value uint64, width uint8) error {
	l.advanceTime()
	if fn.Values() != nil {
		if err := fn.Values().RecordInt(instructionIndex, value); err != nil {
			return err
		}
	}

	var rec traceformat.Record
	switch {
	case width <= 8:
		rec = &traceformat.InstructionWithUInt8Record{Header: traceformat.Header{Type: traceformat.EventInstructionWithUInt8}, Index: instructionIndex, Value: uint8(value)}
	case width <= 16:
		rec = &traceformat.InstructionWithUInt16Record{Header: traceformat.Header{Type: traceformat.EventInstructionWithUInt16}, Index: instructionIndex, Value: uint16(value)}
	case width <= 32:
		rec = &traceformat.InstructionWithUInt32Record{Header: traceformat.Header{Type: traceformat.EventInstructionWithUInt32}, Index: instructionIndex, Value: uint32(value)}
	default:
		rec = &traceformat.InstructionWithUInt64Record{Header: traceformat.Header{Type: traceformat.EventInstructionWithUInt64}, Index: instructionIndex, Value: value}
	}
	_, err := l.events.WriteEvent(rec)
	return err
}

// NotifyValuePointer records a pointer instruction result: the raw address
// goes to the trace event, and the provenance tag goes to fn's per-SSA-value
// pointer map.
func (l *ThreadListener) NotifyValuePointer(fn *TracedFunction, instructionIndex uint32, addr uint64, tag pointerobj.Target) error {
	l.advanceTime()
	if fn.Values() != nil {
		if err := fn.Values().RecordPointer(instructionIndex, addr); err != nil {
			return err
		}
	}
	fn.Pointers().Set(instructionIndex, tag)

	_, err := l.events.WriteEvent(&traceformat.InstructionWithPtrRecord{
		Header: traceformat.Header{Type: traceformat.EventInstructionWithPtr},
		Index:  instructionIndex,
		Value:  addr,
	})
	return err
}

// NotifyValueFloat records a 32-bit floating-point instruction result.
func (l *ThreadListener) NotifyValueFloat(fn *TracedFunction, instructionIndex uint32, value float32) error {
	l.advanceTime()
	if fn.Values() != nil {
		if err := fn.Values().RecordFloat(instructionIndex, value); err != nil {
			return err
		}
	}
	_, err := l.events.WriteEvent(&traceformat.InstructionWithFloatRecord{
		Header: traceformat.Header{Type: traceformat.EventInstructionWithFloat},
		Index:  instructionIndex,
		Value:  value,
	})
	return err
}

// NotifyValueDouble records a 64-bit floating-point instruction result.
func (l *ThreadListener) NotifyValueDouble(fn *TracedFunction, instructionIndex uint32, value float64) error {
	l.advanceTime()
	if fn.Values() != nil {
		if err := fn.Values().RecordDouble(instructionIndex, value); err != nil {
			return err
		}
	}
	_, err := l.events.WriteEvent(&traceformat.InstructionWithDoubleRecord{
		Header: traceformat.Header{Type: traceformat.EventInstructionWithDouble},
		Index:  instructionIndex,
		Value:  value,
	})
	return err
}

// NotifyValueLongDouble records an extended-precision instruction result as
// its raw bit pattern.
func (l *ThreadListener) NotifyValueLongDouble(fn *TracedFunction, instructionIndex uint32, value valuestore.LongDouble) error {
	l.advanceTime()
	if fn.Values() != nil {
		if err := fn.Values().RecordLongDouble(instructionIndex, value); err != nil {
			return err
		}
	}
	lo := uint64(0)
	hi := uint64(0)
	for i := 0; i < 8; i++ {
		lo |= uint64(value[i]) << (8 * i)
		hi |= uint64(value[i+8]) << (8 * i)
	}
	_, err := l.events.WriteEvent(&traceformat.InstructionWithLongDoubleRecord{
		Header: traceformat.Header{Type: traceformat.EventInstructionWithLongDouble},
		Index:  instructionIndex,
		BitsLo: lo,
		BitsHi: hi,
	})
	return err
}

// NotifyPreInstruction records that execution is about to reach
// instructionIndex, and sets it as fn's active instruction.
func (l *ThreadListener) NotifyPreInstruction(fn *TracedFunction, instructionIndex uint32) error {
	l.Coordinator.Check()
	fn.SetActiveInstruction(instructionIndex)
	_, err := l.events.WriteEvent(&traceformat.PreInstructionRecord{
		Header: traceformat.Header{Type: traceformat.EventPreInstruction},
		Index:  instructionIndex,
	})
	return err
}
