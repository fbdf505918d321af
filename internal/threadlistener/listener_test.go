package threadlistener_test

import (
	"path/filepath"
	"testing"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/detectcalls"
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/pointerobj"
	"github.com/seec-team/seectrace/internal/shadowmem"
	"github.com/seec-team/seectrace/internal/syncexit"
	"github.com/seec-team/seectrace/internal/threadlistener"
)

func newTestListener(t *testing.T) (*threadlistener.ThreadListener, *shadowmem.State) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.seec")
	alloc, err := blockio.NewAllocator(path)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	t.Cleanup(func() { alloc.Close() })

	stream := blockio.NewThreadEventStream(alloc, 1, 4096)
	mem := shadowmem.NewState()
	pointers := pointerobj.NewInMemoryMap()
	calls := detectcalls.NewLookup(nil, func(string) (uint64, bool) { return 0, false })
	coord := syncexit.New()

	l := threadlistener.New(1, stream, mem, pointers, calls, coord, nil)
	t.Cleanup(func() { l.Close() })
	return l, mem
}

func TestNotifyFunctionBeginAndEnd(t *testing.T) {
	l, _ := newTestListener(t)

	fn, err := l.NotifyFunctionBegin(3)
	if err != nil {
		t.Fatalf("NotifyFunctionBegin: %v", err)
	}
	if fn.FunctionIndex != 3 {
		t.Errorf("FunctionIndex = %d, want 3", fn.FunctionIndex)
	}

	if rerr := l.NotifyFunctionEnd(fn, 0, nil); rerr != nil {
		t.Fatalf("NotifyFunctionEnd: %v", rerr)
	}
	if !fn.Finished() {
		t.Error("frame should be finished after NotifyFunctionEnd")
	}
	if _, ok := l.CurrentFunction(); ok {
		t.Error("call stack should be empty after the only frame returns")
	}
}

func TestNotifyFunctionEndFlagsReturnOfLocal(t *testing.T) {
	l, mem := newTestListener(t)

	fn, _ := l.NotifyFunctionBegin(0)
	if err := l.NotifyAlloca(fn, 0, 0x2000, 8, 1); err != nil {
		t.Fatalf("NotifyAlloca: %v", err)
	}

	local := pointerobj.Target{Base: 0x2000, TemporalID: 1}
	rerr := l.NotifyFunctionEnd(fn, 1, &local)
	if rerr == nil {
		t.Fatal("expected a return-of-local runtime error")
	}
	if !rerr.IsFatal() {
		t.Error("return-of-local should default to fatal")
	}

	if _, ok := mem.FindAllocationContaining(0x2000); ok {
		t.Error("alloca should be released once its frame returns")
	}
}

func TestNotifyPreAllocaRejectsStackOverflow(t *testing.T) {
	l, _ := newTestListener(t)
	l.StackLimit = 16

	fn, _ := l.NotifyFunctionBegin(0)
	if rerr := l.NotifyPreAlloca(fn, 0, 8, 1); rerr != nil {
		t.Fatalf("first alloca should fit within the limit: %v", rerr)
	}
	if err := l.NotifyAlloca(fn, 0, 0x3000, 8, 1); err != nil {
		t.Fatalf("NotifyAlloca: %v", err)
	}
	if rerr := l.NotifyPreAlloca(fn, 1, 32, 1); rerr == nil {
		t.Fatal("expected a stack-overflow error once the limit is exceeded")
	}
}

func TestMemcpyUpdatesShadowStateAndPointerTags(t *testing.T) {
	l, mem := newTestListener(t)

	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 16))
	mem.AddAllocation(dsa.NewMemoryArea(0x2000, 16))
	mem.SetInitialized(0x1000, 8)
	l.Pointers.Store(0x1000, pointerobj.Mint(0x5000, 1), 8)

	if rerr := l.NotifyPreCallIntrinsicMemcpy(0, 0x2000, 0x1000, 8); rerr != nil {
		t.Fatalf("NotifyPreCallIntrinsicMemcpy: %v", rerr)
	}

	if !mem.HasKnownState(0x2000, 8) {
		t.Error("destination should have known (initialized) shadow state after the copy")
	}
	if tag := l.Pointers.Load(0x2000); tag.IsNull() {
		t.Error("pointer tag should have been copied to the destination")
	}
}

func TestMemcpyOverlapIsWarningNotFatal(t *testing.T) {
	l, mem := newTestListener(t)
	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 16))
	mem.SetInitialized(0x1000, 16)

	rerr := l.NotifyPreCallIntrinsicMemcpy(0, 0x1004, 0x1000, 8)
	if rerr == nil {
		t.Fatal("expected an overlapping-source-destination warning")
	}
	if rerr.IsFatal() {
		t.Error("overlapping memcpy should be a warning, since the copy is still deterministic")
	}
}

func TestPreDivideCatchesDivisionByZero(t *testing.T) {
	l, _ := newTestListener(t)
	if rerr := l.NotifyPreDivide(0, 0); rerr == nil {
		t.Fatal("expected a division-by-zero error")
	}
	if rerr := l.NotifyPreDivide(0, 1); rerr != nil {
		t.Fatalf("non-zero divisor should not error: %v", rerr)
	}
}

func TestStackSaveRestoreInvalidatesLaterAllocas(t *testing.T) {
	l, mem := newTestListener(t)
	fn, _ := l.NotifyFunctionBegin(0)

	if err := l.NotifyAlloca(fn, 0, 0x4000, 8, 1); err != nil {
		t.Fatalf("NotifyAlloca: %v", err)
	}
	l.NotifyPreCallIntrinsicStacksave(fn, 99)

	if err := l.NotifyAlloca(fn, 1, 0x4010, 8, 1); err != nil {
		t.Fatalf("NotifyAlloca: %v", err)
	}

	l.NotifyPreCallIntrinsicStackrestore(fn, 99)

	if _, ok := mem.FindAllocationContaining(0x4010); ok {
		t.Error("alloca made after the stacksave should be released by stackrestore")
	}
	if _, ok := mem.FindAllocationContaining(0x4000); !ok {
		t.Error("alloca made before the stacksave should survive stackrestore")
	}
}

func TestPreLoadRejectsUninitializedRead(t *testing.T) {
	l, mem := newTestListener(t)
	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 8))

	tag := pointerobj.Mint(0x1000, 1)
	if rerr := l.NotifyPreLoad(0, tag, 4); rerr == nil {
		t.Fatal("expected memory-uninitialized error on an unwritten load")
	}

	mem.SetInitialized(0x1000, 4)
	if rerr := l.NotifyPreLoad(0, tag, 4); rerr != nil {
		t.Fatalf("expected no error once initialized: %v", rerr)
	}
}

func TestNotifyValueIntRoundTripsThroughValueStore(t *testing.T) {
	l, _ := newTestListener(t)
	fn, _ := l.NotifyFunctionBegin(0)

	if err := l.NotifyValueInt(fn, 0, 42, 32); err != nil {
		t.Fatalf("NotifyValueInt: %v", err)
	}
}
