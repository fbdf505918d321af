package checker_test

import (
	"testing"

	"github.com/seec-team/seectrace/internal/checker"
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/rterror"
	"github.com/seec-team/seectrace/internal/shadowmem"
)

// memoryBytes is a MemoryReader backed by a plain map, standing in for the
// traced program's actual address space.
type memoryBytes map[uint64]byte

func (m memoryBytes) ReadByte(addr uint64) (byte, bool) {
	b, ok := m[addr]
	return b, ok
}

func TestCheckMemoryAccessUninitializedRead(t *testing.T) {
	mem := shadowmem.NewState()
	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 8))

	c := checker.New(mem, 0)
	if err := c.CheckMemoryAccess(0x1000, 4, checker.AccessRead); err == nil {
		t.Fatal("expected memory-uninitialized error on an unwritten read")
	}

	mem.SetInitialized(0x1000, 4)
	if err := c.CheckMemoryAccess(0x1000, 4, checker.AccessRead); err != nil {
		t.Fatalf("expected no error after initializing the range: %v", err)
	}
}

func TestCheckMemoryAccessOutsideAllocation(t *testing.T) {
	mem := shadowmem.NewState()
	c := checker.New(mem, 0)
	if err := c.CheckMemoryAccess(0xdead, 4, checker.AccessRead); err == nil {
		t.Fatal("expected memory-unowned error for an address with no allocation")
	}
}

func TestGetCStringInArea(t *testing.T) {
	mem := shadowmem.NewState()
	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 16))
	mem.SetInitialized(0x1000, 6) // "hi\0" + 3 extra initialized bytes (ignored)

	bytes := memoryBytes{0x1000: 'h', 0x1001: 'i', 0x1002: 0}
	c := checker.New(mem, 0)
	area, err := c.MemoryExists(0x1000)
	if err != nil {
		t.Fatalf("MemoryExists: %v", err)
	}

	n, rerr := c.GetCStringInArea(bytes, area, 0x1000)
	if rerr != nil {
		t.Fatalf("GetCStringInArea: %v", rerr)
	}
	if n != 3 {
		t.Errorf("length = %d, want 3 (\"hi\" + terminator)", n)
	}
}

func TestGetCStringInAreaMissingTerminator(t *testing.T) {
	mem := shadowmem.NewState()
	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 4))
	mem.SetInitialized(0x1000, 4)

	bytes := memoryBytes{0x1000: 'a', 0x1001: 'b', 0x1002: 'c', 0x1003: 'd'}
	c := checker.New(mem, 0)
	area, _ := c.MemoryExists(0x1000)

	if _, rerr := c.GetCStringInArea(bytes, area, 0x1000); rerr == nil {
		t.Fatal("expected null-terminator-missing error")
	}
}

func TestCStdLibCheckerTagsFunctionAndParameter(t *testing.T) {
	mem := shadowmem.NewState()
	base := checker.New(mem, 5)
	c := checker.NewCStdLibChecker(base, "strlen")

	_, rerr := c.CheckCStringRead(memoryBytes{}, 0xdead, 0)
	if rerr == nil {
		t.Fatal("expected an error for an unowned address")
	}
	var sawName, sawParam bool
	for _, a := range rerr.Args {
		if a == rterror.String("strlen") {
			sawName = true
		}
		if a == rterror.ParameterIndex(0) {
			sawParam = true
		}
	}
	if !sawName || !sawParam {
		t.Errorf("Args = %v, want the function name and parameter index 0", rerr.Args)
	}
}

func TestCheckPrintFormatMismatch(t *testing.T) {
	mem := shadowmem.NewState()
	c := checker.NewCStdLibChecker(checker.New(mem, 0), "printf")

	if err := c.CheckPrintFormat("%d", []checker.FormatArgKind{checker.FormatArgInt}, 0); err != nil {
		t.Errorf("matching format should not error: %v", err)
	}
	if err := c.CheckPrintFormat("%d", []checker.FormatArgKind{checker.FormatArgString}, 0); err == nil {
		t.Error("expected format-argument-type-mismatch")
	}
	if err := c.CheckPrintFormat("%d %d", []checker.FormatArgKind{checker.FormatArgInt}, 0); err == nil {
		t.Error("expected error for too few varargs")
	}
}

func TestCheckPrintFormatUnchecked(t *testing.T) {
	mem := shadowmem.NewState()
	c := checker.NewCStdLibChecker(checker.New(mem, 0), "printf")

	err := c.CheckPrintFormat("%n", nil, 0)
	if err == nil {
		t.Fatal("expected a recorded-but-unchecked warning for %n")
	}
	if err.IsFatal() {
		t.Error("unchecked specifiers should be warnings, not fatal")
	}
}

func TestStreamTableLifecycle(t *testing.T) {
	streams := checker.NewStreamTable()
	mem := shadowmem.NewState()
	c := checker.NewCIOChecker(checker.NewCStdLibChecker(checker.New(mem, 0), "fread"), streams)

	if err := c.CheckStream(0x1000, 0); err == nil {
		t.Fatal("expected stream-invalid before registration")
	}
	streams.Register(0x1000)
	if err := c.CheckStream(0x1000, 0); err != nil {
		t.Fatalf("expected no error once registered: %v", err)
	}
	streams.Unregister(0x1000)
	if err := c.CheckStream(0x1000, 0); err == nil {
		t.Fatal("expected stream-invalid after close")
	}
}
