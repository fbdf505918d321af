package pointerobj_test

import (
	"testing"

	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/pointerobj"
	"github.com/seec-team/seectrace/internal/shadowmem"
)

func TestTargetEquality(t *testing.T) {
	a := pointerobj.Mint(0x1000, 3)
	b := pointerobj.Mint(0x1000, 3)
	c := pointerobj.Mint(0x1000, 4)

	if !a.Equal(b) {
		t.Error("identical base and temporal_id should be equal")
	}
	if a.Equal(c) {
		t.Error("differing temporal_id should not be equal")
	}
}

func TestInMemoryMapStoreAndLoad(t *testing.T) {
	m := pointerobj.NewInMemoryMap()
	tag := pointerobj.Mint(0x2000, 1)

	m.Store(0x500, tag, 8)
	if got := m.Load(0x500); !got.Equal(tag) {
		t.Errorf("Load() = %v, want %v", got, tag)
	}
	if got := m.Load(0x600); !got.IsNull() {
		t.Errorf("Load() of untouched address = %v, want null", got)
	}
}

func TestInMemoryMapStoreClearsOverlap(t *testing.T) {
	m := pointerobj.NewInMemoryMap()
	m.Store(0x500, pointerobj.Mint(0x1, 1), 8)
	m.Store(0x504, pointerobj.Mint(0x2, 1), 8)

	if got := m.Load(0x500); !got.IsNull() {
		t.Errorf("overlapping store should have cleared the earlier tag, got %v", got)
	}
}

func TestInMemoryMapCopyRangeHandlesOverlap(t *testing.T) {
	m := pointerobj.NewInMemoryMap()
	m.Store(0x100, pointerobj.Mint(0xa, 1), 8)
	m.Store(0x108, pointerobj.Mint(0xb, 1), 8)

	// Overlapping forward move: dst > src.
	m.CopyRange(0x100, 0x104, 16)

	if got := m.Load(0x104); got.Base != 0xa {
		t.Errorf("Load(0x104) = %v, want base 0xa", got)
	}
	if got := m.Load(0x10c); got.Base != 0xb {
		t.Errorf("Load(0x10c) = %v, want base 0xb", got)
	}
}

func TestFunctionMapResetDiscardsValues(t *testing.T) {
	f := pointerobj.NewFunctionMap()
	f.Set(3, pointerobj.Mint(0x1000, 1))

	if _, ok := f.Get(3); !ok {
		t.Fatal("expected value to be present before reset")
	}
	f.Reset()
	if _, ok := f.Get(3); ok {
		t.Fatal("expected value to be gone after reset")
	}
}

func TestIsStaleAfterFree(t *testing.T) {
	mem := shadowmem.NewState()
	alloc, err := mem.AddAllocation(dsa.NewMemoryArea(0x1000, 16))
	if err != nil {
		t.Fatalf("AddAllocation: %v", err)
	}
	tag := pointerobj.Mint(0x1000, alloc.TemporalID())

	if pointerobj.IsStale(mem, tag) {
		t.Fatal("tag should not be stale while its allocation is live")
	}

	mem.RemoveAllocation(0x1000)
	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 16)) // reused address, new allocation

	if !pointerobj.IsStale(mem, tag) {
		t.Fatal("tag minted against the freed allocation should be stale after reuse")
	}
}

func TestOwnedByLiveAllocation(t *testing.T) {
	mem := shadowmem.NewState()
	alloc, _ := mem.AddAllocation(dsa.NewMemoryArea(0x1000, 16))
	tag := pointerobj.Mint(0x1000, alloc.TemporalID())

	if !pointerobj.OwnedByLiveAllocation(mem, tag) {
		t.Fatal("expected tag to be owned by its live allocation")
	}
	if pointerobj.OwnedByLiveAllocation(mem, pointerobj.Null) {
		t.Fatal("null tag should never be reported as owned")
	}
}

func TestResultWithinBaseAllowsOnePastEnd(t *testing.T) {
	mem := shadowmem.NewState()
	mem.AddAllocation(dsa.NewMemoryArea(0x1000, 16))
	base := pointerobj.Mint(0x1000, 1)

	if !pointerobj.ResultWithinBase(mem, base, 0x1000+16) {
		t.Error("one-past-the-end address should be accepted")
	}
	if pointerobj.ResultWithinBase(mem, base, 0x1000+17) {
		t.Error("address past one-past-the-end should be rejected")
	}
}
