package valuestore_test

import (
	"testing"

	"github.com/seec-team/seectrace/internal/valuestore"
)

func buildLayout(t *testing.T) *valuestore.BasicBlockLayout {
	t.Helper()
	l := valuestore.NewBasicBlockLayout(4)
	if err := l.AddBlobSlot(0, 8); err != nil {
		t.Fatalf("AddBlobSlot(0): %v", err)
	}
	if err := l.AddBlobSlot(1, 4); err != nil {
		t.Fatalf("AddBlobSlot(1): %v", err)
	}
	if err := l.AddLongDoubleSlot(2); err != nil {
		t.Fatalf("AddLongDoubleSlot(2): %v", err)
	}
	// index 3 left as SlotNone.
	return l
}

func TestBasicBlockStoreRecordAndReadInt(t *testing.T) {
	layout := buildLayout(t)
	store := valuestore.NewActivation(layout)

	if err := store.RecordInt(0, 0xdeadbeefcafef00d); err != nil {
		t.Fatalf("RecordInt: %v", err)
	}
	got, ok, err := store.ReadInt(0)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if !ok || got != 0xdeadbeefcafef00d {
		t.Errorf("ReadInt = (%#x, %v), want (0xdeadbeefcafef00d, true)", got, ok)
	}
}

func TestBasicBlockStoreTruncatesToSlotWidth(t *testing.T) {
	layout := buildLayout(t)
	store := valuestore.NewActivation(layout)

	if err := store.RecordInt(1, 0x1_0000_0001); err != nil {
		t.Fatalf("RecordInt: %v", err)
	}
	got, _, err := store.ReadInt(1)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if got != 1 {
		t.Errorf("ReadInt = %#x, want 1 (high bits truncated by the 4-byte slot)", got)
	}
}

func TestBasicBlockStoreUnwrittenIsNotOK(t *testing.T) {
	layout := buildLayout(t)
	store := valuestore.NewActivation(layout)

	_, ok, err := store.ReadInt(0)
	if err != nil {
		t.Fatalf("ReadInt: %v", err)
	}
	if ok {
		t.Error("expected ok=false for a slot that was never recorded")
	}
	if store.HasValue(0) {
		t.Error("HasValue should be false before any record")
	}
}

func TestBasicBlockStoreFloatRoundTrip(t *testing.T) {
	layout := valuestore.NewBasicBlockLayout(2)
	layout.AddBlobSlot(0, 4)
	layout.AddBlobSlot(1, 8)
	store := valuestore.NewActivation(layout)

	store.RecordFloat(0, 3.5)
	store.RecordDouble(1, 2.718281828)

	f, _, _ := store.ReadFloat(0)
	d, _, _ := store.ReadDouble(1)
	if f != 3.5 {
		t.Errorf("ReadFloat = %v, want 3.5", f)
	}
	if d != 2.718281828 {
		t.Errorf("ReadDouble = %v, want 2.718281828", d)
	}
}

func TestBasicBlockStoreLongDoubleRoundTrip(t *testing.T) {
	layout := buildLayout(t)
	store := valuestore.NewActivation(layout)

	var ld valuestore.LongDouble
	for i := range ld {
		ld[i] = byte(i + 1)
	}
	if err := store.RecordLongDouble(2, ld); err != nil {
		t.Fatalf("RecordLongDouble: %v", err)
	}
	got, ok, err := store.ReadLongDouble(2)
	if err != nil {
		t.Fatalf("ReadLongDouble: %v", err)
	}
	if !ok || got != ld {
		t.Errorf("ReadLongDouble = (%v, %v), want (%v, true)", got, ok, ld)
	}
}

func TestSlotKindMismatchIsAnError(t *testing.T) {
	layout := buildLayout(t)
	store := valuestore.NewActivation(layout)

	if err := store.RecordInt(2, 1); err == nil {
		t.Fatal("expected error recording an int into a long-double slot")
	}
	if err := store.RecordInt(3, 1); err == nil {
		t.Fatal("expected error recording into a SlotNone instruction")
	}
}

func TestAddSlotRejectsDuplicateAssignment(t *testing.T) {
	l := valuestore.NewBasicBlockLayout(1)
	if err := l.AddBlobSlot(0, 8); err != nil {
		t.Fatalf("first AddBlobSlot: %v", err)
	}
	if err := l.AddBlobSlot(0, 8); err == nil {
		t.Fatal("expected error re-assigning an already-assigned instruction index")
	}
}
