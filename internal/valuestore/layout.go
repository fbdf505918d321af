// Package valuestore implements the per-basic-block runtime value store
// (§4.5): a compact, once-computed-per-block layout describing where each
// instruction's recordable result lives, and a per-activation store that
// fills in that layout as the block executes.
//
// A block's layout is computed once (by whatever walks the block's
// instructions at module-load time — out of scope here, §1) and shared by
// every activation of that block; only the blob, the long-double side
// array, and the "has value" bits are per-activation.
package valuestore

import "fmt"

// SlotKind identifies where an instruction's recorded value lives.
type SlotKind uint8

const (
	// SlotNone means the instruction at this index produces no recordable
	// scalar value (e.g. a store, a branch).
	SlotNone SlotKind = iota
	// SlotBlob means the value lives at a byte offset in the per-activation
	// blob: used for integers up to 64 bits (zero/sign-extended), pointers
	// (stored as the raw address), float, and double.
	SlotBlob
	// SlotLongDouble means the value lives at an index into the
	// per-activation long-double side array.
	SlotLongDouble
)

func (k SlotKind) String() string {
	switch k {
	case SlotNone:
		return "none"
	case SlotBlob:
		return "blob"
	case SlotLongDouble:
		return "long-double"
	default:
		return "unknown"
	}
}

// Slot describes one instruction's recordable-value location.
type Slot struct {
	Kind SlotKind
	// Offset is the blob byte offset (SlotBlob) or side-array index
	// (SlotLongDouble).
	Offset uint32
	// Width is the blob slot's size in bytes (1, 2, 4, or 8); unused for
	// SlotLongDouble.
	Width uint8
}

// BasicBlockLayout is the block-level, activation-independent description
// of where every instruction's value will be recorded. It is built once per
// block and shared by every activation.
type BasicBlockLayout struct {
	slots           []Slot
	blobSize        uint32
	longDoubleCount uint32
}

// NewBasicBlockLayout returns a layout for a block with instructionCount
// instructions, all initially SlotNone.
func NewBasicBlockLayout(instructionCount uint32) *BasicBlockLayout {
	return &BasicBlockLayout{slots: make([]Slot, instructionCount)}
}

// InstructionCount returns the number of instruction slots in the layout.
func (l *BasicBlockLayout) InstructionCount() uint32 {
	return uint32(len(l.slots))
}

func (l *BasicBlockLayout) checkIndex(index uint32) error {
	if index >= uint32(len(l.slots)) {
		return fmt.Errorf("valuestore: instruction index %d out of range [0, %d)", index, len(l.slots))
	}
	if l.slots[index].Kind != SlotNone {
		return fmt.Errorf("valuestore: instruction index %d already has a slot assigned", index)
	}
	return nil
}

// AddBlobSlot reserves width bytes of blob space for the instruction at
// index. width must be 1, 2, 4, or 8.
func (l *BasicBlockLayout) AddBlobSlot(index uint32, width uint8) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	switch width {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("valuestore: invalid blob slot width %d", width)
	}
	l.slots[index] = Slot{Kind: SlotBlob, Offset: l.blobSize, Width: width}
	l.blobSize += uint32(width)
	return nil
}

// AddLongDoubleSlot reserves a side-array entry for the instruction at
// index.
func (l *BasicBlockLayout) AddLongDoubleSlot(index uint32) error {
	if err := l.checkIndex(index); err != nil {
		return err
	}
	l.slots[index] = Slot{Kind: SlotLongDouble, Offset: l.longDoubleCount}
	l.longDoubleCount++
	return nil
}

// SlotAt returns the slot assigned to the instruction at index.
func (l *BasicBlockLayout) SlotAt(index uint32) (Slot, error) {
	if index >= uint32(len(l.slots)) {
		return Slot{}, fmt.Errorf("valuestore: instruction index %d out of range [0, %d)", index, len(l.slots))
	}
	return l.slots[index], nil
}
