package valuestore

import (
	"encoding/binary"
	"fmt"
	"math"
)

// LongDouble is the raw, platform-native bit pattern of an extended or
// quad-precision floating-point value (80-bit x86 extended padded to 16
// bytes, or IEEE binary128), stored verbatim rather than converted to a Go
// numeric type so that its exact bit pattern survives the round trip. The
// tracer core only needs to carry this value; interpreting or formatting it
// is the offline viewer's job (out of scope, §1).
type LongDouble [16]byte

// BasicBlockStore is one activation's runtime value store: a byte blob for
// scalar slots, a long-double side array, and a parallel "has value" bitset
// recording which instructions in this activation have produced a value so
// far.
type BasicBlockStore struct {
	layout      *BasicBlockLayout
	blob        []byte
	longDoubles []LongDouble
	written     []bool
}

// NewActivation returns a fresh, empty store for one activation of a block
// described by layout.
func NewActivation(layout *BasicBlockLayout) *BasicBlockStore {
	return &BasicBlockStore{
		layout:      layout,
		blob:        make([]byte, layout.blobSize),
		longDoubles: make([]LongDouble, layout.longDoubleCount),
		written:     make([]bool, layout.InstructionCount()),
	}
}

func (s *BasicBlockStore) slotFor(index uint32, want SlotKind) (Slot, error) {
	slot, err := s.layout.SlotAt(index)
	if err != nil {
		return Slot{}, err
	}
	if slot.Kind != want {
		return Slot{}, fmt.Errorf("valuestore: instruction %d has slot kind %v, not %v", index, slot.Kind, want)
	}
	return slot, nil
}

// RecordInt stores an up-to-64-bit integer (already zero/sign-extended to
// uint64 by the caller) for the instruction at index.
func (s *BasicBlockStore) RecordInt(index uint32, value uint64) error {
	slot, err := s.slotFor(index, SlotBlob)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	copy(s.blob[slot.Offset:slot.Offset+uint32(slot.Width)], buf[:slot.Width])
	s.written[index] = true
	return nil
}

// RecordPointer stores a pointer's raw runtime address for the instruction
// at index. Provenance is tracked separately by the pointer-object package.
func (s *BasicBlockStore) RecordPointer(index uint32, addr uint64) error {
	return s.RecordInt(index, addr)
}

// RecordFloat stores a 32-bit float for the instruction at index.
func (s *BasicBlockStore) RecordFloat(index uint32, value float32) error {
	return s.RecordInt(index, uint64(math.Float32bits(value)))
}

// RecordDouble stores a 64-bit double for the instruction at index.
func (s *BasicBlockStore) RecordDouble(index uint32, value float64) error {
	return s.RecordInt(index, math.Float64bits(value))
}

// RecordLongDouble stores an extended-precision value for the instruction
// at index.
func (s *BasicBlockStore) RecordLongDouble(index uint32, value LongDouble) error {
	slot, err := s.slotFor(index, SlotLongDouble)
	if err != nil {
		return err
	}
	s.longDoubles[slot.Offset] = value
	s.written[index] = true
	return nil
}

// ReadInt returns the integer recorded for index, zero-extended to 64 bits,
// and whether a value has been recorded.
func (s *BasicBlockStore) ReadInt(index uint32) (uint64, bool, error) {
	slot, err := s.slotFor(index, SlotBlob)
	if err != nil {
		return 0, false, err
	}
	if !s.written[index] {
		return 0, false, nil
	}
	var buf [8]byte
	copy(buf[:slot.Width], s.blob[slot.Offset:slot.Offset+uint32(slot.Width)])
	return binary.LittleEndian.Uint64(buf[:]), true, nil
}

// ReadFloat returns the float recorded for index.
func (s *BasicBlockStore) ReadFloat(index uint32) (float32, bool, error) {
	bits, ok, err := s.ReadInt(index)
	if err != nil || !ok {
		return 0, ok, err
	}
	return math.Float32frombits(uint32(bits)), true, nil
}

// ReadDouble returns the double recorded for index.
func (s *BasicBlockStore) ReadDouble(index uint32) (float64, bool, error) {
	bits, ok, err := s.ReadInt(index)
	if err != nil || !ok {
		return 0, ok, err
	}
	return math.Float64frombits(bits), true, nil
}

// ReadLongDouble returns the extended-precision value recorded for index.
func (s *BasicBlockStore) ReadLongDouble(index uint32) (LongDouble, bool, error) {
	slot, err := s.slotFor(index, SlotLongDouble)
	if err != nil {
		return LongDouble{}, false, err
	}
	if !s.written[index] {
		return LongDouble{}, false, nil
	}
	return s.longDoubles[slot.Offset], true, nil
}

// HasValue reports whether the instruction at index has recorded a value in
// this activation.
func (s *BasicBlockStore) HasValue(index uint32) bool {
	if index >= uint32(len(s.written)) {
		return false
	}
	return s.written[index]
}
