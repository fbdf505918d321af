package traceformat

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header is embedded at the front of every event record. PreviousEventSize
// lets a reader walk an event stream backwards without a separate index: it
// is the encoded size, in bytes, of the event immediately preceding this one
// in the same thread's stream, or 0 for the first event (R1).
type Header struct {
	Type              EventType
	PreviousEventSize uint8
}

// Record is implemented by every concrete event record type. EventType
// returns the record's own type tag, used when appending to a stream so the
// writer need not be told the type out of band.
type Record interface {
	EventType() EventType
}

func (h Header) EventType() EventType { return h.Type }

// SetPreviousEventSize sets the encoded size of the event immediately
// preceding this one in the same thread's stream. It is called by the
// event writer, not by instrumentation call sites.
func (h *Header) SetPreviousEventSize(size uint8) {
	h.PreviousEventSize = size
}

// FunctionStartRecord marks entry into a traced function.
type FunctionStartRecord struct {
	Header
	FunctionIndex uint32
	// EventOffset is the file offset at which the matching
	// FunctionEndRecord was written; 0 if not yet known.
	EventOffset uint64
}

// FunctionEndRecord marks a traced function returning or unwinding.
type FunctionEndRecord struct {
	Header
	FunctionIndex uint32
}

// PreInstructionRecord marks that execution is about to reach the
// instruction at Index, before any of its side effects are recorded.
type PreInstructionRecord struct {
	Header
	Index uint32
}

// InstructionRecord marks that the instruction at Index has completed with
// no recorded result value.
type InstructionRecord struct {
	Header
	Index uint32
}

// InstructionWithUInt8Record records an instruction result representable in
// 8 bits (e.g. an i1 or i8 value).
type InstructionWithUInt8Record struct {
	Header
	Index uint32
	Value uint8
}

// InstructionWithUInt16Record records a 16-bit integer instruction result.
type InstructionWithUInt16Record struct {
	Header
	Index uint32
	Value uint16
}

// InstructionWithUInt32Record records a 32-bit integer instruction result.
type InstructionWithUInt32Record struct {
	Header
	Index uint32
	Value uint32
}

// InstructionWithUInt64Record records a 64-bit integer instruction result.
type InstructionWithUInt64Record struct {
	Header
	Index uint32
	Value uint64
}

// InstructionWithPtrRecord records a pointer-typed instruction result. The
// pointer's provenance (base object and temporal ID) is recorded separately
// by the pointer-object tracker; this is the raw runtime address only.
type InstructionWithPtrRecord struct {
	Header
	Index uint32
	Value uint64
}

// InstructionWithFloatRecord records a 32-bit floating-point result.
type InstructionWithFloatRecord struct {
	Header
	Index uint32
	Value float32
}

// InstructionWithDoubleRecord records a 64-bit floating-point result.
type InstructionWithDoubleRecord struct {
	Header
	Index uint32
	Value float64
}

// InstructionWithLongDoubleRecord records an extended-precision result
// (x86 80-bit or IEEE binary128), stored as its raw little-endian bit
// pattern since Go has no native long double type. The bit pattern is
// carried as-is; no check of the host float format is made.
type InstructionWithLongDoubleRecord struct {
	Header
	Index  uint32
	BitsLo uint64
	BitsHi uint64
}

// AllocaRecord records a stack allocation becoming live.
type AllocaRecord struct {
	Header
	Address uint64
	Size    uint64
}

// MallocRecord records a heap allocation becoming live.
type MallocRecord struct {
	Header
	Address uint64
	Size    uint64
}

// FreeRecord records a heap allocation being released.
type FreeRecord struct {
	Header
	Address uint64
}

// StateUntypedRecord records length bytes at Address taking on new,
// untyped (non-zero-fill, out-of-line) shadow state.
type StateUntypedRecord struct {
	Header
	Address uint64
	Length  uint64
}

// StateUntypedSmallRecord is StateUntypedRecord's inline-payload variant:
// Length (<= 7) bytes of new state are carried directly in Data rather than
// requiring a separate out-of-line read, for the common small-write case.
type StateUntypedSmallRecord struct {
	Header
	Address uint64
	Length  uint8
	Data    [7]byte
}

// StateMemmoveRecord records a block of shadow state moving from Source to
// Destination (as by memmove/memcpy).
type StateMemmoveRecord struct {
	Header
	Source      uint64
	Destination uint64
	Length      uint64
}

// StateClearRecord records Length bytes at Address becoming uninitialized.
type StateClearRecord struct {
	Header
	Address uint64
	Length  uint64
}

// StateOverwriteRecord records Length bytes at Address being overwritten by
// a new, wholly-initialized value.
type StateOverwriteRecord struct {
	Header
	Address uint64
	Length  uint64
}

// StateOverwriteFragmentRecord is a subservient record following a
// StateOverwriteRecord, describing one non-contiguous fragment of the
// overwrite's prior shadow state for undo purposes.
type StateOverwriteFragmentRecord struct {
	Header
	Offset uint64
	Length uint64
}

// StateCopiedRecord records shadow state (not just raw bytes) being
// duplicated from Source to Destination, preserving provenance.
type StateCopiedRecord struct {
	Header
	Source      uint64
	Destination uint64
	Length      uint64
}

// KnownRegionAddRecord records a region of memory outside the traced
// allocator (e.g. a libc-internal static buffer) becoming a "known" region
// with a fixed permission.
type KnownRegionAddRecord struct {
	Header
	Address uint64
	Length  uint64
	Access  uint8
}

// KnownRegionRemoveRecord records a known region ceasing to be tracked.
type KnownRegionRemoveRecord struct {
	Header
	Address uint64
}

// ByValRegionAddRecord records a by-value argument's backing memory
// becoming live for the duration of a call.
type ByValRegionAddRecord struct {
	Header
	Address uint64
	Length  uint64
}

// StackRestoreRecord records a llvm.stackrestore call invalidating all
// allocas made since the matching llvm.stacksave.
type StackRestoreRecord struct {
	Header
	Address uint64
}

// StackRestoreAllocaRecord is a subservient record following a
// StackRestoreRecord, naming one alloca invalidated by the restore.
type StackRestoreAllocaRecord struct {
	Header
	Address uint64
}

// NewProcessTimeRecord records the process's logical clock advancing; it is
// also a block-start event usable as a replay synchronization point.
type NewProcessTimeRecord struct {
	Header
	ProcessTime uint64
}

// RuntimeErrorRecord records a detected runtime error. Type identifies the
// runtime-error kind (see the runtime-error package's error type constants);
// InstructionIndex is the instruction the error was detected at.
type RuntimeErrorRecord struct {
	Header
	Type             uint32
	InstructionIndex uint32
}

// RuntimeErrorArgumentRecord is a subservient record following a
// RuntimeErrorRecord, carrying one encoded diagnostic argument.
type RuntimeErrorArgumentRecord struct {
	Header
	Type  uint8
	Value uint64
}

// Size returns the encoded size, in bytes, of rec.
func Size(rec Record) int {
	return binary.Size(rec)
}

// Encode writes rec's binary representation to w.
func Encode(w io.Writer, rec Record) error {
	return binary.Write(w, binary.LittleEndian, rec)
}

// Decode reads into rec (which must be a pointer to a Record struct) from r.
func Decode(r io.Reader, rec Record) error {
	return binary.Read(r, binary.LittleEndian, rec)
}

// NewZero returns a pointer to a zero-valued record of the given type,
// suitable for passing to Decode. It returns an error for an unrecognized or
// EventNone type.
func NewZero(t EventType) (Record, error) {
	switch t {
	case EventFunctionStart:
		return &FunctionStartRecord{Header: Header{Type: t}}, nil
	case EventFunctionEnd:
		return &FunctionEndRecord{Header: Header{Type: t}}, nil
	case EventPreInstruction:
		return &PreInstructionRecord{Header: Header{Type: t}}, nil
	case EventInstruction:
		return &InstructionRecord{Header: Header{Type: t}}, nil
	case EventInstructionWithUInt8:
		return &InstructionWithUInt8Record{Header: Header{Type: t}}, nil
	case EventInstructionWithUInt16:
		return &InstructionWithUInt16Record{Header: Header{Type: t}}, nil
	case EventInstructionWithUInt32:
		return &InstructionWithUInt32Record{Header: Header{Type: t}}, nil
	case EventInstructionWithUInt64:
		return &InstructionWithUInt64Record{Header: Header{Type: t}}, nil
	case EventInstructionWithPtr:
		return &InstructionWithPtrRecord{Header: Header{Type: t}}, nil
	case EventInstructionWithFloat:
		return &InstructionWithFloatRecord{Header: Header{Type: t}}, nil
	case EventInstructionWithDouble:
		return &InstructionWithDoubleRecord{Header: Header{Type: t}}, nil
	case EventInstructionWithLongDouble:
		return &InstructionWithLongDoubleRecord{Header: Header{Type: t}}, nil
	case EventAlloca:
		return &AllocaRecord{Header: Header{Type: t}}, nil
	case EventMalloc:
		return &MallocRecord{Header: Header{Type: t}}, nil
	case EventFree:
		return &FreeRecord{Header: Header{Type: t}}, nil
	case EventStateUntyped:
		return &StateUntypedRecord{Header: Header{Type: t}}, nil
	case EventStateUntypedSmall:
		return &StateUntypedSmallRecord{Header: Header{Type: t}}, nil
	case EventStateMemmove:
		return &StateMemmoveRecord{Header: Header{Type: t}}, nil
	case EventStateClear:
		return &StateClearRecord{Header: Header{Type: t}}, nil
	case EventStateOverwrite:
		return &StateOverwriteRecord{Header: Header{Type: t}}, nil
	case EventStateOverwriteFragment:
		return &StateOverwriteFragmentRecord{Header: Header{Type: t}}, nil
	case EventStateCopied:
		return &StateCopiedRecord{Header: Header{Type: t}}, nil
	case EventKnownRegionAdd:
		return &KnownRegionAddRecord{Header: Header{Type: t}}, nil
	case EventKnownRegionRemove:
		return &KnownRegionRemoveRecord{Header: Header{Type: t}}, nil
	case EventByValRegionAdd:
		return &ByValRegionAddRecord{Header: Header{Type: t}}, nil
	case EventStackRestore:
		return &StackRestoreRecord{Header: Header{Type: t}}, nil
	case EventStackRestoreAlloca:
		return &StackRestoreAllocaRecord{Header: Header{Type: t}}, nil
	case EventNewProcessTime:
		return &NewProcessTimeRecord{Header: Header{Type: t}}, nil
	case EventRuntimeError:
		return &RuntimeErrorRecord{Header: Header{Type: t}}, nil
	case EventRuntimeErrorArgument:
		return &RuntimeErrorArgumentRecord{Header: Header{Type: t}}, nil
	case EventTraceEnd:
		return &Header{Type: t}, nil
	default:
		return nil, fmt.Errorf("traceformat: unrecognized event type %d", t)
	}
}
