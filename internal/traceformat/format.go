// Package traceformat declares the on-disk shapes shared by every writer and
// reader of a SeeC trace: the file magic, the block header, the event type
// enumeration and its trait sets, and the fixed-size event records
// themselves (§3, §6 of the tracing-core specification).
//
// Every event record is a plain, trivially-encodable struct: a 1-byte type
// tag, a 1-byte previous-event-size, and type-specific payload fields,
// encoded packed with no padding between or after the fields. There is no
// inheritance or virtual dispatch here by design — traits are looked up in a
// table indexed by EventType, the Go analogue of the original's template
// specialization table, so that event interpretation stays a flat lookup
// rather than a vtable call on the hot path.
package traceformat

// Magic is the first 8 bytes of every trace file.
var Magic = [8]byte{'S', 'E', 'E', 'C', 'S', 'E', 'E', 'C'}

// MaxAlignment is the largest alignment of any event record field type.
// Encoded records are packed and are not padded to it.
const MaxAlignment = 8

// FormatVersion is embedded in the ProcessTrace block payload.
const FormatVersion uint64 = 2

// NoOffset represents an invalid or nonexistent file offset.
const NoOffset uint64 = ^uint64(0)

// InitialDataThreadID is the thread ID used for events describing the
// process's initial state, before any user thread exists.
const InitialDataThreadID uint32 = 0

// BlockType identifies the kind of an output block in the trace file.
type BlockType uint8

// Block type tags, per §6.
const (
	BlockEmpty BlockType = iota
	BlockModuleBitcode
	BlockProcessTrace
	BlockProcessData
	BlockThreadEvents
	BlockSignalInfo
)

func (t BlockType) String() string {
	switch t {
	case BlockEmpty:
		return "Empty"
	case BlockModuleBitcode:
		return "ModuleBitcode"
	case BlockProcessTrace:
		return "ProcessTrace"
	case BlockProcessData:
		return "ProcessData"
	case BlockThreadEvents:
		return "ThreadEvents"
	case BlockSignalInfo:
		return "SignalInfo"
	default:
		return "Unknown"
	}
}

// BlockHeaderSize is the fixed size, in bytes, of a block header: a 1-byte
// type tag followed by an 8-byte little-endian offset to the next block.
const BlockHeaderSize = 1 + 8
