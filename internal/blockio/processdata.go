package blockio

import (
	"fmt"

	"github.com/seec-team/seectrace/internal/traceformat"
)

// oversizeThreshold is the largest record ProcessDataStream will pack into
// its shared pooled block; anything bigger gets an exactly-sized block of
// its own, so one large allocation record never forces every small one to
// wait behind it for a new pooled block.
const oversizeThreshold = DefaultBlockSize / 4

// ProcessDataStream writes small records to a shared pooled ProcessData
// block and routes oversize records each to an exactly-sized block of their
// own. It backs process-wide, append-mostly data such as the known-region
// table and module bitcode index entries.
type ProcessDataStream struct {
	alloc  *Allocator
	pooled *OutputBlockStream
}

// NewProcessDataStream returns a stream backed by alloc.
func NewProcessDataStream(alloc *Allocator) *ProcessDataStream {
	return &ProcessDataStream{
		alloc:  alloc,
		pooled: NewOutputBlockStream(alloc, traceformat.BlockProcessData, DefaultBlockSize),
	}
}

// Append writes buf, returning the WriteRecord of wherever it landed.
func (s *ProcessDataStream) Append(buf []byte) (WriteRecord, error) {
	if len(buf) > oversizeThreshold {
		return s.appendOversize(buf)
	}
	return s.pooled.Append(buf)
}

func (s *ProcessDataStream) appendOversize(buf []byte) (WriteRecord, error) {
	size := int64(traceformat.BlockHeaderSize) + int64(len(buf))
	block := s.alloc.Reserve(size)

	if err := block.WriteHeader(traceformat.BlockProcessData, traceformat.NoOffset); err != nil {
		return WriteRecord{}, fmt.Errorf("blockio: process data oversize: %w", err)
	}
	rec, err := block.RewritableWrite(buf)
	if err != nil {
		return WriteRecord{}, fmt.Errorf("blockio: process data oversize: %w", err)
	}
	return rec, nil
}

// Close finalizes the pooled block's chain.
func (s *ProcessDataStream) Close() error {
	return s.pooled.Close()
}
