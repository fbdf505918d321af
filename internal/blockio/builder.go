package blockio

import (
	"bytes"
	"fmt"

	"github.com/seec-team/seectrace/internal/traceformat"
)

// Builder buffers an arbitrary-size payload in memory and, on Flush,
// reserves a block of exactly the right size from an Allocator and writes
// it in one shot. It is used for blocks whose full content is known before
// any of it needs to reach disk, such as ProcessTrace and ModuleBitcode.
type Builder struct {
	blockType traceformat.BlockType
	buf       bytes.Buffer
}

// NewBuilder returns an empty Builder for the given block type.
func NewBuilder(blockType traceformat.BlockType) *Builder {
	return &Builder{blockType: blockType}
}

// Write appends p to the builder's in-memory buffer.
func (b *Builder) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

// Len returns the number of bytes buffered so far.
func (b *Builder) Len() int { return b.buf.Len() }

// Flush reserves a block of exactly the buffered payload's size (plus
// header) from alloc, writes the header and payload, and returns the
// block's starting offset for use by an index elsewhere in the file (e.g.
// the ProcessTrace block recording where ProcessData begins).
func (b *Builder) Flush(alloc *Allocator) (int64, error) {
	size := int64(traceformat.BlockHeaderSize) + int64(b.buf.Len())
	block := alloc.Reserve(size)

	if err := block.WriteHeader(b.blockType, traceformat.NoOffset); err != nil {
		return 0, fmt.Errorf("blockio: builder flush: %w", err)
	}
	if _, err := block.Write(b.buf.Bytes()); err != nil {
		return 0, fmt.Errorf("blockio: builder flush: %w", err)
	}
	return block.Start(), nil
}
