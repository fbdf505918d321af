package blockio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/seec-team/seectrace/internal/traceformat"
)

// WriteRecord names a span previously written by an OutputBlock, permitting
// exactly that span to be rewritten later (G3) — used to back-patch a
// FunctionStart record once its matching FunctionEnd offset is known.
type WriteRecord struct {
	offset int64
	size   int
}

// Offset returns the absolute file offset the record was written at, for
// storage as a cross-reference (e.g. a FunctionStart record's pointer to
// its eventual FunctionEnd).
func (r WriteRecord) Offset() int64 { return r.offset }

// OutputBlock is an atomic cursor into a pre-reserved file region. It is
// safe for concurrent use by multiple goroutines writing to the same block,
// though in practice each block has exactly one writer (G1).
type OutputBlock struct {
	file  *os.File
	start int64
	end   int64
	pos   atomic.Int64
}

// Start returns the block's first byte offset in the file.
func (b *OutputBlock) Start() int64 { return b.start }

// End returns the offset one past the block's last reserved byte.
func (b *OutputBlock) End() int64 { return b.end }

// Remaining reports how many bytes are still unwritten in the block.
func (b *OutputBlock) Remaining() int64 {
	return b.end - (b.start + b.pos.Load())
}

// WriteHeader writes the block's 9-byte header (type tag, next-block
// offset) at the block's start and moves the write cursor used by
// Write/RewritableWrite to just past the header, so later writes follow it.
func (b *OutputBlock) WriteHeader(blockType traceformat.BlockType, nextBlockOffset uint64) error {
	var hdr [traceformat.BlockHeaderSize]byte
	hdr[0] = byte(blockType)
	binary.LittleEndian.PutUint64(hdr[1:], nextBlockOffset)
	if _, err := b.file.WriteAt(hdr[:], b.start); err != nil {
		return fmt.Errorf("blockio: write block header: %w", err)
	}
	b.pos.Store(int64(len(hdr)))
	return nil
}

// Write appends buf at the block's current cursor, atomically advancing it.
// It reports an error without writing anything if buf would not fit in the
// block's remaining space; the caller is expected to retry in a fresh block
// (see OutputBlockStream).
func (b *OutputBlock) Write(buf []byte) (int, error) {
	n := int64(len(buf))
	newPos := b.pos.Add(n)
	writeAt := b.start + newPos - n
	if b.start+newPos > b.end {
		b.pos.Add(-n)
		return 0, fmt.Errorf("blockio: write of %d bytes exceeds block capacity", n)
	}
	if _, err := b.file.WriteAt(buf, writeAt); err != nil {
		return 0, fmt.Errorf("blockio: write: %w", err)
	}
	return len(buf), nil
}

// RewritableWrite is Write, additionally returning a WriteRecord describing
// the span just written so it can later be overwritten in place via
// RewriteAt.
func (b *OutputBlock) RewritableWrite(buf []byte) (WriteRecord, error) {
	n := int64(len(buf))
	newPos := b.pos.Add(n)
	writeAt := b.start + newPos - n
	if b.start+newPos > b.end {
		b.pos.Add(-n)
		return WriteRecord{}, fmt.Errorf("blockio: rewritable write of %d bytes exceeds block capacity", n)
	}
	if _, err := b.file.WriteAt(buf, writeAt); err != nil {
		return WriteRecord{}, fmt.Errorf("blockio: rewritable write: %w", err)
	}
	return WriteRecord{offset: writeAt, size: len(buf)}, nil
}

// RewriteAt overwrites the span described by rec with buf, which must be
// exactly rec's original size. No other byte of the file is touched (G3).
func (b *OutputBlock) RewriteAt(rec WriteRecord, buf []byte) error {
	if len(buf) != rec.size {
		return fmt.Errorf("blockio: rewrite size mismatch: record is %d bytes, got %d", rec.size, len(buf))
	}
	if _, err := b.file.WriteAt(buf, rec.offset); err != nil {
		return fmt.Errorf("blockio: rewrite: %w", err)
	}
	return nil
}
