// Package blockio implements the trace file's output-block subsystem: a
// single growable file, logically divided into type-tagged blocks that are
// reserved by bumping a global atomic offset counter so that concurrent
// writers targeting different blocks never contend for a lock (§4.2).
//
// # Reservation model
//
// The file opens with the 8-byte magic "SEECSEEC". Every block after that
// begins with a 9-byte header (1-byte type tag, 8-byte little-endian offset
// of the next block) followed by the block's payload. Allocator.Reserve
// atomically bumps a "next free byte" counter by the requested size and
// returns an OutputBlock positioned at the start of that region; the caller
// (or a Builder) is responsible for writing the header and payload into the
// reserved span.
//
// # Guarantees
//
// G1: a block, once reserved, is written by at most one logical writer (the
// one holding the returned OutputBlock). G2: the file is append-only with
// respect to new reservations — Reserve never hands out a region that
// overlaps a previously reserved one. G3: RewritableWrite permits later
// rewriting of exactly the span it wrote, and nothing else.
package blockio

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/seec-team/seectrace/internal/traceformat"
)

// Allocator owns the trace output file and the global reservation counter.
// It is safe for concurrent use.
type Allocator struct {
	file     *os.File
	nextFree atomic.Int64
}

// NewAllocator creates path, writes the file magic, and returns an Allocator
// ready to reserve blocks. path must not already exist; callers that need to
// resume a partially written trace are out of scope (§1 Non-goals).
func NewAllocator(path string) (*Allocator, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockio: create %q: %w", path, err)
	}

	n, err := f.Write(traceformat.Magic[:])
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockio: write magic: %w", err)
	}

	a := &Allocator{file: f}
	a.nextFree.Store(int64(n))
	return a, nil
}

// Reserve atomically bumps the allocator's free-byte counter by size and
// returns an OutputBlock covering exactly that span, including space for the
// traceformat.BlockHeaderSize-byte header: size must already account for the
// header. The block's header is not written by Reserve; the caller writes it
// (typically via OutputBlock.WriteHeader) once the payload, and the next
// block's offset, are known.
func (a *Allocator) Reserve(size int64) OutputBlock {
	start := a.nextFree.Add(size) - size
	return OutputBlock{
		file:  a.file,
		start: start,
		end:   start + size,
		pos:   atomic.Int64{},
	}
}

// BytesReserved returns the total number of bytes reserved so far, including
// the file magic. It is a point-in-time snapshot under concurrent use.
func (a *Allocator) BytesReserved() int64 {
	return a.nextFree.Load()
}

// Close flushes and closes the underlying file.
func (a *Allocator) Close() error {
	return a.file.Close()
}

// ArchiveTo copies the allocator's file to dir once the caller is done
// writing to it (e.g. after the ProcessTrace block has been finalized),
// using the file's own base name. It does not close or remove the original.
func (a *Allocator) ArchiveTo(dir string) error {
	src, err := os.Open(a.file.Name())
	if err != nil {
		return fmt.Errorf("blockio: archive: reopen source: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("blockio: archive: mkdir %q: %w", dir, err)
	}

	dstPath := dir + "/" + baseName(a.file.Name())
	dst, err := os.OpenFile(dstPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("blockio: archive: create %q: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("blockio: archive: copy: %w", err)
	}
	return nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
