package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/seec-team/seectrace/internal/replayindex"
	"github.com/seec-team/seectrace/internal/traceformat"
)

// blockHeader is the parsed form of a block's 9-byte header.
type blockHeader struct {
	blockType       traceformat.BlockType
	nextBlockOffset uint64
}

// processTraceSummary is everything readProcessTrace extracts from the
// ProcessTrace block for the CLI's summary dump.
type processTraceSummary struct {
	formatVersion uint64
	identifier    string
	globalCount   int
	functionCount int
}

// threadChainSummary is the result of walking one thread's ThreadEvents
// block chain from its indexed starting offset.
type threadChainSummary struct {
	threadID   uint32
	blockCount int
	err        error
}

// readBlockHeader reads the 9-byte header at offset.
func readBlockHeader(f *os.File, offset int64) (blockHeader, error) {
	var hdr [traceformat.BlockHeaderSize]byte
	if _, err := f.ReadAt(hdr[:], offset); err != nil {
		return blockHeader{}, fmt.Errorf("read block header at %d: %w", offset, err)
	}
	return blockHeader{
		blockType:       traceformat.BlockType(hdr[0]),
		nextBlockOffset: binary.LittleEndian.Uint64(hdr[1:]),
	}, nil
}

// verifyMagic reads and checks the trace file's leading magic bytes.
func verifyMagic(f *os.File) error {
	var magic [8]byte
	if _, err := f.ReadAt(magic[:], 0); err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if magic != traceformat.Magic {
		return fmt.Errorf("bad magic: got %q, want %q", magic, traceformat.Magic)
	}
	return nil
}

// readProcessTrace parses the ProcessTrace block, which by construction
// (§4.10: written once, before any thread begins, as the first block any
// ProcessListener ever flushes) is always the first block in the file,
// immediately after the magic.
func readProcessTrace(f *os.File) (processTraceSummary, error) {
	headerOffset := int64(len(traceformat.Magic))
	hdr, err := readBlockHeader(f, headerOffset)
	if err != nil {
		return processTraceSummary{}, err
	}
	if hdr.blockType != traceformat.BlockProcessTrace {
		return processTraceSummary{}, fmt.Errorf("first block is %v, want ProcessTrace", hdr.blockType)
	}

	payloadOffset := headerOffset + int64(traceformat.BlockHeaderSize)
	r := io.NewSectionReader(f, payloadOffset, 1<<40)
	br := bufio.NewReader(r)

	var formatVersion uint64
	if err := binary.Read(br, binary.LittleEndian, &formatVersion); err != nil {
		return processTraceSummary{}, fmt.Errorf("read format version: %w", err)
	}

	identifier, err := readLengthPrefixedString(br)
	if err != nil {
		return processTraceSummary{}, fmt.Errorf("read module identifier: %w", err)
	}

	globals, err := readUint64Table(br)
	if err != nil {
		return processTraceSummary{}, fmt.Errorf("read global address table: %w", err)
	}
	if _, err := readUint64Table(br); err != nil {
		return processTraceSummary{}, fmt.Errorf("read global initial-data offsets: %w", err)
	}
	functions, err := readUint64Table(br)
	if err != nil {
		return processTraceSummary{}, fmt.Errorf("read function address table: %w", err)
	}

	return processTraceSummary{
		formatVersion: formatVersion,
		identifier:    identifier,
		globalCount:   len(globals),
		functionCount: len(functions),
	}, nil
}

func readLengthPrefixedString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readUint64Table(r io.Reader) ([]uint64, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	values := make([]uint64, n)
	for i := range values {
		if err := binary.Read(r, binary.LittleEndian, &values[i]); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// readThreadStamp reads the 4-byte thread ID a ThreadEventStream stamps
// immediately after a block's common header (blockio.threadHeaderExtra).
func readThreadStamp(f *os.File, blockOffset int64) (uint32, error) {
	var buf [4]byte
	at := blockOffset + int64(traceformat.BlockHeaderSize)
	if _, err := f.ReadAt(buf[:], at); err != nil {
		return 0, fmt.Errorf("read thread stamp at %d: %w", at, err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// walkThreadChain follows threadID's ThreadEvents block chain from
// startOffset until it reaches traceformat.NoOffset, a block outside the
// file, a wrong block type, or a cycle (a block offset seen twice).
func walkThreadChain(f *os.File, fileSize int64, threadID uint32, startOffset int64) threadChainSummary {
	summary := threadChainSummary{threadID: threadID}
	seen := make(map[int64]bool)
	offset := startOffset

	for {
		if offset < 0 || offset >= fileSize {
			summary.err = fmt.Errorf("block offset %d is outside the file (size %d)", offset, fileSize)
			return summary
		}
		if seen[offset] {
			summary.err = fmt.Errorf("cycle detected: block at offset %d visited twice", offset)
			return summary
		}
		seen[offset] = true

		hdr, err := readBlockHeader(f, offset)
		if err != nil {
			summary.err = err
			return summary
		}
		if hdr.blockType != traceformat.BlockThreadEvents {
			summary.err = fmt.Errorf("block at offset %d is %v, want ThreadEvents", offset, hdr.blockType)
			return summary
		}
		stampedID, err := readThreadStamp(f, offset)
		if err != nil {
			summary.err = err
			return summary
		}
		if stampedID != threadID {
			summary.err = fmt.Errorf("block at offset %d is stamped for thread %d, want %d", offset, stampedID, threadID)
			return summary
		}
		summary.blockCount++

		if hdr.nextBlockOffset == traceformat.NoOffset {
			return summary
		}
		offset = int64(hdr.nextBlockOffset)
	}
}

// walkIndexedThreads uses idx to discover thread IDs and their ThreadEvents
// starting offsets, then validates each one's chain.
func walkIndexedThreads(ctx context.Context, f *os.File, fileSize int64, idx *replayindex.Index, threadIDs []uint32) ([]threadChainSummary, error) {
	summaries := make([]threadChainSummary, 0, len(threadIDs))
	for _, id := range threadIDs {
		offset, ok, err := idx.ThreadBlockOffset(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("thread %d: lookup offset: %w", id, err)
		}
		if !ok {
			continue
		}
		summaries = append(summaries, walkThreadChain(f, fileSize, id, offset))
	}
	return summaries, nil
}
