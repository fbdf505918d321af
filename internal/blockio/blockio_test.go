package blockio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/traceformat"
)

func newTestAllocator(t *testing.T) *blockio.Allocator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.seec")
	alloc, err := blockio.NewAllocator(path)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	t.Cleanup(func() { alloc.Close() })
	return alloc
}

func TestAllocatorWritesMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.seec")
	alloc, err := blockio.NewAllocator(path)
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	alloc.Close()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) < 8 || string(got[:8]) != "SEECSEEC" {
		t.Fatalf("file does not start with magic: %q", got)
	}
	if alloc.BytesReserved() != 8 {
		t.Errorf("BytesReserved() = %d, want 8", alloc.BytesReserved())
	}
}

func TestOutputBlockWriteRejectsOverflow(t *testing.T) {
	alloc := newTestAllocator(t)
	block := alloc.Reserve(int64(traceformat.BlockHeaderSize) + 4)
	if err := block.WriteHeader(traceformat.BlockProcessData, traceformat.NoOffset); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	if _, err := block.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write within capacity: %v", err)
	}
	if _, err := block.Write([]byte{5}); err == nil {
		t.Fatal("expected error writing past block capacity")
	}
}

func TestOutputBlockRewriteAt(t *testing.T) {
	alloc := newTestAllocator(t)
	block := alloc.Reserve(int64(traceformat.BlockHeaderSize) + 8)
	block.WriteHeader(traceformat.BlockProcessData, traceformat.NoOffset)

	rec, err := block.RewritableWrite([]byte("aaaaaaaa"))
	if err != nil {
		t.Fatalf("RewritableWrite: %v", err)
	}
	if err := block.RewriteAt(rec, []byte("bbbbbbbb")); err != nil {
		t.Fatalf("RewriteAt: %v", err)
	}
	if err := block.RewriteAt(rec, []byte("short")); err == nil {
		t.Fatal("expected size-mismatch error")
	}
}

func TestOutputBlockStreamSpansMultipleBlocks(t *testing.T) {
	alloc := newTestAllocator(t)
	stream := blockio.NewOutputBlockStream(alloc, traceformat.BlockProcessData, 16)

	payload := make([]byte, 12)
	for i := range payload {
		payload[i] = byte(i)
	}

	for i := 0; i < 5; i++ {
		if _, err := stream.Append(payload); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := alloc.BytesReserved(); got <= 8 {
		t.Errorf("BytesReserved() = %d, expected growth past the magic", got)
	}
}

func TestThreadEventStreamStampsThreadID(t *testing.T) {
	alloc := newTestAllocator(t)
	stream := blockio.NewThreadEventStream(alloc, 7, blockio.DefaultBlockSize)
	defer stream.Close()

	if _, err := stream.Append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := stream.ThreadID(); got != 7 {
		t.Errorf("ThreadID() = %d, want 7", got)
	}
}

func TestProcessDataStreamRoutesOversizeToOwnBlock(t *testing.T) {
	alloc := newTestAllocator(t)
	stream := blockio.NewProcessDataStream(alloc)
	defer stream.Close()

	small := make([]byte, 16)
	big := make([]byte, blockio.DefaultBlockSize) // forces the oversize path

	if _, err := stream.Append(small); err != nil {
		t.Fatalf("Append small: %v", err)
	}
	before := alloc.BytesReserved()
	if _, err := stream.Append(big); err != nil {
		t.Fatalf("Append big: %v", err)
	}
	after := alloc.BytesReserved()

	if after-before < int64(len(big)) {
		t.Errorf("oversize append only grew the file by %d bytes, want at least %d", after-before, len(big))
	}
}

// TestEventWriterChainsPreviousEventSize covers property R1.
func TestEventWriterChainsPreviousEventSize(t *testing.T) {
	alloc := newTestAllocator(t)
	stream := blockio.NewThreadEventStream(alloc, 1, blockio.DefaultBlockSize)
	w := blockio.NewEventWriter(stream)
	defer w.Close()

	first := &traceformat.InstructionRecord{
		Header: traceformat.Header{Type: traceformat.EventInstruction},
		Index:  1,
	}
	if _, err := w.WriteEvent(first); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if first.PreviousEventSize != 0 {
		t.Errorf("first event's PreviousEventSize = %d, want 0", first.PreviousEventSize)
	}
	firstSize := traceformat.Size(first)

	second := &traceformat.InstructionRecord{
		Header: traceformat.Header{Type: traceformat.EventInstruction},
		Index:  2,
	}
	if _, err := w.WriteEvent(second); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if int(second.PreviousEventSize) != firstSize {
		t.Errorf("second event's PreviousEventSize = %d, want %d", second.PreviousEventSize, firstSize)
	}
}

func TestEventWriterRewriteEvent(t *testing.T) {
	alloc := newTestAllocator(t)
	stream := blockio.NewThreadEventStream(alloc, 1, blockio.DefaultBlockSize)
	w := blockio.NewEventWriter(stream)
	defer w.Close()

	rec := &traceformat.FunctionStartRecord{
		Header:        traceformat.Header{Type: traceformat.EventFunctionStart},
		FunctionIndex: 1,
	}
	writeRec, err := w.WriteEvent(rec)
	if err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	rec.EventOffset = 999
	if err := w.RewriteEvent(writeRec, rec); err != nil {
		t.Fatalf("RewriteEvent: %v", err)
	}
}

func TestBuilderFlushWritesExactSizedBlock(t *testing.T) {
	alloc := newTestAllocator(t)
	b := blockio.NewBuilder(traceformat.BlockProcessTrace)
	b.Write([]byte("hello"))
	b.Write([]byte(" world"))

	start, err := b.Flush(alloc)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if start != 8 {
		t.Errorf("block start = %d, want 8 (immediately after magic)", start)
	}
}
