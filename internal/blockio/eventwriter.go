package blockio

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/seec-team/seectrace/internal/traceformat"
)

// EventWriter is the per-thread trace-event writer described in §4.6: it
// wraps a ThreadEventStream, filling in each record's PreviousEventSize from
// the size of the last record it wrote, and supports rewriting a
// previously-written record in place (used to back-patch a FunctionStart
// record once its matching end offset is known).
//
// Within one EventWriter, writes are totally ordered: PreviousEventSize
// links form a backward singly-linked chain across every event the writer
// has produced.
type EventWriter struct {
	mu           sync.Mutex
	stream       *ThreadEventStream
	lastSize     uint8
	lastOverflow bool // true once an event's size exceeded uint8's range
}

// NewEventWriter returns a writer over stream. The first event it writes
// carries PreviousEventSize 0.
func NewEventWriter(stream *ThreadEventStream) *EventWriter {
	return &EventWriter{stream: stream}
}

// WriteEvent encodes rec (after setting its PreviousEventSize from the
// writer's state) and appends it to the underlying stream, returning a
// WriteRecord that can later be passed to RewriteEvent.
func (w *EventWriter) WriteEvent(rec traceformat.Record) (WriteRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	setPreviousEventSize(rec, w.lastSize)

	var buf bytes.Buffer
	if err := traceformat.Encode(&buf, rec); err != nil {
		return WriteRecord{}, fmt.Errorf("blockio: encode event: %w", err)
	}

	size := buf.Len()
	if size > 255 {
		w.lastOverflow = true
		return WriteRecord{}, fmt.Errorf("blockio: event of type %v is %d bytes, exceeds the 255-byte previous-event-size field", rec.EventType(), size)
	}

	writeRec, err := w.stream.Append(buf.Bytes())
	if err != nil {
		return WriteRecord{}, err
	}
	w.lastSize = uint8(size)
	return writeRec, nil
}

// RewriteEvent overwrites a previously written event in place. rec's
// PreviousEventSize is taken as-is (the caller is responsible for
// preserving the original chain link) rather than recomputed, since the
// writer's "last size" state may have moved on past rec by the time a
// rewrite happens.
func (w *EventWriter) RewriteEvent(writeRec WriteRecord, rec traceformat.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var buf bytes.Buffer
	if err := traceformat.Encode(&buf, rec); err != nil {
		return fmt.Errorf("blockio: encode event for rewrite: %w", err)
	}
	return w.stream.Rewrite(writeRec, buf.Bytes())
}

// Close finalizes the writer's underlying stream.
func (w *EventWriter) Close() error {
	return w.stream.Close()
}

// eventSizeSetter is implemented, via promotion, by every concrete record
// type in traceformat: they all embed traceformat.Header.
type eventSizeSetter interface {
	SetPreviousEventSize(uint8)
}

// setPreviousEventSize sets the PreviousEventSize field of any record
// embedding traceformat.Header. All concrete record types in this module do.
func setPreviousEventSize(rec traceformat.Record, size uint8) {
	if hs, ok := rec.(eventSizeSetter); ok {
		hs.SetPreviousEventSize(size)
	}
}
