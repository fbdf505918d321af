package processlistener

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/traceformat"
)

// RunID uniquely identifies this traced process's run, minted once at
// ProcessListener construction. It is folded into the ProcessTrace block's
// module identifier string so that two traces of the same binary are never
// mistaken for one another by an offline viewer or replayindex entry keyed
// on that string alone.
func (p *ProcessListener) RunID() uuid.UUID { return p.runID }

// WriteProcessTrace builds and flushes the ProcessTrace block (§6): format
// version, a module identifier disambiguated by RunID, the global-variable
// address table and initial-data offsets, and the function address table.
// It is written once, after every global and function has been registered
// and just before the first thread begins executing.
func (p *ProcessListener) WriteProcessTrace(alloc *blockio.Allocator, moduleIdentifier string) (int64, error) {
	p.mu.Lock()
	globals := append([]uint64(nil), p.globalAddresses...)
	initial := append([]DataRecord(nil), p.globalInitialData...)
	functions := append([]uint64(nil), p.functionAddresses...)
	p.mu.Unlock()

	identifier := fmt.Sprintf("%s+%s", moduleIdentifier, p.runID)

	b := blockio.NewBuilder(traceformat.BlockProcessTrace)
	if err := binary.Write(b, binary.LittleEndian, traceformat.FormatVersion); err != nil {
		return 0, fmt.Errorf("processlistener: write format version: %w", err)
	}
	if err := writeLengthPrefixedString(b, identifier); err != nil {
		return 0, fmt.Errorf("processlistener: write module identifier: %w", err)
	}
	if err := writeUint64Table(b, globals); err != nil {
		return 0, fmt.Errorf("processlistener: write global address table: %w", err)
	}
	offsets := make([]uint64, len(initial))
	for i, rec := range initial {
		offsets[i] = uint64(rec.Offset())
	}
	if err := writeUint64Table(b, offsets); err != nil {
		return 0, fmt.Errorf("processlistener: write global initial-data offsets: %w", err)
	}
	if err := writeUint64Table(b, functions); err != nil {
		return 0, fmt.Errorf("processlistener: write function address table: %w", err)
	}

	start, err := b.Flush(alloc)
	if err != nil {
		return 0, fmt.Errorf("processlistener: flush ProcessTrace block: %w", err)
	}
	return start, nil
}

func writeLengthPrefixedString(w *blockio.Builder, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func writeUint64Table(w *blockio.Builder, values []uint64) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(values))); err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.Grow(len(values) * 8)
	for _, v := range values {
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], v)
		buf.Write(tmp[:])
	}
	_, err := w.Write(buf.Bytes())
	return err
}
