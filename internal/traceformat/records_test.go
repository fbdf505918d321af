package traceformat_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/seec-team/seectrace/internal/traceformat"
)

// TestRecordRoundTrip covers property R1: writing a record then reading it
// back yields the input fields bitwise.
func TestRecordRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		rec  traceformat.Record
	}{
		{
			"FunctionStart",
			&traceformat.FunctionStartRecord{
				Header:        traceformat.Header{Type: traceformat.EventFunctionStart, PreviousEventSize: 9},
				FunctionIndex: 42,
				EventOffset:   1000,
			},
		},
		{
			"Instruction",
			&traceformat.InstructionRecord{
				Header: traceformat.Header{Type: traceformat.EventInstruction, PreviousEventSize: 14},
				Index:  7,
			},
		},
		{
			"InstructionWithPtr",
			&traceformat.InstructionWithPtrRecord{
				Header: traceformat.Header{Type: traceformat.EventInstructionWithPtr, PreviousEventSize: 6},
				Index:  3,
				Value:  0xdeadbeef,
			},
		},
		{
			"InstructionWithDouble",
			&traceformat.InstructionWithDoubleRecord{
				Header: traceformat.Header{Type: traceformat.EventInstructionWithDouble, PreviousEventSize: 6},
				Index:  9,
				Value:  3.14159,
			},
		},
		{
			"RuntimeError",
			&traceformat.RuntimeErrorRecord{
				Header:           traceformat.Header{Type: traceformat.EventRuntimeError, PreviousEventSize: 2},
				Type:             5,
				InstructionIndex: 11,
			},
		},
		{
			"StateUntypedSmall",
			&traceformat.StateUntypedSmallRecord{
				Header:  traceformat.Header{Type: traceformat.EventStateUntypedSmall, PreviousEventSize: 17},
				Address: 0x7fff0000,
				Length:  4,
				Data:    [7]byte{1, 2, 3, 4, 0, 0, 0},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := traceformat.Encode(&buf, c.rec); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			wantType := c.rec.EventType()
			got, err := traceformat.NewZero(wantType)
			if err != nil {
				t.Fatalf("NewZero: %v", err)
			}
			if err := traceformat.Decode(&buf, got); err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if got.EventType() != wantType {
				t.Errorf("EventType() = %v, want %v", got.EventType(), wantType)
			}
			if !reflect.DeepEqual(got, c.rec) {
				t.Errorf("decoded %+v, want %+v", got, c.rec)
			}
			if buf.Len() != 0 {
				t.Errorf("%d unread trailing bytes after decode", buf.Len())
			}
		})
	}
}

func TestRecordSizeIsFixed(t *testing.T) {
	rec := &traceformat.FunctionStartRecord{Header: traceformat.Header{Type: traceformat.EventFunctionStart}}
	if got := traceformat.Size(rec); got <= 0 {
		t.Fatalf("Size() = %d, want > 0", got)
	}

	var buf bytes.Buffer
	if err := traceformat.Encode(&buf, rec); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Len() != traceformat.Size(rec) {
		t.Errorf("encoded %d bytes, Size() reports %d", buf.Len(), traceformat.Size(rec))
	}
}

func TestNewZeroRejectsUnrecognizedType(t *testing.T) {
	if _, err := traceformat.NewZero(traceformat.EventType(200)); err == nil {
		t.Fatal("expected error for unrecognized event type")
	}
}
