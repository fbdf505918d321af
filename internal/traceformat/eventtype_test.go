package traceformat_test

import (
	"testing"

	"github.com/seec-team/seectrace/internal/traceformat"
)

func TestEventTypeStringKnownAndUnknown(t *testing.T) {
	if got := traceformat.EventFunctionStart.String(); got != "FunctionStart" {
		t.Errorf("String() = %q, want %q", got, "FunctionStart")
	}
	if got := traceformat.EventType(250).String(); got != "Unknown" {
		t.Errorf("String() of out-of-range type = %q, want %q", got, "Unknown")
	}
}

func TestSubservientEventsFollowTheirPrimary(t *testing.T) {
	// Each subservient event type documents which primary event it can
	// legally follow; this just pins the trait bit so a future edit to the
	// trait table notices if it flips silently.
	subservient := []traceformat.EventType{
		traceformat.EventStateOverwriteFragment,
		traceformat.EventStackRestoreAlloca,
		traceformat.EventRuntimeErrorArgument,
	}
	for _, et := range subservient {
		if !traceformat.TraitsOf(et).IsSubservient {
			t.Errorf("%v: expected IsSubservient", et)
		}
	}
}

func TestBlockStartEvents(t *testing.T) {
	blockStart := []traceformat.EventType{
		traceformat.EventTraceEnd,
		traceformat.EventNewProcessTime,
	}
	for _, et := range blockStart {
		if !traceformat.TraitsOf(et).IsBlockStart {
			t.Errorf("%v: expected IsBlockStart", et)
		}
	}
}

func TestMemoryStateEventsCoverAllocationLifecycle(t *testing.T) {
	for _, et := range []traceformat.EventType{traceformat.EventAlloca, traceformat.EventMalloc, traceformat.EventFree} {
		tr := traceformat.TraitsOf(et)
		if !tr.IsMemoryState {
			t.Errorf("%v: expected IsMemoryState", et)
		}
		if !tr.ModifiesSharedState {
			t.Errorf("%v: expected ModifiesSharedState", et)
		}
	}
}
