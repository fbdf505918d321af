package rterror_test

import (
	"strings"
	"testing"

	"github.com/seec-team/seectrace/internal/rterror"
)

func TestNewUsesDefaultSeverity(t *testing.T) {
	err := rterror.New(rterror.KindReturnOfLocal, 4, rterror.Address(0x1000))
	if !err.IsFatal() {
		t.Error("return-of-local should default to fatal")
	}
}

func TestOverlapDefaultsToWarning(t *testing.T) {
	err := rterror.New(rterror.KindOverlappingSourceDestination, 1, rterror.Address(0x1000), rterror.Size(5))
	if err.IsFatal() {
		t.Error("overlapping-source-destination should default to a warning, per scenario 5")
	}
}

func TestWithNoteNests(t *testing.T) {
	note := rterror.New(rterror.KindBufferSizeMismatch, 1, rterror.ParameterIndex(2))
	err := rterror.New(rterror.KindInvalidCString, 1, rterror.ParameterIndex(2)).WithNote(note)

	if len(err.Notes) != 1 {
		t.Fatalf("len(Notes) = %d, want 1", len(err.Notes))
	}
	if !strings.Contains(err.Error(), "buffer-size-mismatch") {
		t.Errorf("Error() should mention the nested note's kind, got %q", err.Error())
	}
}

func TestWithSeverityOverridesDefault(t *testing.T) {
	err := rterror.New(rterror.KindMemoryOverlap, 0).WithSeverity(rterror.SeverityFatal)
	if !err.IsFatal() {
		t.Error("WithSeverity should override the default")
	}
}
