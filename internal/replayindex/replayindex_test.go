package replayindex_test

import (
	"context"
	"testing"

	"github.com/seec-team/seectrace/internal/replayindex"
)

func TestIsPostgresDSN(t *testing.T) {
	cases := map[string]bool{
		"postgres://user@host/db":   true,
		"postgresql://user@host/db": true,
		"./trace.index.sqlite":      false,
		":memory:":                  false,
		"/var/lib/seectrace/idx.db": false,
	}
	for dsn, want := range cases {
		if got := replayindex.IsPostgresDSN(dsn); got != want {
			t.Errorf("IsPostgresDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func newTestIndex(t *testing.T) *replayindex.Index {
	t.Helper()
	idx, err := replayindex.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestThreadOffsetRoundTrip(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if _, ok, err := idx.ThreadBlockOffset(ctx, 1); err != nil || ok {
		t.Fatalf("ThreadBlockOffset before indexing: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := idx.IndexThreadOffset(ctx, 1, 4096); err != nil {
		t.Fatalf("IndexThreadOffset: %v", err)
	}
	offset, ok, err := idx.ThreadBlockOffset(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("ThreadBlockOffset: ok=%v err=%v, want ok=true", ok, err)
	}
	if offset != 4096 {
		t.Errorf("offset = %d, want 4096", offset)
	}

	// A second index for the same thread replaces the first.
	if err := idx.IndexThreadOffset(ctx, 1, 8192); err != nil {
		t.Fatalf("IndexThreadOffset (replace): %v", err)
	}
	offset, _, err = idx.ThreadBlockOffset(ctx, 1)
	if err != nil {
		t.Fatalf("ThreadBlockOffset (after replace): %v", err)
	}
	if offset != 8192 {
		t.Errorf("offset = %d, want 8192 after replacing", offset)
	}
}

func TestThreadIDs(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, id := range []uint32{1, 2, 5} {
		if err := idx.IndexThreadOffset(ctx, id, int64(id)*4096); err != nil {
			t.Fatalf("IndexThreadOffset(%d): %v", id, err)
		}
	}

	ids, err := idx.ThreadIDs(ctx)
	if err != nil {
		t.Fatalf("ThreadIDs: %v", err)
	}
	seen := make(map[uint32]bool)
	for _, id := range ids {
		seen[id] = true
	}
	for _, want := range []uint32{1, 2, 5} {
		if !seen[want] {
			t.Errorf("ThreadIDs missing %d: got %v", want, ids)
		}
	}
	if len(ids) != 3 {
		t.Errorf("len(ids) = %d, want 3", len(ids))
	}
}

func TestFunctionEntriesAccumulate(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for _, offset := range []int64{100, 250, 400} {
		if err := idx.IndexFunctionEntry(ctx, 1, 42, offset); err != nil {
			t.Fatalf("IndexFunctionEntry(%d): %v", offset, err)
		}
	}
	// A call to a different function on the same thread must not appear.
	if err := idx.IndexFunctionEntry(ctx, 1, 7, 175); err != nil {
		t.Fatalf("IndexFunctionEntry(other function): %v", err)
	}

	entries, err := idx.FunctionEntries(ctx, 1, 42)
	if err != nil {
		t.Fatalf("FunctionEntries: %v", err)
	}
	want := []int64{100, 250, 400}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v, want %v", entries, want)
	}
	for i, offset := range want {
		if entries[i] != offset {
			t.Errorf("entries[%d] = %d, want %d", i, entries[i], offset)
		}
	}
}
