package checker

import "sync"

// StreamTable tracks which FILE* handles are currently open, so a shim can
// validate a stream argument without dereferencing it. Addressed by the
// stream's raw pointer value.
type StreamTable struct {
	mu   sync.RWMutex
	open map[uint64]bool
}

// NewStreamTable returns an empty table.
func NewStreamTable() *StreamTable {
	return &StreamTable{open: make(map[uint64]bool)}
}

// Register marks addr as an open stream (e.g. after a successful fopen).
func (t *StreamTable) Register(addr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[addr] = true
}

// Unregister marks addr closed (e.g. after fclose).
func (t *StreamTable) Unregister(addr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.open, addr)
}

// IsOpen reports whether addr is a currently registered open stream.
func (t *StreamTable) IsOpen(addr uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open[addr]
}

// DirTable is StreamTable's analogue for DIR* handles from
// opendir/readdir/closedir.
type DirTable struct {
	StreamTable
}

// NewDirTable returns an empty table.
func NewDirTable() *DirTable {
	return &DirTable{StreamTable: StreamTable{open: make(map[uint64]bool)}}
}
