// Package processlistener implements the process listener (§4.10): the
// process-wide state shared by every thread listener in the traced
// program — global and function address tables, the shadow-memory map,
// known-memory regions, dynamic-allocation metadata, the in-memory
// pointer-object map, the stream and DIR tables, and the thread-listener
// registry. It is the authority getContainingMemoryArea consults when a
// raw address needs to be resolved back to the object that owns it.
package processlistener

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/seec-team/seectrace/internal/blockio"
	"github.com/seec-team/seectrace/internal/checker"
	"github.com/seec-team/seectrace/internal/detectcalls"
	"github.com/seec-team/seectrace/internal/dsa"
	"github.com/seec-team/seectrace/internal/pointerobj"
	"github.com/seec-team/seectrace/internal/rterror"
	"github.com/seec-team/seectrace/internal/shadowmem"
	"github.com/seec-team/seectrace/internal/syncexit"
	"github.com/seec-team/seectrace/internal/threadlistener"
)

// DataRecord names where a variable-sized payload (a global's initial
// bytes, a record too large for a thread's own event stream) landed in the
// process-data stream.
type DataRecord = blockio.WriteRecord

// RunErrorCallback is invoked whenever any thread listener records a
// runtime error, letting the process surface it (e.g. to a live UI or a
// terminal report) without the thread listener needing to know who is
// listening.
type RunErrorCallback func(threadID uint32, err *rterror.Error)

// ProcessListener holds every piece of state one traced process shares
// across all of its threads.
type ProcessListener struct {
	Calls       *detectcalls.Lookup
	Mem         *shadowmem.State
	Pointers    *pointerobj.InMemoryMap
	Coordinator *syncexit.Coordinator
	Streams     *checker.StreamTable
	Dirs        *checker.DirTable

	runID  uuid.UUID
	logger *slog.Logger

	mu            sync.Mutex
	outputEnabled bool

	globalAddresses    []uint64
	globalLookup       *dsa.IntervalMapVector[uint32]
	globalInitialData  []DataRecord

	functionAddresses []uint64
	functionLookup    map[uint64]uint32

	dataOut *blockio.ProcessDataStream
	dataMu  sync.Mutex

	timeMu sync.Mutex
	time   uint64

	nextThreadID      atomic.Uint32
	activeThreadCount atomic.Int32

	environOnce sync.Once

	knownMu     sync.Mutex
	knownMemory *dsa.IntervalMapVector[dsa.Permission]

	dynMu              sync.Mutex
	dynamicAllocations map[uint64]*DynamicAllocation

	threadsMu sync.Mutex
	threads   map[uint32]*threadlistener.ThreadListener

	callbackMu       sync.Mutex
	runErrorCallback RunErrorCallback
}

// Option configures optional ProcessListener collaborators, following the
// same functional-options shape as the teacher's agent.New/agent.Option.
type Option func(*ProcessListener)

// WithLogger installs logger for the process listener's structured
// diagnostics (thread lifecycle at Debug). Runtime errors are not logged
// by the process listener.
// Without this option, New defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *ProcessListener) { p.logger = logger }
}

// WithRunID overrides the randomly generated run identifier, for tests that
// need a deterministic ProcessTrace module identifier.
func WithRunID(id uuid.UUID) Option {
	return func(p *ProcessListener) { p.runID = id }
}

// New returns a process listener writing its process-data stream through
// alloc and recognizing the standard-library calls registered in calls.
func New(alloc *blockio.Allocator, calls *detectcalls.Lookup, opts ...Option) *ProcessListener {
	p := &ProcessListener{
		Calls:              calls,
		Mem:                shadowmem.NewState(),
		Pointers:           pointerobj.NewInMemoryMap(),
		Coordinator:        syncexit.New(),
		Streams:            checker.NewStreamTable(),
		Dirs:               checker.NewDirTable(),
		runID:              uuid.New(),
		logger:             slog.Default(),
		outputEnabled:      true,
		globalLookup:       dsa.NewIntervalMapVector[uint32](),
		functionLookup:     make(map[uint64]uint32),
		dataOut:            blockio.NewProcessDataStream(alloc),
		knownMemory:        dsa.NewIntervalMapVector[dsa.Permission](),
		dynamicAllocations: make(map[uint64]*DynamicAllocation),
		threads:            make(map[uint32]*threadlistener.ThreadListener),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewLogger builds a JSON-to-stderr logger at the given level name
// ("debug", "info", "warn", "error"; anything else defaults to info),
// matching the teacher's cmd/agent newLogger helper.
func NewLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func dsaArea(address, length uint64) dsa.MemoryArea {
	return dsa.NewMemoryArea(address, length)
}

// TraceEnabled reports whether trace output is currently enabled.
func (p *ProcessListener) TraceEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputEnabled
}

// SetTraceEnabled toggles trace output.
func (p *ProcessListener) SetTraceEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputEnabled = enabled
}

// Close flushes and closes the process-data stream.
func (p *ProcessListener) Close() error {
	return p.dataOut.Close()
}

// Time returns the current synthetic process time.
func (p *ProcessListener) Time() uint64 {
	p.timeMu.Lock()
	defer p.timeMu.Unlock()
	return p.time
}

// NewTime increments and returns the synthetic process time.
func (p *ProcessListener) NewTime() uint64 {
	p.timeMu.Lock()
	defer p.timeMu.Unlock()
	p.time++
	return p.time
}

// EnvironSetupOnce returns the sync.Once guarding the environ table's
// one-time setup, shared across every thread that might race to perform it.
func (p *ProcessListener) EnvironSetupOnce() *sync.Once { return &p.environOnce }

// SetRunErrorCallback stores cb for RunErrorCallback to return. The process
// listener does not call it itself, and RegisterThread does not connect it
// to a thread listener's OnRuntimeError.
func (p *ProcessListener) SetRunErrorCallback(cb RunErrorCallback) {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	p.runErrorCallback = cb
}

// RunErrorCallback returns the currently installed callback, or nil.
func (p *ProcessListener) RunErrorCallback() RunErrorCallback {
	p.callbackMu.Lock()
	defer p.callbackMu.Unlock()
	return p.runErrorCallback
}

// recordData writes data to the shared process-data stream and returns the
// record naming its offset, for events needing a variable-sized payload.
func (p *ProcessListener) recordData(data []byte) (DataRecord, error) {
	p.dataMu.Lock()
	defer p.dataMu.Unlock()
	rec, err := p.dataOut.Append(data)
	if err != nil {
		return DataRecord{}, fmt.Errorf("processlistener: record data: %w", err)
	}
	return rec, nil
}

// NextThreadID allocates a new thread ID and marks one more thread active.
// The caller is expected to construct its threadlistener.ThreadListener
// with the returned ID, then call RegisterThread.
func (p *ProcessListener) NextThreadID() uint32 {
	p.activeThreadCount.Add(1)
	return p.nextThreadID.Add(1) - 1
}

// RegisterThread makes l discoverable by ID, for getContainingMemoryArea's
// cross-thread stack search and for administrative lookups.
func (p *ProcessListener) RegisterThread(id uint32, l *threadlistener.ThreadListener) {
	p.threadsMu.Lock()
	p.threads[id] = l
	p.threadsMu.Unlock()
	p.logger.Debug("thread registered", slog.Uint64("thread", uint64(id)), slog.String("run_id", p.runID.String()))
}

// DeregisterThread removes a terminated thread's listener and marks one
// fewer thread active.
func (p *ProcessListener) DeregisterThread(id uint32) {
	p.threadsMu.Lock()
	delete(p.threads, id)
	p.threadsMu.Unlock()
	p.activeThreadCount.Add(-1)
	p.logger.Debug("thread deregistered", slog.Uint64("thread", uint64(id)))
}

// CountThreadListeners reports the number of currently active threads.
func (p *ProcessListener) CountThreadListeners() int {
	return int(p.activeThreadCount.Load())
}

// ThreadByID returns the registered listener for id, if its thread is still
// active.
func (p *ProcessListener) ThreadByID(id uint32) (*threadlistener.ThreadListener, bool) {
	p.threadsMu.Lock()
	defer p.threadsMu.Unlock()
	l, ok := p.threads[id]
	return l, ok
}

// AddKnownMemoryRegion records a region of memory the tracer knows about
// but does not own as an allocation — a libc-internal static buffer, for
// instance — so accesses to it can be validated without it participating
// in temporal-ID tracking.
func (p *ProcessListener) AddKnownMemoryRegion(area dsa.MemoryArea) error {
	p.knownMu.Lock()
	defer p.knownMu.Unlock()
	if !p.knownMemory.Insert(area.Address(), area.Address()+area.Length(), area.Access()) {
		return fmt.Errorf("processlistener: known region %v overlaps an existing one", area)
	}
	return nil
}

// RemoveKnownMemoryRegion deregisters the known region starting at address.
func (p *ProcessListener) RemoveKnownMemoryRegion(address uint64) bool {
	p.knownMu.Lock()
	defer p.knownMu.Unlock()
	return p.knownMemory.Remove(address)
}

// KnownMemoryContaining returns the known region covering addr, if any.
func (p *ProcessListener) KnownMemoryContaining(addr uint64) (dsa.MemoryArea, bool) {
	p.knownMu.Lock()
	defer p.knownMu.Unlock()
	access, begin, end, ok := p.knownMemory.Find(addr)
	if !ok {
		return dsa.MemoryArea{}, false
	}
	return dsa.NewMemoryAreaWithPermission(begin, end-begin, access), true
}

// IsDynamicAllocation reports whether address is the start of a currently
// live dynamic (heap) allocation.
func (p *ProcessListener) IsDynamicAllocation(address uint64) bool {
	p.dynMu.Lock()
	defer p.dynMu.Unlock()
	_, ok := p.dynamicAllocations[address]
	return ok
}

// DynamicAllocationAt returns the allocation metadata recorded for address.
func (p *ProcessListener) DynamicAllocationAt(address uint64) (DynamicAllocation, bool) {
	p.dynMu.Lock()
	defer p.dynMu.Unlock()
	d, ok := p.dynamicAllocations[address]
	if !ok {
		return DynamicAllocation{}, false
	}
	return *d, true
}

// SetDynamicAllocation records that thread's event at offset allocated size
// bytes at address, updating the existing record in place if address was
// already tracked (e.g. realloc growing in place).
func (p *ProcessListener) SetDynamicAllocation(address uint64, thread uint32, offset int64, size uint64) {
	p.dynMu.Lock()
	defer p.dynMu.Unlock()
	if existing, ok := p.dynamicAllocations[address]; ok {
		existing.update(thread, offset, size)
		return
	}
	p.dynamicAllocations[address] = &DynamicAllocation{
		Thread: thread, Offset: offset, Address: address, Size: size,
	}
}

// RemoveDynamicAllocation deregisters the allocation at address.
func (p *ProcessListener) RemoveDynamicAllocation(address uint64) bool {
	p.dynMu.Lock()
	defer p.dynMu.Unlock()
	if _, ok := p.dynamicAllocations[address]; !ok {
		return false
	}
	delete(p.dynamicAllocations, address)
	return true
}

// GetContainingMemoryArea finds the memory region that owns addr, searching
// in order: global variables, dynamic allocations, known regions, and
// finally every other thread's stack (a thread never needs to search its
// own — its own thread listener already knows its own frames). requestingID
// names the calling thread, so its own stack is skipped in the last step.
func (p *ProcessListener) GetContainingMemoryArea(addr uint64, requestingID uint32) (dsa.MemoryArea, bool) {
	p.mu.Lock()
	_, begin, end, ok := p.globalLookup.Find(addr)
	p.mu.Unlock()
	if ok {
		return dsa.NewMemoryArea(begin, end-begin), true
	}

	if alloc, ok := p.Mem.FindAllocationContaining(addr); ok {
		return alloc.Area(), true
	}

	if area, ok := p.KnownMemoryContaining(addr); ok {
		return area, true
	}

	p.threadsMu.Lock()
	others := make([]*threadlistener.ThreadListener, 0, len(p.threads))
	for id, l := range p.threads {
		if id != requestingID {
			others = append(others, l)
		}
	}
	p.threadsMu.Unlock()

	for _, l := range others {
		if area, ok := l.StackContaining(addr); ok {
			return area, true
		}
	}

	return dsa.MemoryArea{}, false
}
