package processlistener

import "github.com/seec-team/seectrace/internal/pointerobj"

// pointerSize is the width, in bytes, of a pointer-typed value on the
// traced program's target — used when seeding the in-memory pointer-object
// map for pointer fields discovered inside global variables.
const pointerSize = 8

// GlobalPointerField names one pointer-typed field found somewhere inside a
// global variable's initial image (a global pointing at another global, a
// pointer inside a struct, array, or vector element) once the loader has
// finished walking every global's type. Resolving these fields is an
// external collaborator's job (§1, "compile-time instrumentation pass" and
// the runtime's type-walking glue); NotifyGlobalVariablesComplete only
// needs the resolved (field, target) address pairs.
type GlobalPointerField struct {
	FieldAddress  uint64
	TargetAddress uint64
}

// NotifyGlobalVariable registers the global at index: its run-time address,
// the shadow-memory allocation backing it (lifetime-forever, so a tag
// minted against it is never flagged stale), and its initial bytes, which
// are copied into the process-data stream for the trace to carry forward.
// It returns the record naming where those bytes ended up.
func (p *ProcessListener) NotifyGlobalVariable(index uint32, address uint64, initialData []byte) (DataRecord, error) {
	rec, err := p.recordData(initialData)
	if err != nil {
		return DataRecord{}, err
	}

	p.mu.Lock()
	p.growGlobalsLocked(index)
	p.globalAddresses[index] = address
	p.globalInitialData[index] = rec
	if len(initialData) > 0 {
		area := dsaArea(address, uint64(len(initialData)))
		p.globalLookup.Insert(area.Address(), area.Address()+area.Length(), index)
	}
	p.mu.Unlock()

	if len(initialData) > 0 {
		area := dsaArea(address, uint64(len(initialData)))
		if _, err := p.Mem.AddForeverAllocation(area); err != nil {
			return rec, err
		}
		if err := p.Mem.SetInitialized(address, uint64(len(initialData))); err != nil {
			return rec, err
		}
	}

	return rec, nil
}

func (p *ProcessListener) growGlobalsLocked(index uint32) {
	for uint32(len(p.globalAddresses)) <= index {
		p.globalAddresses = append(p.globalAddresses, 0)
		p.globalInitialData = append(p.globalInitialData, DataRecord{})
	}
}

// NotifyGlobalVariablesComplete seeds the in-memory pointer-object map from
// every pointer field discovered while walking the globals' types. A field
// whose target address is itself a registered global is tagged
// lifetime-forever; any other target (e.g. a heap allocation made by a
// global constructor before tracing attached) is tagged Null, matching "an
// address the in-memory map has no tag for" (§4.4).
func (p *ProcessListener) NotifyGlobalVariablesComplete(fields []GlobalPointerField) {
	for _, f := range fields {
		tag := pointerobj.Null
		if _, ok := p.GlobalIndexForAddress(f.TargetAddress); ok {
			tag = pointerobj.Forever(f.TargetAddress)
		}
		p.Pointers.Store(f.FieldAddress, tag, pointerSize)
	}
}

// GlobalAddress returns the run-time address registered for the global at
// index, or 0 if index has not been registered.
func (p *ProcessListener) GlobalAddress(index uint32) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uint32(len(p.globalAddresses)) <= index {
		return 0, false
	}
	return p.globalAddresses[index], p.globalAddresses[index] != 0
}

// GlobalIndexForAddress finds the global variable whose run-time area
// contains addr, if any.
func (p *ProcessListener) GlobalIndexForAddress(addr uint64) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, _, _, ok := p.globalLookup.Find(addr)
	return index, ok
}

// RegisterFunction records the run-time address of the function at index,
// so pointer-to-function values can be resolved back to a function.
func (p *ProcessListener) RegisterFunction(index uint32, address uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for uint32(len(p.functionAddresses)) <= index {
		p.functionAddresses = append(p.functionAddresses, 0)
	}
	p.functionAddresses[index] = address
	p.functionLookup[address] = index
}

// FunctionAddress returns the run-time address registered for the function
// at index.
func (p *ProcessListener) FunctionAddress(index uint32) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if uint32(len(p.functionAddresses)) <= index {
		return 0, false
	}
	return p.functionAddresses[index], p.functionAddresses[index] != 0
}

// FunctionIndexForAddress finds the function registered at address, if any.
func (p *ProcessListener) FunctionIndexForAddress(address uint64) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	index, ok := p.functionLookup[address]
	return index, ok
}
