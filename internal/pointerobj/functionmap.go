package pointerobj

// FunctionMap tracks pointer tags for SSA values within one function
// activation, keyed by the producing instruction's function-level index.
// Unlike InMemoryMap, it holds no memory addresses — it is reset wholesale
// whenever its owning activation ends (Phi, bitcast, and GEP results all
// flow through a FunctionMap before ever touching memory).
type FunctionMap struct {
	values map[uint32]Target
}

// NewFunctionMap returns an empty per-activation map.
func NewFunctionMap() *FunctionMap {
	return &FunctionMap{values: make(map[uint32]Target)}
}

// Set records tag as the result of the instruction at index.
func (f *FunctionMap) Set(index uint32, tag Target) {
	f.values[index] = tag
}

// Get returns the tag recorded for index, if any.
func (f *FunctionMap) Get(index uint32) (Target, bool) {
	tag, ok := f.values[index]
	return tag, ok
}

// Reset discards every recorded tag, as when a new activation of the same
// function begins (e.g. a recursive call, or a loop re-entering via a
// Phi whose incoming block differs each iteration).
func (f *FunctionMap) Reset() {
	f.values = make(map[uint32]Target)
}
