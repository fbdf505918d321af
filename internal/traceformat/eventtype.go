package traceformat

// EventType identifies the kind of a single trace event record. Values are
// stable across format versions sharing FormatVersion; a trace reader must
// treat an unrecognized EventType as a fatal format error rather than
// skipping it, since events are not self-delimiting without the trait table.
type EventType uint8

// Recognized event types, per §6 "Recognized event types".
const (
	EventNone EventType = iota
	EventTraceEnd
	EventFunctionStart
	EventFunctionEnd
	EventPreInstruction
	EventInstruction
	EventInstructionWithUInt8
	EventInstructionWithUInt16
	EventInstructionWithUInt32
	EventInstructionWithUInt64
	EventInstructionWithPtr
	EventInstructionWithFloat
	EventInstructionWithDouble
	EventInstructionWithLongDouble
	EventAlloca
	EventMalloc
	EventFree
	EventStateUntyped
	EventStateUntypedSmall
	EventStateMemmove
	EventStateClear
	EventStateOverwrite
	EventStateOverwriteFragment
	EventStateCopied
	EventKnownRegionAdd
	EventKnownRegionRemove
	EventByValRegionAdd
	EventStackRestore
	EventStackRestoreAlloca
	EventNewProcessTime
	EventRuntimeError
	EventRuntimeErrorArgument

	eventTypeCount
)

var eventTypeNames = [eventTypeCount]string{
	EventNone:                       "None",
	EventTraceEnd:                   "TraceEnd",
	EventFunctionStart:              "FunctionStart",
	EventFunctionEnd:                "FunctionEnd",
	EventPreInstruction:             "PreInstruction",
	EventInstruction:                "Instruction",
	EventInstructionWithUInt8:       "InstructionWithUInt8",
	EventInstructionWithUInt16:      "InstructionWithUInt16",
	EventInstructionWithUInt32:      "InstructionWithUInt32",
	EventInstructionWithUInt64:      "InstructionWithUInt64",
	EventInstructionWithPtr:         "InstructionWithPtr",
	EventInstructionWithFloat:       "InstructionWithFloat",
	EventInstructionWithDouble:      "InstructionWithDouble",
	EventInstructionWithLongDouble:  "InstructionWithLongDouble",
	EventAlloca:                     "Alloca",
	EventMalloc:                     "Malloc",
	EventFree:                       "Free",
	EventStateUntyped:               "StateUntyped",
	EventStateUntypedSmall:          "StateUntypedSmall",
	EventStateMemmove:               "StateMemmove",
	EventStateClear:                 "StateClear",
	EventStateOverwrite:             "StateOverwrite",
	EventStateOverwriteFragment:     "StateOverwriteFragment",
	EventStateCopied:                "StateCopied",
	EventKnownRegionAdd:             "KnownRegionAdd",
	EventKnownRegionRemove:          "KnownRegionRemove",
	EventByValRegionAdd:             "ByValRegionAdd",
	EventStackRestore:               "StackRestore",
	EventStackRestoreAlloca:         "StackRestoreAlloca",
	EventNewProcessTime:             "NewProcessTime",
	EventRuntimeError:               "RuntimeError",
	EventRuntimeErrorArgument:       "RuntimeErrorArgument",
}

func (t EventType) String() string {
	if t < eventTypeCount {
		if name := eventTypeNames[t]; name != "" {
			return name
		}
	}
	return "Unknown"
}

// Valid reports whether t is a recognized event type.
func (t EventType) Valid() bool {
	return t > EventNone && t < eventTypeCount
}

// Traits describes the fixed, per-EventType attributes used by listeners and
// readers to interpret an event stream without a per-type switch at every
// call site (the Go analogue of the original's compile-time trait
// specializations; here it is one table, built once, looked up by index).
type Traits struct {
	// IsBlockStart marks an event that begins a new "trace block" boundary
	// usable as a synchronization point during replay.
	IsBlockStart bool
	// IsSubservient marks an event that only has meaning attached to the
	// immediately preceding event (e.g. an argument record following an
	// error record) and is never itself a seek target.
	IsSubservient bool
	// IsFunctionLevel marks events produced directly by function entry/exit
	// rather than by a specific instruction.
	IsFunctionLevel bool
	// IsInstruction marks events that advance the "current instruction"
	// position of a thread.
	IsInstruction bool
	// ModifiesSharedState marks events that mutate state visible outside
	// the thread that recorded them (global memory, process time, ...).
	ModifiesSharedState bool
	// IsMemoryState marks events that record a memory-state change
	// (allocation, deallocation, or a shadow-byte update).
	IsMemoryState bool
}

var traitTable = [eventTypeCount]Traits{
	EventTraceEnd:              {IsBlockStart: true},
	EventFunctionStart:         {IsFunctionLevel: true, ModifiesSharedState: true},
	EventFunctionEnd:           {IsFunctionLevel: true, ModifiesSharedState: true},
	EventPreInstruction:        {IsInstruction: true},
	EventInstruction:           {IsInstruction: true},
	EventInstructionWithUInt8:  {IsInstruction: true},
	EventInstructionWithUInt16: {IsInstruction: true},
	EventInstructionWithUInt32: {IsInstruction: true},
	EventInstructionWithUInt64: {IsInstruction: true},
	EventInstructionWithPtr:    {IsInstruction: true},
	EventInstructionWithFloat:  {IsInstruction: true},
	EventInstructionWithDouble: {IsInstruction: true},
	EventInstructionWithLongDouble: {IsInstruction: true},
	EventAlloca:                 {IsMemoryState: true, ModifiesSharedState: true},
	EventMalloc:                 {IsMemoryState: true, ModifiesSharedState: true},
	EventFree:                   {IsMemoryState: true, ModifiesSharedState: true},
	EventStateUntyped:           {IsMemoryState: true},
	EventStateUntypedSmall:      {IsMemoryState: true},
	EventStateMemmove:           {IsMemoryState: true},
	EventStateClear:             {IsMemoryState: true},
	EventStateOverwrite:         {IsMemoryState: true},
	EventStateOverwriteFragment: {IsMemoryState: true, IsSubservient: true},
	EventStateCopied:            {IsMemoryState: true},
	EventKnownRegionAdd:         {ModifiesSharedState: true},
	EventKnownRegionRemove:      {ModifiesSharedState: true},
	EventByValRegionAdd:         {IsMemoryState: true},
	EventStackRestore:           {IsMemoryState: true},
	EventStackRestoreAlloca:     {IsMemoryState: true, IsSubservient: true},
	EventNewProcessTime:         {IsBlockStart: true, ModifiesSharedState: true},
	EventRuntimeError:           {},
	EventRuntimeErrorArgument:   {IsSubservient: true},
}

// TraitsOf returns the trait set for t. An unrecognized t yields the zero
// Traits value.
func TraitsOf(t EventType) Traits {
	if t < eventTypeCount {
		return traitTable[t]
	}
	return Traits{}
}
