package traceformat

// Location identifies a single event by the thread that recorded it and its
// byte offset within that thread's event stream. It is the unit of
// addressing used by pointer provenance records and by replay seek targets
// (the Go analogue of the original's EventLocation).
type Location struct {
	ThreadID uint32
	Offset   uint64
}

// Valid reports whether l names a real, nonzero-offset event. Offset 0
// means "before the first event" and is used as a sentinel for "no
// location" (e.g. a pointer that has never been dereferenced).
func (l Location) Valid() bool {
	return l.Offset != 0
}

// None is the zero Location, meaning "no event".
var None = Location{}
